package layer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/geometry"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestBuildID(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		widths   []int
		expected string
	}{
		{
			name:     "cvegeo zero padding",
			values:   []string{"9", "10", "1", "123A"},
			widths:   []int{2, 3, 4, 4},
			expected: "090100001123A",
		},
		{
			name:     "already padded",
			values:   []string{"09", "010", "0001", "123A"},
			widths:   []int{2, 3, 4, 4},
			expected: "090100001123A",
		},
		{
			name:     "no widths",
			values:   []string{"ABC", "1"},
			widths:   nil,
			expected: "ABC1",
		},
		{
			name:     "single field",
			values:   []string{" 12-034 "},
			widths:   []int{0},
			expected: "12-034",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildID(tt.values, tt.widths))
		})
	}
}

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::6372"}},
  "features": [
    {
      "type": "Feature",
      "properties": {"CVEUT": "12-001", "NOMUT": "Centro", "pob_total": 1200},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"CVEUT": "12-002", "NOMUT": "Norte"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[20,0],[25,0],[25,5],[20,5],[20,0]]]]}
    },
    {
      "type": "Feature",
      "properties": {"CVEUT": "12-003", "NOMUT": "Punto"},
      "geometry": {"type": "Point", "coordinates": [1, 1]}
    }
  ]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGeoJSON(t *testing.T) {
	path := writeTemp(t, "units.geojson", sampleGeoJSON)

	l, err := Load(path, LoadOptions{
		CRS:       "EPSG:6372",
		IDFields:  []string{"CVEUT"},
		NameField: "NOMUT",
	})
	require.NoError(t, err)

	require.Len(t, l.Features, 2, "point feature must be skipped")
	assert.Equal(t, "EPSG:6372", l.CRS)

	assert.Equal(t, "12-001", l.Features[0].ID)
	assert.Equal(t, "Centro", l.Features[0].Name)
	assert.InDelta(t, 1200.0, l.Features[0].Props["pob_total"], 1e-9)
	assert.InDelta(t, 100.0, geometry.Area(l.Features[0].Geom), 1e-9)

	assert.Equal(t, "12-002", l.Features[1].ID)
	assert.InDelta(t, 25.0, geometry.Area(l.Features[1].Geom), 1e-9)
}

func TestLoadGeoJSONCRSMismatch(t *testing.T) {
	path := writeTemp(t, "units.geojson", sampleGeoJSON)

	_, err := Load(path, LoadOptions{
		CRS:      "EPSG:4326",
		IDFields: []string{"CVEUT"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPSG")
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeTemp(t, "units.gpkg", "not a real gpkg")
	_, err := Load(path, LoadOptions{CRS: "EPSG:6372", IDFields: []string{"CVEUT"}})
	assert.Error(t, err)
}

func TestLoadRequiresIDFields(t *testing.T) {
	_, err := Load("whatever.geojson", LoadOptions{CRS: "EPSG:6372"})
	assert.Error(t, err)
}

func TestLoadGeoJSONDuplicateIDs(t *testing.T) {
	const dup = `{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "properties": {"CVEUT": "A"}, "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
	    {"type": "Feature", "properties": {"CVEUT": "A"}, "geometry": {"type": "Polygon", "coordinates": [[[5,5],[6,5],[6,6],[5,6],[5,5]]]}}
	  ]
	}`
	path := writeTemp(t, "dup.geojson", dup)

	l, err := Load(path, LoadOptions{CRS: "EPSG:6372", IDFields: []string{"CVEUT"}})
	require.NoError(t, err)
	require.Len(t, l.Features, 1, "duplicate ids keep the first feature")
	assert.InDelta(t, 1.0, geometry.Area(l.Features[0].Geom), 1e-9)
}

func TestComputeAreas(t *testing.T) {
	path := writeTemp(t, "units.geojson", sampleGeoJSON)
	l, err := Load(path, LoadOptions{CRS: "EPSG:6372", IDFields: []string{"CVEUT"}})
	require.NoError(t, err)

	l.ComputeAreas("ageb_area_total")
	assert.InDelta(t, 100.0, l.Features[0].Props["ageb_area_total"], 1e-9)
	assert.InDelta(t, 25.0, l.Features[1].Props["ageb_area_total"], 1e-9)
}

func TestWriteRoundTrip(t *testing.T) {
	src := writeTemp(t, "units.geojson", sampleGeoJSON)
	l, err := Load(src, LoadOptions{CRS: "EPSG:6372", IDFields: []string{"CVEUT"}, NameField: "NOMUT"})
	require.NoError(t, err)
	l.ComputeAreas("ageb_area_total")

	out := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, Write(out, l, WriteOptions{IDField: "cve_ut", NameField: "nombre_ut"}))

	back, err := Load(out, LoadOptions{CRS: "EPSG:6372", IDFields: []string{"cve_ut"}, NameField: "nombre_ut"})
	require.NoError(t, err)
	require.Len(t, back.Features, len(l.Features))

	assert.Equal(t, l.Features[0].ID, back.Features[0].ID)
	assert.Equal(t, l.Features[0].Name, back.Features[0].Name)
	assert.InDelta(t,
		l.Features[0].Props["ageb_area_total"],
		back.Features[0].Props["ageb_area_total"], 1e-9)

	first, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, Write(out, l, WriteOptions{IDField: "cve_ut", NameField: "nombre_ut"}))
	second, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, first, second, "artifact bytes must be stable across writes")
}
