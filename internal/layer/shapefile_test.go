package layer

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/geometry"
)

// writeTestShapefile creates a shapefile with two AGEB polygons: a 10x10
// square holding a 2x2 hole, and a plain 5x5 square. Outer rings are written
// clockwise and the hole counter-clockwise, per the ESRI winding convention.
func writeTestShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agebs.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("CVE_ENT", 2),
		shp.StringField("CVE_MUN", 3),
		shp.StringField("CVE_LOC", 4),
		shp.StringField("CVE_AGEB", 4),
	}))

	withHole := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	}))
	plain := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}},
	}))

	w.Write(&withHole)
	w.Write(&plain)

	attrs := [][]string{
		{"9", "10", "1", "123A"},
		{"9", "10", "1", "124B"},
	}
	for row, vals := range attrs {
		for field, val := range vals {
			require.NoError(t, w.WriteAttribute(row, field, val))
		}
	}
	require.NoError(t, w.Close())

	return path
}

func TestLoadShapefile(t *testing.T) {
	path := writeTestShapefile(t)

	l, err := Load(path, LoadOptions{
		CRS:      "EPSG:6372",
		IDFields: []string{"CVE_ENT", "CVE_MUN", "CVE_LOC", "CVE_AGEB"},
		IDWidths: []int{2, 3, 4, 4},
	})
	require.NoError(t, err)
	require.Len(t, l.Features, 2)

	assert.Equal(t, "090100001123A", l.Features[0].ID)
	assert.Equal(t, "090100001124B", l.Features[1].ID)

	assert.InDelta(t, 96.0, geometry.Area(l.Features[0].Geom), 1e-9,
		"hole must subtract from the outer ring")
	assert.InDelta(t, 25.0, geometry.Area(l.Features[1].Geom), 1e-9)
}

func TestLoadShapefileMissingIDField(t *testing.T) {
	path := writeTestShapefile(t)

	_, err := Load(path, LoadOptions{
		CRS:      "EPSG:6372",
		IDFields: []string{"CVEGEO"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CVEGEO")
}
