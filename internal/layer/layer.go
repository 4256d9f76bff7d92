// Package layer loads polygon layers from shapefiles and GeoJSON into
// go-geom features with string identifiers and numeric attributes.
package layer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/geometry"
)

// Feature is one polygon with its identity and numeric attributes.
type Feature struct {
	ID    string
	Name  string
	Geom  geom.T
	Props map[string]float64
}

// Layer is a set of features sharing one declared CRS.
type Layer struct {
	CRS      string
	Features []Feature
}

// LoadOptions configures how a layer file is read.
type LoadOptions struct {
	CRS       string   // declared CRS label, e.g. "EPSG:6372"
	IDFields  []string // attribute fields concatenated into the feature id
	IDWidths  []int    // zero-pad widths per id field; 0 = as-is
	NameField string   // optional display-name field
}

// Load reads a polygon layer, dispatching on the file extension
// (.shp or .geojson/.json).
func Load(path string, opts LoadOptions) (*Layer, error) {
	if len(opts.IDFields) == 0 {
		return nil, eris.New("layer: at least one id field is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return readShapefile(path, opts)
	case ".geojson", ".json":
		return readGeoJSON(path, opts)
	default:
		return nil, eris.Errorf("layer: unsupported layer format %q", filepath.Ext(path))
	}
}

// ComputeAreas stores each feature's polygon area (in squared CRS units)
// under the given attribute name.
func (l *Layer) ComputeAreas(attr string) {
	for i := range l.Features {
		l.Features[i].Props[attr] = geometry.Area(l.Features[i].Geom)
	}
}

// ByID returns a map from feature id to feature index.
func (l *Layer) ByID() map[string]int {
	idx := make(map[string]int, len(l.Features))
	for i, f := range l.Features {
		idx[f.ID] = i
	}
	return idx
}

// buildID concatenates the configured id fields, zero-padding each to its
// configured width.
func buildID(values []string, widths []int) string {
	var b strings.Builder
	for i, v := range values {
		v = strings.TrimSpace(v)
		if i < len(widths) && widths[i] > 0 && len(v) < widths[i] {
			b.WriteString(strings.Repeat("0", widths[i]-len(v)))
		}
		b.WriteString(v)
	}
	return b.String()
}

// appendFeature validates and appends one feature, normalizing ring
// orientation and dropping duplicates and unusable geometries. It returns
// updated skip counters.
func appendFeature(l *Layer, seen map[string]bool, f Feature, dupes, unusable *int) {
	if f.ID == "" || !geometry.Usable(f.Geom) {
		*unusable++
		return
	}
	if seen[f.ID] {
		*dupes++
		return
	}
	seen[f.ID] = true
	geometry.Normalize(f.Geom)
	if f.Props == nil {
		f.Props = make(map[string]float64)
	}
	l.Features = append(l.Features, f)
}

func logSkips(path string, dupes, unusable int) {
	if dupes > 0 || unusable > 0 {
		zap.L().Warn("layer: skipped features",
			zap.String("path", path),
			zap.Int("duplicate_ids", dupes),
			zap.Int("unusable_geometries", unusable),
		)
	}
}

func checkNonEmpty(l *Layer, path string) (*Layer, error) {
	if len(l.Features) == 0 {
		return nil, eris.Errorf("layer: no usable features in %s", path)
	}
	zap.L().Info("layer: loaded",
		zap.String("path", path),
		zap.String("crs", l.CRS),
		zap.Int("features", len(l.Features)),
	)
	return l, nil
}

// numericKey reports whether an attribute key should be kept as a numeric
// property: id and name fields are identity, not measurement.
func numericKey(key string, opts LoadOptions) bool {
	for _, f := range opts.IDFields {
		if strings.EqualFold(key, f) {
			return false
		}
	}
	return !strings.EqualFold(key, opts.NameField)
}

// String renders a short description for logs and errors.
func (l *Layer) String() string {
	return fmt.Sprintf("layer(crs=%s, features=%d)", l.CRS, len(l.Features))
}
