package layer

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// readGeoJSON loads polygon features from a GeoJSON FeatureCollection.
func readGeoJSON(path string, opts LoadOptions) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: read geojson %s", path)
	}
	if err := checkDeclaredCRS(data, opts.CRS); err != nil {
		return nil, eris.Wrapf(err, "layer: %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "layer: parse geojson %s", path)
	}

	l := &Layer{CRS: opts.CRS}
	seen := make(map[string]bool)
	var dupes, unusable int

	for _, gf := range fc.Features {
		switch gf.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			unusable++
			continue
		}

		idVals := make([]string, len(opts.IDFields))
		for i, idField := range opts.IDFields {
			idVals[i] = propString(gf.Properties, idField)
		}

		f := Feature{
			ID:    buildID(idVals, opts.IDWidths),
			Name:  propString(gf.Properties, opts.NameField),
			Geom:  gf.Geometry,
			Props: make(map[string]float64),
		}
		for k, v := range gf.Properties {
			if !numericKey(k, opts) {
				continue
			}
			if num, ok := v.(float64); ok {
				f.Props[strings.ToLower(k)] = num
			}
		}

		appendFeature(l, seen, f, &dupes, &unusable)
	}

	logSkips(path, dupes, unusable)
	return checkNonEmpty(l, path)
}

// propString fetches a property as a string, case-insensitively. Numeric
// values render without a decimal part so code fields survive JSON number
// decoding.
func propString(props map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	for k, v := range props {
		if !strings.EqualFold(k, key) {
			continue
		}
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t)
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

// checkDeclaredCRS compares a legacy top-level "crs" member, when present,
// against the declared CRS label. Layers are never reprojected, so a
// mismatch is structural.
func checkDeclaredCRS(data []byte, declared string) error {
	var doc struct {
		CRS *struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.CRS == nil {
		return nil
	}
	fileCode := epsgDigits(doc.CRS.Properties.Name)
	wantCode := epsgDigits(declared)
	if fileCode != "" && wantCode != "" && fileCode != wantCode {
		return eris.Errorf("geojson declares CRS %s but config expects %s",
			doc.CRS.Properties.Name, declared)
	}
	return nil
}

// epsgDigits extracts the trailing numeric code of a CRS label such as
// "EPSG:6372" or "urn:ogc:def:crs:EPSG::6372".
func epsgDigits(label string) string {
	end := len(label)
	for end > 0 && label[end-1] >= '0' && label[end-1] <= '9' {
		end--
	}
	return label[end:]
}

// WriteOptions controls how a layer is written to GeoJSON.
type WriteOptions struct {
	IDField   string
	NameField string
}

// Write serializes the layer as a GeoJSON FeatureCollection. Properties are
// the feature's numeric attributes plus its id and name fields; map keys are
// emitted sorted, so output is byte-stable for identical layers.
func Write(path string, l *Layer, opts WriteOptions) error {
	fc := &geojson.FeatureCollection{}
	for _, f := range l.Features {
		props := make(map[string]interface{}, len(f.Props)+2)
		props[opts.IDField] = f.ID
		if opts.NameField != "" {
			props[opts.NameField] = f.Name
		}
		for k, v := range f.Props {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.ID,
			Geometry:   f.Geom,
			Properties: props,
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "layer: marshal geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "layer: write %s", path)
	}
	return nil
}
