package layer

import (
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/geometry"
)

// readShapefile loads polygon features from a shapefile. Ring winding is
// interpreted per the ESRI convention: clockwise parts are outer rings,
// counter-clockwise parts are holes of the enclosing outer ring.
func readShapefile(path string, opts LoadOptions) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	if _, err := os.Stat(strings.TrimSuffix(path, ".shp") + ".prj"); err != nil {
		zap.L().Debug("layer: no .prj sidecar, trusting declared CRS",
			zap.String("path", path),
			zap.String("crs", opts.CRS),
		)
	}

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	fieldNames := make([]string, 0, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
		fieldNames = append(fieldNames, name)
	}

	for _, idField := range opts.IDFields {
		if _, ok := fieldIdx[strings.ToLower(idField)]; !ok {
			return nil, eris.Errorf("layer: id field %q not in shapefile (have: %s)",
				idField, strings.Join(fieldNames, ", "))
		}
	}

	l := &Layer{CRS: opts.CRS}
	seen := make(map[string]bool)
	var dupes, unusable int

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			unusable++
			continue
		}

		g := shapePolygonToGeom(poly)
		if g == nil {
			unusable++
			continue
		}

		idVals := make([]string, len(opts.IDFields))
		for i, idField := range opts.IDFields {
			idVals[i] = attributeValue(reader, fieldIdx[strings.ToLower(idField)])
		}

		f := Feature{
			ID:    buildID(idVals, opts.IDWidths),
			Geom:  g,
			Props: make(map[string]float64),
		}
		if opts.NameField != "" {
			if idx, ok := fieldIdx[strings.ToLower(opts.NameField)]; ok {
				f.Name = attributeValue(reader, idx)
			}
		}
		for name, idx := range fieldIdx {
			if !numericKey(name, opts) {
				continue
			}
			val := attributeValue(reader, idx)
			if val == "" {
				continue
			}
			if num, err := strconv.ParseFloat(val, 64); err == nil {
				f.Props[name] = num
			}
		}

		appendFeature(l, seen, f, &dupes, &unusable)
	}

	logSkips(path, dupes, unusable)
	return checkNonEmpty(l, path)
}

func attributeValue(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}

// shapePolygonToGeom assembles shapefile parts into a Polygon or
// MultiPolygon. Holes are attached to the outer ring that contains their
// first vertex; files that ignore the winding convention fall back to
// one polygon per part.
func shapePolygonToGeom(p *shp.Polygon) geom.T {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) < 6 {
			continue
		}
		if geometry.SignedRingArea(flat) < 0 {
			outers = append(outers, flat)
		} else {
			holes = append(holes, flat)
		}
	}

	if len(outers) == 0 {
		outers, holes = holes, nil
	}

	polys := make([]*geom.Polygon, 0, len(outers))
	for _, outer := range outers {
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, closedFlat(outer))); err != nil {
			continue
		}
		polys = append(polys, poly)
	}
	if len(polys) == 0 {
		return nil
	}

	for _, hole := range holes {
		pt := geom.Coord{hole[0], hole[1]}
		for _, poly := range polys {
			if xy.IsPointInRing(geom.XY, pt, poly.LinearRing(0).FlatCoords()) {
				if err := poly.Push(geom.NewLinearRingFlat(geom.XY, closedFlat(hole))); err == nil {
					break
				}
			}
		}
	}

	if len(polys) == 1 {
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, poly := range polys {
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func closedFlat(flat []float64) []float64 {
	n := len(flat)
	if n >= 2 && (flat[0] != flat[n-2] || flat[1] != flat[n-1]) {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}
