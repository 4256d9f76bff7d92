package geometry

import (
	"github.com/engelsjk/polygol"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Intersection computes the boolean intersection of two areal geometries
// using the Martinez-Rueda clipper. The result is a MultiPolygon; an empty
// MultiPolygon means the inputs do not overlap. Inputs must be Polygon or
// MultiPolygon.
func Intersection(a, b geom.T) (*geom.MultiPolygon, error) {
	ca, err := toClipGeom(a)
	if err != nil {
		return nil, err
	}
	cb, err := toClipGeom(b)
	if err != nil {
		return nil, err
	}
	out, err := polygol.Intersection(ca, cb)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: clip intersection")
	}
	return fromClipGeom(out), nil
}

// toClipGeom converts a Polygon or MultiPolygon to the clipper's
// [polygon][ring][vertex][xy] nesting, closing every ring.
func toClipGeom(g geom.T) ([][][][]float64, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return [][][][]float64{polygonToClip(t)}, nil
	case *geom.MultiPolygon:
		out := make([][][][]float64, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, polygonToClip(t.Polygon(i)))
		}
		return out, nil
	default:
		return nil, eris.Errorf("geometry: unsupported clip input %T", g)
	}
}

func polygonToClip(p *geom.Polygon) [][][]float64 {
	rings := make([][][]float64, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		n := len(flat) / 2
		ring := make([][]float64, 0, n+1)
		for j := 0; j < n; j++ {
			ring = append(ring, []float64{flat[2*j], flat[2*j+1]})
		}
		if n > 0 && (ring[0][0] != ring[n-1][0] || ring[0][1] != ring[n-1][1]) {
			ring = append(ring, []float64{ring[0][0], ring[0][1]})
		}
		rings = append(rings, ring)
	}
	return rings
}

// fromClipGeom rebuilds a MultiPolygon from clipper output, restoring ring
// closure and dropping degenerate rings.
func fromClipGeom(cg [][][][]float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, cp := range cg {
		poly := geom.NewPolygon(geom.XY)
		for _, cr := range cp {
			flat := clipRingToFlat(cr)
			if len(flat) < 8 {
				continue
			}
			ring := geom.NewLinearRingFlat(geom.XY, flat)
			if err := poly.Push(ring); err != nil {
				continue
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	return mp
}

func clipRingToFlat(ring [][]float64) []float64 {
	if len(ring) < 3 {
		return nil
	}
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, pt := range ring {
		if len(pt) < 2 {
			return nil
		}
		flat = append(flat, pt[0], pt[1])
	}
	n := len(flat)
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return flat
}
