// Package geometry provides planar helpers over go-geom types: shoelace
// areas, ring orientation, bounding boxes, and point-in-polygon tests.
// All coordinates are assumed to be in a projected CRS with linear units.
package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// SignedRingArea returns the signed shoelace area of a flat XY coordinate
// ring. Counter-clockwise rings have positive area. The ring may be open or
// closed; the closing edge is implied.
func SignedRingArea(flat []float64) float64 {
	n := len(flat) / 2
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		sum += xi*yj - xj*yi
	}
	return sum / 2
}

// Area returns the area of a Polygon or MultiPolygon regardless of ring
// orientation: the outer ring contributes its absolute area, interior rings
// subtract theirs. Other geometry types yield 0.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonArea(t)
	case *geom.MultiPolygon:
		var sum float64
		for i := 0; i < t.NumPolygons(); i++ {
			sum += polygonArea(t.Polygon(i))
		}
		return sum
	default:
		return 0
	}
}

func polygonArea(p *geom.Polygon) float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return 0
	}
	area := math.Abs(SignedRingArea(p.LinearRing(0).FlatCoords()))
	for i := 1; i < p.NumLinearRings(); i++ {
		area -= math.Abs(SignedRingArea(p.LinearRing(i).FlatCoords()))
	}
	if area < 0 {
		return 0
	}
	return area
}

// Normalize rewinds the rings of a Polygon or MultiPolygon in place so that
// outer rings are counter-clockwise and holes clockwise, and returns the
// geometry. Non-areal types pass through untouched.
func Normalize(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Polygon:
		normalizePolygon(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			normalizePolygon(t.Polygon(i))
		}
	}
	return g
}

func normalizePolygon(p *geom.Polygon) {
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		signed := SignedRingArea(ring.FlatCoords())
		wantCCW := i == 0
		if (wantCCW && signed < 0) || (!wantCCW && signed > 0) {
			reverseRing(ring)
		}
	}
}

func reverseRing(ring *geom.LinearRing) {
	flat := ring.FlatCoords()
	n := len(flat) / 2
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		flat[2*i], flat[2*j] = flat[2*j], flat[2*i]
		flat[2*i+1], flat[2*j+1] = flat[2*j+1], flat[2*i+1]
	}
}

// BoundsOf returns the axis-aligned bounding box of g as min/max corners,
// the shape the R-tree index consumes.
func BoundsOf(g geom.T) (min, max [2]float64) {
	b := g.Bounds()
	return [2]float64{b.Min(0), b.Min(1)}, [2]float64{b.Max(0), b.Max(1)}
}

// BoundsOverlap reports whether two geometries' bounding boxes intersect.
func BoundsOverlap(a, b geom.T) bool {
	return a.Bounds().Overlaps(geom.XY, b.Bounds())
}

// ContainsXY reports whether the point (x, y) lies inside a Polygon or
// MultiPolygon, honoring interior rings as holes.
func ContainsXY(g geom.T, x, y float64) bool {
	pt := geom.Coord{x, y}
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, pt)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), pt) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, pt, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// Usable reports whether g is a non-empty areal geometry that can take part
// in overlay work: a Polygon or MultiPolygon whose outer rings have at least
// three distinct vertices and strictly positive area.
func Usable(g geom.T) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return usablePolygon(t)
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return false
		}
		for i := 0; i < t.NumPolygons(); i++ {
			if usablePolygon(t.Polygon(i)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func usablePolygon(p *geom.Polygon) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	outer := p.LinearRing(0)
	if outer.NumCoords() < 4 {
		// Closed rings repeat the first vertex, so a triangle has 4 coords.
		return len(outer.FlatCoords()) >= 6 && math.Abs(SignedRingArea(outer.FlatCoords())) > 0
	}
	return math.Abs(SignedRingArea(outer.FlatCoords())) > 0
}
