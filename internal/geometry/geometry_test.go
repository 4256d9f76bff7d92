package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// square returns a closed CCW square ring from (x0,y0) to (x1,y1).
func square(x0, y0, x1, y1 float64) []geom.Coord {
	return []geom.Coord{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

func reversed(ring []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(ring))
	for i, c := range ring {
		out[len(ring)-1-i] = c
	}
	return out
}

func polygon(t *testing.T, rings ...[]geom.Coord) *geom.Polygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	require.NoError(t, p.SetCoords(rings))
	return p
}

func TestSignedRingArea(t *testing.T) {
	tests := []struct {
		name     string
		ring     []geom.Coord
		expected float64
	}{
		{name: "ccw unit square", ring: square(0, 0, 1, 1), expected: 1},
		{name: "cw unit square", ring: reversed(square(0, 0, 1, 1)), expected: -1},
		{name: "ccw 10x5 rectangle", ring: square(0, 0, 10, 5), expected: 50},
		{name: "degenerate two points", ring: []geom.Coord{{0, 0}, {1, 1}}, expected: 0},
		{name: "collinear", ring: []geom.Coord{{0, 0}, {1, 1}, {2, 2}, {0, 0}}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flat []float64
			for _, c := range tt.ring {
				flat = append(flat, c[0], c[1])
			}
			assert.InDelta(t, tt.expected, SignedRingArea(flat), 1e-12)
		})
	}
}

func TestArea(t *testing.T) {
	t.Run("simple polygon", func(t *testing.T) {
		p := polygon(t, square(0, 0, 10, 10))
		assert.InDelta(t, 100.0, Area(p), 1e-9)
	})

	t.Run("polygon with hole", func(t *testing.T) {
		p := polygon(t, square(0, 0, 10, 10), square(2, 2, 4, 4))
		assert.InDelta(t, 96.0, Area(p), 1e-9)
	})

	t.Run("hole orientation irrelevant", func(t *testing.T) {
		p := polygon(t, square(0, 0, 10, 10), reversed(square(2, 2, 4, 4)))
		assert.InDelta(t, 96.0, Area(p), 1e-9)
	})

	t.Run("multipolygon sums parts", func(t *testing.T) {
		mp := geom.NewMultiPolygon(geom.XY)
		require.NoError(t, mp.Push(polygon(t, square(0, 0, 2, 2))))
		require.NoError(t, mp.Push(polygon(t, square(10, 10, 13, 13))))
		assert.InDelta(t, 4.0+9.0, Area(mp), 1e-9)
	})

	t.Run("non areal is zero", func(t *testing.T) {
		pt := geom.NewPointFlat(geom.XY, []float64{1, 2})
		assert.Zero(t, Area(pt))
	})
}

func TestNormalize(t *testing.T) {
	p := polygon(t, reversed(square(0, 0, 10, 10)), square(2, 2, 4, 4))
	Normalize(p)

	assert.Positive(t, SignedRingArea(p.LinearRing(0).FlatCoords()), "outer ring must be CCW")
	assert.Negative(t, SignedRingArea(p.LinearRing(1).FlatCoords()), "hole must be CW")
	assert.InDelta(t, 96.0, Area(p), 1e-9)
}

func TestContainsXY(t *testing.T) {
	withHole := polygon(t, square(0, 0, 10, 10), square(4, 4, 6, 6))

	tests := []struct {
		name     string
		x, y     float64
		expected bool
	}{
		{name: "inside", x: 2, y: 2, expected: true},
		{name: "outside", x: 11, y: 5, expected: false},
		{name: "inside hole", x: 5, y: 5, expected: false},
		{name: "between hole and edge", x: 8, y: 8, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ContainsXY(withHole, tt.x, tt.y))
		})
	}

	t.Run("multipolygon", func(t *testing.T) {
		mp := geom.NewMultiPolygon(geom.XY)
		require.NoError(t, mp.Push(polygon(t, square(0, 0, 1, 1))))
		require.NoError(t, mp.Push(polygon(t, square(5, 5, 6, 6))))
		assert.True(t, ContainsXY(mp, 5.5, 5.5))
		assert.False(t, ContainsXY(mp, 3, 3))
	})
}

func TestUsable(t *testing.T) {
	tests := []struct {
		name     string
		geom     geom.T
		expected bool
	}{
		{name: "valid polygon", geom: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{square(0, 0, 1, 1)}), expected: true},
		{name: "empty polygon", geom: geom.NewPolygon(geom.XY), expected: false},
		{name: "zero area polygon", geom: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 1}, {2, 2}, {0, 0}}}), expected: false},
		{name: "point", geom: geom.NewPointFlat(geom.XY, []float64{0, 0}), expected: false},
		{name: "empty multipolygon", geom: geom.NewMultiPolygon(geom.XY), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Usable(tt.geom))
		})
	}
}

func TestBoundsOverlap(t *testing.T) {
	a := polygon(t, square(0, 0, 10, 10))
	b := polygon(t, square(5, 5, 15, 15))
	c := polygon(t, square(20, 20, 30, 30))

	assert.True(t, BoundsOverlap(a, b))
	assert.False(t, BoundsOverlap(a, c))

	min, max := BoundsOf(a)
	assert.Equal(t, [2]float64{0, 0}, min)
	assert.Equal(t, [2]float64{10, 10}, max)
}

func TestIntersection(t *testing.T) {
	t.Run("partial overlap", func(t *testing.T) {
		a := polygon(t, square(0, 0, 10, 10))
		b := polygon(t, square(5, 0, 15, 10))

		out, err := Intersection(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, Area(out), 1e-6)
	})

	t.Run("disjoint yields empty", func(t *testing.T) {
		a := polygon(t, square(0, 0, 1, 1))
		b := polygon(t, square(5, 5, 6, 6))

		out, err := Intersection(a, b)
		require.NoError(t, err)
		assert.Zero(t, out.NumPolygons())
		assert.Zero(t, Area(out))
	})

	t.Run("contained yields inner", func(t *testing.T) {
		a := polygon(t, square(0, 0, 10, 10))
		b := polygon(t, square(2, 2, 4, 4))

		out, err := Intersection(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, Area(out), 1e-6)
	})

	t.Run("hole excluded from result", func(t *testing.T) {
		a := polygon(t, square(0, 0, 10, 10), square(4, 4, 6, 6))
		b := polygon(t, square(0, 0, 10, 10))

		out, err := Intersection(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 96.0, Area(out), 1e-6)
	})

	t.Run("multipolygon input", func(t *testing.T) {
		mp := geom.NewMultiPolygon(geom.XY)
		require.NoError(t, mp.Push(polygon(t, square(0, 0, 2, 2))))
		require.NoError(t, mp.Push(polygon(t, square(8, 8, 10, 10))))
		b := polygon(t, square(0, 0, 10, 10))

		out, err := Intersection(mp, b)
		require.NoError(t, err)
		assert.InDelta(t, 8.0, Area(out), 1e-6)
	})

	t.Run("unsupported input", func(t *testing.T) {
		pt := geom.NewPointFlat(geom.XY, []float64{0, 0})
		_, err := Intersection(pt, polygon(t, square(0, 0, 1, 1)))
		assert.Error(t, err)
	})
}
