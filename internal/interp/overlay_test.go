package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
)

func rect(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}},
	})
}

func testLayer(crs string, feats ...layer.Feature) *layer.Layer {
	return &layer.Layer{CRS: crs, Features: feats}
}

func TestOverlayCRSMismatch(t *testing.T) {
	src := testLayer("EPSG:6372", layer.Feature{ID: "a", Geom: rect(0, 0, 1, 1)})
	tgt := testLayer("EPSG:4326", layer.Feature{ID: "t", Geom: rect(0, 0, 1, 1)})

	_, err := Overlay(context.Background(), src, tgt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRS mismatch")
}

func TestOverlayNoUsableGeometries(t *testing.T) {
	degenerate := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {2, 0}, {0, 0}},
	})
	src := testLayer("EPSG:6372", layer.Feature{ID: "a", Geom: degenerate})
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "t", Geom: rect(0, 0, 1, 1)})

	_, err := Overlay(context.Background(), src, tgt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable geometries")
}

func TestOverlayDisjointLayers(t *testing.T) {
	src := testLayer("EPSG:6372", layer.Feature{ID: "a", Geom: rect(0, 0, 1, 1)})
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "t", Geom: rect(100, 100, 101, 101)})

	_, err := Overlay(context.Background(), src, tgt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fragments")
}

func TestOverlaySplitsSourceAcrossTargets(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "ageb-1", Geom: rect(0, 0, 10, 10), Props: map[string]float64{"pob_total": 200}},
	)
	tgt := testLayer("EPSG:6372",
		layer.Feature{ID: "ut-west", Geom: rect(0, 0, 7, 10)},
		layer.Feature{ID: "ut-east", Geom: rect(7, 0, 10, 10)},
	)

	frags, err := Overlay(context.Background(), src, tgt)
	require.NoError(t, err)
	require.Len(t, frags, 2)

	assert.Equal(t, "ut-east", frags[0].TargetID)
	assert.Equal(t, "ut-west", frags[1].TargetID)
	assert.InDelta(t, 30.0, frags[0].Area, 1e-9)
	assert.InDelta(t, 70.0, frags[1].Area, 1e-9)
	for _, f := range frags {
		assert.Equal(t, "ageb-1", f.SourceID)
		assert.InDelta(t, 100.0, f.SourceArea, 1e-9)
		assert.Equal(t, 200.0, f.Props["pob_total"])
	}
}

func TestOverlayPrefersSourceAreaAttribute(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{
			ID:    "ageb-1",
			Geom:  rect(0, 0, 10, 10),
			Props: map[string]float64{"ageb_area_total": 123.0},
		},
	)
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "ut-1", Geom: rect(0, 0, 10, 10)})

	frags, err := Overlay(context.Background(), src, tgt)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.InDelta(t, 123.0, frags[0].SourceArea, 1e-9)
}

func TestOverlayMergesPropsWithSuffixes(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "a", Geom: rect(0, 0, 4, 4), Props: map[string]float64{"score": 1, "pob_total": 50}},
	)
	tgt := testLayer("EPSG:6372",
		layer.Feature{ID: "t", Geom: rect(0, 0, 4, 4), Props: map[string]float64{"score": 2, "superficie": 16}},
	)

	frags, err := Overlay(context.Background(), src, tgt)
	require.NoError(t, err)
	require.Len(t, frags, 1)

	props := frags[0].Props
	assert.Equal(t, 1.0, props["score_1"])
	assert.Equal(t, 2.0, props["score_2"])
	assert.Equal(t, 50.0, props["pob_total"])
	assert.Equal(t, 16.0, props["superficie"])
	_, plain := props["score"]
	assert.False(t, plain)
}

func TestOverlayDropsUnusableSource(t *testing.T) {
	degenerate := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {5, 0}, {5, 0}, {0, 0}},
	})
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "bad", Geom: degenerate, Props: map[string]float64{"pob_total": 999}},
		layer.Feature{ID: "good", Geom: rect(0, 0, 2, 2), Props: map[string]float64{"pob_total": 10}},
	)
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "t", Geom: rect(0, 0, 10, 10)})

	frags, err := Overlay(context.Background(), src, tgt)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "good", frags[0].SourceID)
}

func TestOverlayDeterministicOrder(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "b", Geom: rect(0, 0, 10, 10)},
		layer.Feature{ID: "a", Geom: rect(5, 0, 15, 10)},
	)
	tgt := testLayer("EPSG:6372",
		layer.Feature{ID: "t2", Geom: rect(8, 0, 20, 10)},
		layer.Feature{ID: "t1", Geom: rect(0, 0, 8, 10)},
	)

	first, err := Overlay(context.Background(), src, tgt, WithWorkers(4))
	require.NoError(t, err)
	second, err := Overlay(context.Background(), src, tgt, WithWorkers(1))
	require.NoError(t, err)

	require.Len(t, first, 4)
	var order [][2]string
	for _, f := range first {
		order = append(order, [2]string{f.SourceID, f.TargetID})
	}
	assert.Equal(t, [][2]string{
		{"a", "t1"}, {"a", "t2"},
		{"b", "t1"}, {"b", "t2"},
	}, order)

	require.Len(t, second, 4)
	for i := range first {
		assert.Equal(t, first[i].SourceID, second[i].SourceID)
		assert.Equal(t, first[i].TargetID, second[i].TargetID)
		assert.InDelta(t, first[i].Area, second[i].Area, 1e-12)
	}
}

func TestOverlayCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := testLayer("EPSG:6372", layer.Feature{ID: "a", Geom: rect(0, 0, 1, 1)})
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "t", Geom: rect(0, 0, 1, 1)})

	_, err := Overlay(ctx, src, tgt)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
