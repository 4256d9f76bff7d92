package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
)

// gridLayers builds four 5x5 source squares covering a 10x10 extent and
// two target slabs splitting the same extent at x=4, so the western
// sources split 80/20 and the eastern ones land whole in the east slab.
func gridLayers() (*layer.Layer, *layer.Layer) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "s00", Geom: rect(0, 0, 5, 5), Props: map[string]float64{"pob_total": 10, "densidad": 1.5}},
		layer.Feature{ID: "s01", Geom: rect(0, 5, 5, 10), Props: map[string]float64{"pob_total": 30, "densidad": 0.5}},
		layer.Feature{ID: "s10", Geom: rect(5, 0, 10, 5), Props: map[string]float64{"pob_total": 20, "densidad": 3.25}},
		layer.Feature{ID: "s11", Geom: rect(5, 5, 10, 10), Props: map[string]float64{"pob_total": 40, "densidad": 7}},
	)
	tgt := testLayer("EPSG:6372",
		layer.Feature{ID: "t-east", Geom: rect(4, 0, 10, 10)},
		layer.Feature{ID: "t-west", Geom: rect(0, 0, 4, 10)},
	)
	return src, tgt
}

func mustPlan(t *testing.T, additive, intensity []string) Plan {
	t.Helper()
	p, err := NewPlan(additive, intensity, ParseEpsilon(""))
	require.NoError(t, err)
	return p
}

func TestRunTwoSourcesOneTarget(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "A", Geom: rect(0, 0, 10, 10), Props: map[string]float64{"pob_total": 100, "densidad_negocios": 2}},
		layer.Feature{ID: "B", Geom: rect(20, 0, 25, 10), Props: map[string]float64{"pob_total": 50, "densidad_negocios": 4}},
	)
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "T", Geom: rect(0, 0, 30, 20)})

	res, err := Run(context.Background(), src, tgt,
		mustPlan(t, []string{"pob_total"}, []string{"densidad_negocios"}),
		AssembleOptions{PopulationAttr: "pob_total"},
	)
	require.NoError(t, err)
	require.Equal(t, 2, res.Fragments)
	require.Len(t, res.Aggregates, 1)

	values := res.Aggregates[0].Values
	assert.InDelta(t, 150.0, values["pob_total"], 1e-6)
	assert.InDelta(t, (100*2.0+50*4.0)/150.0, values["densidad_negocios"], 1e-9)

	require.Len(t, res.Layer.Features, 1)
	assert.Equal(t, "T", res.Layer.Features[0].ID)
}

func TestRunSeventyThirtySplit(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "A", Geom: rect(0, 0, 10, 10), Props: map[string]float64{"pob_total": 200}},
	)
	tgt := testLayer("EPSG:6372",
		layer.Feature{ID: "t-east", Geom: rect(7, 0, 10, 10)},
		layer.Feature{ID: "t-west", Geom: rect(0, 0, 7, 10)},
	)

	res, err := Run(context.Background(), src, tgt,
		mustPlan(t, []string{"pob_total"}, nil),
		AssembleOptions{PopulationAttr: "pob_total"},
	)
	require.NoError(t, err)
	require.Len(t, res.Aggregates, 2)

	byID := map[string]float64{}
	for _, a := range res.Aggregates {
		byID[a.TargetID] = a.Values["pob_total"]
	}
	assert.InDelta(t, 140.0, byID["t-west"], 1e-6)
	assert.InDelta(t, 60.0, byID["t-east"], 1e-6)
}

func TestRunAdditiveConservation(t *testing.T) {
	src, tgt := gridLayers()

	res, err := Run(context.Background(), src, tgt,
		mustPlan(t, []string{"pob_total"}, nil),
		AssembleOptions{PopulationAttr: "pob_total"},
	)
	require.NoError(t, err)

	var total float64
	for _, a := range res.Aggregates {
		total += a.Values["pob_total"]
	}
	assert.InDelta(t, 100.0, total, 1e-6)
}

func TestOverlayAreaConservation(t *testing.T) {
	src, tgt := gridLayers()

	frags, err := Overlay(context.Background(), src, tgt)
	require.NoError(t, err)

	bySource := map[string]float64{}
	for _, f := range frags {
		bySource[f.SourceID] += f.Area
	}
	for id, sum := range bySource {
		assert.InDelta(t, 25.0, sum, 1e-9, "source %s", id)
	}
}

func TestWeightBounds(t *testing.T) {
	src, tgt := gridLayers()
	eps := ParseEpsilon("")

	frags, err := Overlay(context.Background(), src, tgt)
	require.NoError(t, err)
	for _, f := range frags {
		w := f.Weight(eps)
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0+1e-9)
	}
}

func TestRunWeightedMeanBounded(t *testing.T) {
	src, tgt := gridLayers()

	res, err := Run(context.Background(), src, tgt,
		mustPlan(t, []string{"pob_total"}, []string{"densidad"}),
		AssembleOptions{PopulationAttr: "pob_total"},
	)
	require.NoError(t, err)

	byID := map[string]float64{}
	for _, a := range res.Aggregates {
		byID[a.TargetID] = a.Values["densidad"]
	}
	// West slab only sees the 1.5 and 0.5 sources, equal areas.
	assert.InDelta(t, 1.0, byID["t-west"], 1e-9)
	// East slab sees all four sources.
	assert.InDelta(t, 266.25/60.0, byID["t-east"], 1e-9)
	for _, v := range byID {
		assert.GreaterOrEqual(t, v, 0.5)
		assert.LessOrEqual(t, v, 7.0)
	}
}

func TestRunEpsilonFallbackMatchesDefault(t *testing.T) {
	src, tgt := gridLayers()

	fallback, err := NewPlan([]string{"pob_total"}, nil, ParseEpsilon("not-a-number"))
	require.NoError(t, err)
	explicit, err := NewPlan([]string{"pob_total"}, nil, ParseEpsilon(""))
	require.NoError(t, err)

	resFallback, err := Run(context.Background(), src, tgt, fallback, AssembleOptions{PopulationAttr: "pob_total"})
	require.NoError(t, err)
	resExplicit, err := Run(context.Background(), src, tgt, explicit, AssembleOptions{PopulationAttr: "pob_total"})
	require.NoError(t, err)

	assert.True(t, resFallback.Epsilon.UsedFallback)
	assert.False(t, resExplicit.Epsilon.UsedFallback)
	assert.Equal(t, resExplicit.Aggregates, resFallback.Aggregates)
}

func TestRunIdempotence(t *testing.T) {
	src, tgt := gridLayers()
	plan := mustPlan(t, []string{"pob_total"}, []string{"densidad"})
	opts := AssembleOptions{PopulationAttr: "pob_total"}

	first, err := Run(context.Background(), src, tgt, plan, opts)
	require.NoError(t, err)
	second, err := Run(context.Background(), src, tgt, plan, opts)
	require.NoError(t, err)

	require.Equal(t, first.Aggregates, second.Aggregates)
	require.Len(t, second.Layer.Features, len(first.Layer.Features))
	for i := range first.Layer.Features {
		assert.Equal(t, first.Layer.Features[i].ID, second.Layer.Features[i].ID)
		assert.Equal(t, first.Layer.Features[i].Props, second.Layer.Features[i].Props)
	}
}

func TestRunDropsUncoveredKeepsZeroPopulation(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "A", Geom: rect(0, 0, 5, 5), Props: map[string]float64{"pob_total": 0}},
	)
	tgt := testLayer("EPSG:6372",
		layer.Feature{ID: "t-covered", Geom: rect(0, 0, 5, 5)},
		layer.Feature{ID: "t-far", Geom: rect(500, 500, 510, 510)},
	)

	res, err := Run(context.Background(), src, tgt,
		mustPlan(t, []string{"pob_total"}, nil),
		AssembleOptions{PopulationAttr: "pob_total"},
	)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Layer.Features, 1)
	assert.Equal(t, "t-covered", res.Layer.Features[0].ID)
	assert.InDelta(t, 0.0, res.Layer.Features[0].Props["pob_total"], 1e-12)
}

func TestRunDerivedRatios(t *testing.T) {
	src := testLayer("EPSG:6372",
		layer.Feature{ID: "A", Geom: rect(0, 0, 10, 10), Props: map[string]float64{
			"pob_total": 100, "escolaridad_promedio": 10, "viviendas_totales": 30, "viv_con_internet": 24,
		}},
		layer.Feature{ID: "B", Geom: rect(20, 0, 25, 10), Props: map[string]float64{
			"pob_total": 50, "escolaridad_promedio": 13, "viviendas_totales": 10, "viv_con_internet": 1,
		}},
	)
	tgt := testLayer("EPSG:6372", layer.Feature{ID: "T", Geom: rect(0, 0, 30, 20)})

	plan := mustPlan(t, []string{"pob_total", "viviendas_totales", "viv_con_internet"}, nil)
	plan.Products = []ProductSpec{
		{Name: "escolaridad_x_pob", Value: "escolaridad_promedio", Weight: "pob_total"},
	}
	plan.Ratios = []RatioSpec{
		{Name: "escolaridad_promedio", Numerator: "escolaridad_x_pob", Denominator: "pob_total", Scale: 1},
		{Name: "porc_viv_con_internet", Numerator: "viv_con_internet", Denominator: "viviendas_totales", Scale: 100},
	}

	res, err := Run(context.Background(), src, tgt, plan, AssembleOptions{
		PopulationAttr: "pob_total",
		Rounding: map[string]int{
			"pob_total":             0,
			"escolaridad_promedio":  2,
			"porc_viv_con_internet": 2,
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Aggregates, 1)
	assert.InDelta(t, 1650.0, res.Aggregates[0].Values["escolaridad_x_pob"], 1e-6)

	require.Len(t, res.Layer.Features, 1)
	props := res.Layer.Features[0].Props
	assert.Equal(t, 150.0, props["pob_total"])
	assert.Equal(t, 11.0, props["escolaridad_promedio"])
	assert.Equal(t, 62.5, props["porc_viv_con_internet"])
	assert.InDelta(t, 40.0, props["viviendas_totales"], 1e-6)
}
