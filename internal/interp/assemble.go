package interp

import (
	"math"

	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
)

// AssembleOptions tunes the final join.
type AssembleOptions struct {
	// PopulationAttr names the attribute whose absence marks a target
	// unit as uncovered. A present zero is a real value and is kept.
	PopulationAttr string
	// Rounding maps attribute names to decimal places applied at the end.
	Rounding map[string]int
}

// Assemble left-joins the aggregates onto the target layer, preserving
// the target's feature order and geometry. Every aggregated attribute is
// carried into the output. Units whose population attribute never
// aggregated are dropped and counted; the count is returned alongside
// the assembled layer.
func Assemble(tgt *layer.Layer, aggs []Aggregate, opts AssembleOptions) (*layer.Layer, int) {
	byID := make(map[string]map[string]float64, len(aggs))
	for _, a := range aggs {
		byID[a.TargetID] = a.Values
	}

	out := &layer.Layer{CRS: tgt.CRS}
	dropped := 0
	for _, f := range tgt.Features {
		values, ok := byID[f.ID]
		if !ok {
			dropped++
			continue
		}
		if opts.PopulationAttr != "" {
			if _, ok := values[opts.PopulationAttr]; !ok {
				dropped++
				continue
			}
		}
		props := make(map[string]float64, len(values))
		for attr, v := range values {
			if places, ok := opts.Rounding[attr]; ok {
				v = roundTo(v, places)
			}
			props[attr] = v
		}
		out.Features = append(out.Features, layer.Feature{
			ID:    f.ID,
			Name:  f.Name,
			Geom:  f.Geom,
			Props: props,
		})
	}
	if dropped > 0 {
		zap.L().Warn("interp: dropped target units without population coverage",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(out.Features)),
		)
	}
	return out, dropped
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
