// Package interp redistributes attributes between misaligned polygon
// layers by areal interpolation: source polygons are clipped against
// target polygons, additive attributes are split proportionally to the
// clipped areas, intensity attributes are averaged with fragment-area
// weights, and the results are reduced per target unit.
package interp

import (
	"context"

	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
)

// Result is the outcome of one interpolation run.
type Result struct {
	// Layer holds the assembled target units with aggregated attributes.
	Layer *layer.Layer
	// Aggregates are the per-target reduced values before assembly.
	Aggregates []Aggregate
	// Fragments counts the intersection pieces the overlay produced.
	Fragments int
	// Skipped lists planned attributes absent from the data.
	Skipped []string
	// Dropped counts target units removed for missing population.
	Dropped int
	// Epsilon is the stabilizer the run actually used.
	Epsilon Epsilon
}

// Run executes the full interpolation: overlay, schema reconciliation,
// redistribution, aggregation, derived ratios, and final assembly.
func Run(ctx context.Context, src, tgt *layer.Layer, plan Plan, opts AssembleOptions, overlayOpts ...OverlayOption) (*Result, error) {
	frags, err := Overlay(ctx, src, tgt, overlayOpts...)
	if err != nil {
		return nil, err
	}

	resolved := plan.Reconcile(frags)
	Redistribute(frags, resolved)
	aggs := AggregateFragments(frags, resolved)
	DeriveRatios(aggs, resolved)
	assembled, dropped := Assemble(tgt, aggs, opts)

	zap.L().Info("interp: run complete",
		zap.Int("fragments", len(frags)),
		zap.Int("targets", len(aggs)),
		zap.Int("assembled", len(assembled.Features)),
		zap.Int("dropped", dropped),
	)
	return &Result{
		Layer:      assembled,
		Aggregates: aggs,
		Fragments:  len(frags),
		Skipped:    resolved.Skipped,
		Dropped:    dropped,
		Epsilon:    resolved.Epsilon,
	}, nil
}
