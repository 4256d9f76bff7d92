package interp

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Reduction tags how an attribute collapses when fragments regroup by
// target unit.
type Reduction int

const (
	// Sum adds area-scaled partial values. Used for counts and totals.
	Sum Reduction = iota
	// AreaWeightedMean averages raw parent values weighted by fragment
	// area. Used for rates and densities.
	AreaWeightedMean
)

func (r Reduction) String() string {
	switch r {
	case Sum:
		return "sum"
	case AreaWeightedMean:
		return "area_weighted_mean"
	default:
		return "unknown"
	}
}

// ProductSpec describes a per-fragment product of an attribute value and
// an already-redistributed partial. The product is summed per target and
// typically feeds a ratio later.
type ProductSpec struct {
	Name   string // output attribute
	Value  string // attribute read from the fragment
	Weight string // partial the value multiplies
}

// RatioSpec describes a per-target ratio of two aggregated attributes,
// with the denominator stabilized by epsilon.
type RatioSpec struct {
	Name        string
	Numerator   string
	Denominator string
	Scale       float64
}

// Plan declares, up front, how every attribute is redistributed and
// reduced. Attributes the data does not carry are skipped during
// reconciliation rather than failing the run.
type Plan struct {
	Additive  []string
	Intensity []string
	Products  []ProductSpec
	Ratios    []RatioSpec
	Epsilon   Epsilon
}

// NewPlan validates that no attribute is claimed by both reduction
// strategies and that neither list repeats a name.
func NewPlan(additive, intensity []string, eps Epsilon) (Plan, error) {
	seen := make(map[string]string, len(additive)+len(intensity))
	for _, a := range additive {
		if prev, ok := seen[a]; ok {
			return Plan{}, eris.Errorf("interp: attribute %q tagged %s and sum", a, prev)
		}
		seen[a] = "sum"
	}
	for _, a := range intensity {
		if prev, ok := seen[a]; ok {
			return Plan{}, eris.Errorf("interp: attribute %q tagged %s and area_weighted_mean", a, prev)
		}
		seen[a] = "area_weighted_mean"
	}
	return Plan{Additive: additive, Intensity: intensity, Epsilon: eps}, nil
}

// Resolved is a plan reconciled against the fragment schema: only
// attributes the overlay actually produced remain, and Skipped records
// the configured names that were absent.
type Resolved struct {
	Additive  []string
	Intensity []string
	Products  []ProductSpec
	Ratios    []RatioSpec
	Epsilon   Epsilon
	Skipped   []string
}

// Reconcile intersects the plan with the attributes present on the
// fragments. An attribute counts as present when any fragment carries
// it. Products survive only when both inputs do. The schema is checked
// here exactly once; downstream stages trust the resolved plan.
func (p Plan) Reconcile(frags []Fragment) Resolved {
	present := make(map[string]bool)
	for i := range frags {
		for k := range frags[i].Props {
			present[k] = true
		}
	}

	r := Resolved{Ratios: p.Ratios, Epsilon: p.Epsilon}
	for _, a := range p.Additive {
		if present[a] {
			r.Additive = append(r.Additive, a)
		} else {
			r.Skipped = append(r.Skipped, a)
		}
	}
	for _, a := range p.Intensity {
		if present[a] {
			r.Intensity = append(r.Intensity, a)
		} else {
			r.Skipped = append(r.Skipped, a)
		}
	}
	additive := make(map[string]bool, len(r.Additive))
	for _, a := range r.Additive {
		additive[a] = true
	}
	for _, ps := range p.Products {
		if present[ps.Value] && additive[ps.Weight] {
			r.Products = append(r.Products, ps)
		} else {
			r.Skipped = append(r.Skipped, ps.Name)
		}
	}

	sort.Strings(r.Additive)
	sort.Strings(r.Intensity)
	sort.Strings(r.Skipped)
	if len(r.Skipped) > 0 {
		zap.L().Warn("interp: plan attributes absent from data, skipping",
			zap.Strings("skipped", r.Skipped),
		)
	}
	return r
}
