package interp

import "sort"

// Aggregate holds the reduced attribute values for one target unit.
type Aggregate struct {
	TargetID string
	Values   map[string]float64
}

// AggregateFragments groups fragments by target id and reduces each
// attribute per its strategy: additive attributes and products sum their
// partials; intensity attributes average the raw parent values weighted
// by fragment area. The result is sorted by target id, and an attribute
// no fragment contributed is absent from Values rather than zero.
func AggregateFragments(frags []Fragment, plan Resolved) []Aggregate {
	type accum struct {
		sums    map[string]float64
		meanNum map[string]float64
		meanDen map[string]float64
	}
	groups := make(map[string]*accum)
	for i := range frags {
		f := &frags[i]
		acc, ok := groups[f.TargetID]
		if !ok {
			acc = &accum{
				sums:    make(map[string]float64),
				meanNum: make(map[string]float64),
				meanDen: make(map[string]float64),
			}
			groups[f.TargetID] = acc
		}
		for attr, v := range f.Partials {
			acc.sums[attr] += v
		}
		for _, attr := range plan.Intensity {
			if v, ok := f.Props[attr]; ok {
				acc.meanNum[attr] += v * f.Area
				acc.meanDen[attr] += f.Area
			}
		}
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	aggs := make([]Aggregate, 0, len(ids))
	for _, id := range ids {
		acc := groups[id]
		values := make(map[string]float64, len(acc.sums)+len(acc.meanNum))
		for attr, v := range acc.sums {
			values[attr] = v
		}
		for attr, num := range acc.meanNum {
			values[attr] = num / acc.meanDen[attr]
		}
		aggs = append(aggs, Aggregate{TargetID: id, Values: values})
	}
	return aggs
}
