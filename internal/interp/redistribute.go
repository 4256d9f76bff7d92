package interp

// Redistribute fills each fragment's Partials with its area-weighted
// share of the resolved additive attributes, then evaluates the plan's
// products on top of those partials. A fragment missing an attribute
// simply contributes no partial for it.
func Redistribute(frags []Fragment, plan Resolved) {
	for i := range frags {
		f := &frags[i]
		w := f.Weight(plan.Epsilon)
		for _, attr := range plan.Additive {
			if v, ok := f.Props[attr]; ok {
				f.Partials[attr] = v * w
			}
		}
		for _, ps := range plan.Products {
			v, okV := f.Props[ps.Value]
			p, okW := f.Partials[ps.Weight]
			if okV && okW {
				f.Partials[ps.Name] = v * p
			}
		}
	}
}
