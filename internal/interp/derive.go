package interp

// DeriveRatios attaches the plan's ratio indicators to each aggregate.
// Each ratio is scale times numerator over the epsilon-stabilized
// denominator, computed row by row. A row missing either input keeps no
// value for that ratio.
func DeriveRatios(aggs []Aggregate, plan Resolved) {
	for i := range aggs {
		values := aggs[i].Values
		for _, rs := range plan.Ratios {
			num, okN := values[rs.Numerator]
			den, okD := values[rs.Denominator]
			if !okN || !okD {
				continue
			}
			values[rs.Name] = rs.Scale * num / (den + plan.Epsilon.Value)
		}
	}
}
