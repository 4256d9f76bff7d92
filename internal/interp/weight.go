package interp

// ArealWeight is the fragment's share of its source polygon: fragment
// area over the source's total area, with the denominator stabilized so
// degenerate sources yield a near-zero weight instead of dividing by
// zero.
func ArealWeight(fragmentArea, sourceArea float64, eps Epsilon) float64 {
	return fragmentArea / (sourceArea + eps.Value)
}

// Weight returns the fragment's areal weight under eps.
func (f *Fragment) Weight(eps Epsilon) float64 {
	return ArealWeight(f.Area, f.SourceArea, eps)
}
