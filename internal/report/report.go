// Package report validates the terminal dataset and derives the summary
// figures exposed by the stats command and the HTTP API. Every section is
// computed in memory from the stored units; at CDMX scale that is under
// two thousand rows.
package report

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/store"
)

// Indicator groups of the terminal dataset, by source dimension. The
// validation report describes each group separately and correlates the
// union.
var (
	DemographicCols = []string{"pob_total", "escolaridad_promedio", "porc_viv_con_internet"}
	EconomicCols    = []string{"num_negocios", "indice_diversidad", "densidad_negocios", "densidad_diversidad"}
	SecurityCols    = []string{"tasa_delitos_km2"}
)

// ColumnStats is the eight-number summary of one dataset column. Absent
// and NaN values are excluded from Count and every statistic.
type ColumnStats struct {
	Column string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	P25    float64
	P50    float64
	P75    float64
	Max    float64
}

// RankingRow is one row of a Top-N ranking, carrying the three headline
// indicators alongside the unit identity.
type RankingRow struct {
	CVE        string
	Name       string
	Population float64
	Businesses float64
	CrimeRate  float64
}

// Validation holds every section of the dataset validation report.
type Validation struct {
	Rows        int
	AttrColumns []string
	CRS         string

	NullCounts map[string]int
	TotalNulls int
	InfValues  int
	Missing    []string

	Demographic []ColumnStats
	Economic    []ColumnStats
	Security    []ColumnStats

	CorrColumns []string
	Correlation [][]float64

	TopPopulation []RankingRow
	TopBusinesses []RankingRow
	TopCrimeRate  []RankingRow
}

// Validate runs the full dataset validation: structure, integrity,
// descriptive statistics per dimension, cross-indicator correlation and
// the Top-5 rankings. Expected indicator columns absent from the whole
// dataset land in Missing instead of failing the run.
func Validate(units []store.Unit, crs string) *Validation {
	v := &Validation{Rows: len(units), CRS: crs}

	present := make(map[string]bool)
	for _, u := range units {
		for k := range u.Attrs {
			present[k] = true
		}
	}
	v.AttrColumns = make([]string, 0, len(present))
	for k := range present {
		v.AttrColumns = append(v.AttrColumns, k)
	}
	sort.Strings(v.AttrColumns)

	// A null is a missing or NaN value for a column the dataset carries,
	// or an empty unit name.
	v.NullCounts = make(map[string]int)
	for _, col := range v.AttrColumns {
		n := 0
		for _, u := range units {
			if val, ok := u.Attrs[col]; !ok || math.IsNaN(val) {
				n++
			}
		}
		if n > 0 {
			v.NullCounts[col] = n
			v.TotalNulls += n
		}
	}
	for _, u := range units {
		if u.Name == "" {
			v.NullCounts["nombre_ut"]++
			v.TotalNulls++
		}
		for _, val := range u.Attrs {
			if math.IsInf(val, 0) {
				v.InfValues++
			}
		}
	}

	for _, col := range expectedIndicators() {
		if !present[col] {
			v.Missing = append(v.Missing, col)
		}
	}

	v.Demographic = describeAll(units, DemographicCols, present)
	v.Economic = describeAll(units, EconomicCols, present)
	v.Security = describeAll(units, SecurityCols, present)

	for _, col := range expectedIndicators() {
		if present[col] {
			v.CorrColumns = append(v.CorrColumns, col)
		}
	}
	v.Correlation = correlationMatrix(units, v.CorrColumns)

	v.TopPopulation = topBy(units, "pob_total", 5)
	v.TopBusinesses = topBy(units, "num_negocios", 5)
	v.TopCrimeRate = topBy(units, "tasa_delitos_km2", 5)

	zap.L().Info("report: dataset validated",
		zap.Int("rows", v.Rows),
		zap.Int("columns", len(v.AttrColumns)),
		zap.Int("nulls", v.TotalNulls),
		zap.Int("inf_values", v.InfValues),
		zap.Strings("missing", v.Missing),
	)
	return v
}

func expectedIndicators() []string {
	out := make([]string, 0, len(DemographicCols)+len(EconomicCols)+len(SecurityCols))
	out = append(out, DemographicCols...)
	out = append(out, EconomicCols...)
	out = append(out, SecurityCols...)
	return out
}

func describeAll(units []store.Unit, cols []string, present map[string]bool) []ColumnStats {
	out := make([]ColumnStats, 0, len(cols))
	for _, col := range cols {
		if present[col] {
			out = append(out, describe(units, col))
		}
	}
	return out
}

func describe(units []store.Unit, col string) ColumnStats {
	vals := columnValues(units, col)
	cs := ColumnStats{Column: col, Count: len(vals)}
	if len(vals) == 0 {
		return cs
	}
	sort.Float64s(vals)
	cs.Mean = stat.Mean(vals, nil)
	cs.Std = stat.StdDev(vals, nil)
	cs.Min = vals[0]
	cs.Max = vals[len(vals)-1]
	cs.P25 = stat.Quantile(0.25, stat.Empirical, vals, nil)
	cs.P50 = stat.Quantile(0.5, stat.Empirical, vals, nil)
	cs.P75 = stat.Quantile(0.75, stat.Empirical, vals, nil)
	return cs
}

func columnValues(units []store.Unit, col string) []float64 {
	vals := make([]float64, 0, len(units))
	for _, u := range units {
		if v, ok := u.Attrs[col]; ok && !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

func correlationMatrix(units []store.Unit, cols []string) [][]float64 {
	m := make([][]float64, len(cols))
	for i := range cols {
		m[i] = make([]float64, len(cols))
		for j := range cols {
			m[i][j] = pairCorrelation(units, cols[i], cols[j])
		}
	}
	return m
}

// pairCorrelation is the Pearson correlation over rows where both columns
// hold a finite value. Fewer than two shared rows, or a constant column,
// yield NaN.
func pairCorrelation(units []store.Unit, a, b string) float64 {
	var xs, ys []float64
	for _, u := range units {
		x, okx := u.Attrs[a]
		y, oky := u.Attrs[b]
		if !okx || !oky || !finite(x) || !finite(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// topBy ranks units by one attribute, descending, ties broken by CVE so
// the ranking is deterministic. Units without the attribute do not rank.
func topBy(units []store.Unit, col string, n int) []RankingRow {
	idx := make([]int, 0, len(units))
	for i := range units {
		if v, ok := units[i].Attrs[col]; ok && !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		va, vb := units[idx[a]].Attrs[col], units[idx[b]].Attrs[col]
		if va != vb {
			return va > vb
		}
		return units[idx[a]].CVE < units[idx[b]].CVE
	})
	if len(idx) > n {
		idx = idx[:n]
	}

	rows := make([]RankingRow, len(idx))
	for k, i := range idx {
		u := units[i]
		rows[k] = RankingRow{
			CVE:        u.CVE,
			Name:       u.Name,
			Population: attrOr(u, "pob_total"),
			Businesses: attrOr(u, "num_negocios"),
			CrimeRate:  attrOr(u, "tasa_delitos_km2"),
		}
	}
	return rows
}

func attrOr(u store.Unit, col string) float64 {
	if v, ok := u.Attrs[col]; ok {
		return v
	}
	return math.NaN()
}
