// Package census ingests INEGI RESAGEBURB microdata and reduces it from
// block-level rows to per-AGEB attribute tables keyed by CVEGEO.
package census

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/tabular"
)

// Table maps a 13-character CVEGEO to aggregated attribute values.
type Table map[string]map[string]float64

// The RESAGEBURB layout splits the geographic key across these columns.
// MZA "000" marks locality- and AGEB-level aggregate rows, which would
// double-count the blocks beneath them.
var keyColumns = []string{"ENTIDAD", "MUN", "LOC", "AGEB", "MZA"}

// Load reads a RESAGEBURB file (.csv or .xlsx), keeps block-level rows,
// and reduces the schema's variables per AGEB. Sum variables reduce to 0
// when every block value is confidential; mean variables are omitted
// instead, since an average over nothing has no value.
func Load(path string, vars []config.CensusVariable) (Table, error) {
	for _, v := range vars {
		if v.Reduce != "sum" && v.Reduce != "mean" {
			return nil, eris.Errorf("census: variable %s has unknown reduction %q", v.Name, v.Reduce)
		}
	}

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".gz":
		rows, err = tabular.ReadFile(path)
	case ".xlsx":
		rows, err = tabular.ReadXLSX(path)
	default:
		return nil, eris.Errorf("census: unsupported file format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.Errorf("census: %s has no data rows", path)
	}

	return reduce(rows, vars)
}

type accum struct {
	sums   map[string]float64
	counts map[string]int
}

func reduce(rows [][]string, vars []config.CensusVariable) (Table, error) {
	header := headerIndex(rows[0])

	keys := make(map[string]int, len(keyColumns))
	var missing []string
	for _, col := range keyColumns {
		idx, ok := header[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		keys[col] = idx
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("census: key columns %v not found, available: %v",
			missing, sortedColumns(header))
	}

	var present []config.CensusVariable
	var skipped []string
	cols := make(map[string]int, len(vars))
	for _, v := range vars {
		idx, ok := header[strings.ToUpper(v.Raw)]
		if !ok {
			skipped = append(skipped, v.Raw)
			continue
		}
		cols[v.Name] = idx
		present = append(present, v)
	}
	if len(skipped) > 0 {
		zap.L().Warn("census: schema variables absent from file", zap.Strings("skipped", skipped))
	}
	if len(present) == 0 {
		return nil, eris.New("census: none of the schema variables are present in the file")
	}

	accums := make(map[string]*accum)
	blocks := 0
	for _, row := range rows[1:] {
		mza, ok := cell(row, keys["MZA"])
		if !ok || pad(mza, 3) == "000" {
			continue
		}
		ent, okE := cell(row, keys["ENTIDAD"])
		mun, okM := cell(row, keys["MUN"])
		loc, okL := cell(row, keys["LOC"])
		ageb, okA := cell(row, keys["AGEB"])
		if !okE || !okM || !okL || !okA {
			continue
		}
		blocks++

		cvegeo := pad(ent, 2) + pad(mun, 3) + pad(loc, 4) + pad(ageb, 4)
		acc, ok := accums[cvegeo]
		if !ok {
			acc = &accum{sums: make(map[string]float64), counts: make(map[string]int)}
			accums[cvegeo] = acc
		}
		for _, v := range present {
			raw, ok := cell(row, cols[v.Name])
			if !ok {
				continue
			}
			val, ok := parseNumeric(raw)
			if !ok {
				continue
			}
			acc.sums[v.Name] += val
			acc.counts[v.Name]++
		}
	}
	if blocks == 0 {
		return nil, eris.New("census: no block-level rows after filtering")
	}

	table := make(Table, len(accums))
	for cvegeo, acc := range accums {
		values := make(map[string]float64, len(present))
		for _, v := range present {
			switch v.Reduce {
			case "sum":
				values[v.Name] = acc.sums[v.Name]
			case "mean":
				if n := acc.counts[v.Name]; n > 0 {
					values[v.Name] = acc.sums[v.Name] / float64(n)
				}
			}
		}
		table[cvegeo] = values
	}

	zap.L().Info("census: reduced block rows to AGEB table",
		zap.Int("blocks", blocks),
		zap.Int("agebs", len(table)),
	)
	return table, nil
}

// Merge attaches aggregated census attributes to the matching AGEB
// features and drops features without census coverage. Returns the
// number of features dropped.
func Merge(l *layer.Layer, t Table) int {
	kept := l.Features[:0]
	dropped := 0
	for _, f := range l.Features {
		values, ok := t[f.ID]
		if !ok {
			dropped++
			continue
		}
		if f.Props == nil {
			f.Props = make(map[string]float64, len(values))
		}
		for k, v := range values {
			f.Props[k] = v
		}
		kept = append(kept, f)
	}
	l.Features = kept
	if dropped > 0 {
		zap.L().Warn("census: AGEBs without census coverage dropped",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(kept)),
		)
	}
	return dropped
}

func headerIndex(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, name := range row {
		name = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		if name != "" {
			idx[name] = i
		}
	}
	return idx
}

func sortedColumns(header map[string]int) []string {
	cols := make([]string, 0, len(header))
	for name := range header {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

func cell(row []string, i int) (string, bool) {
	if i >= len(row) {
		return "", false
	}
	s := strings.TrimSpace(row[i])
	if s == "" {
		return "", false
	}
	return s, true
}

// parseNumeric coerces a census cell to a float. INEGI publishes "*" for
// confidential values and "N/D" for unavailable ones; those, and anything
// else unparseable, report false.
func parseNumeric(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// pad left-pads a key component with zeros, first stripping any decimal
// artifact a spreadsheet export may have introduced.
func pad(s string, width int) string {
	s = strings.SplitN(strings.TrimSpace(s), ".", 2)[0]
	for len(s) < width {
		s = "0" + s
	}
	return s
}
