package denue

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/fold"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/tabular"
)

// cleanedColumns is the pinned column order of the cleaned dataset.
var cleanedColumns = []string{
	"id_denue", "timestamp", "latitud", "longitud",
	"cve_ageb", "codigo_postal", "cve_scian", "estrato_personal",
}

// CleanStats summarizes one cleaning run.
type CleanStats struct {
	Rows       int
	Dropped    int // rows without coordinates inside bounds or an AGEB key
	Duplicates int // repeated id within the same snapshot
}

// Business is one cleaned DENUE record.
type Business struct {
	ID         string
	Snapshot   string // "YYYY-MM"
	Lat        float64
	Lon        float64
	AGEB       string // 4-digit AGEB key fragment
	PostalCode string
	SCIAN      string
	Stratum    int // 0 when the vintage had no mappable personnel stratum
}

// Clean standardizes a consolidated archive into the final dataset: rows at
// the (0,0) null island or outside bounds go, rows without an AGEB key go,
// the personnel stratum collapses to its ordinal, the AGEB key is zero
// padded, and repeated ids within one snapshot are dropped.
func Clean(inPath, outPath string, sc config.DenueSchema, bounds config.Bounds) (*CleanStats, error) {
	records, err := tabular.ReadFile(inPath)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, eris.Errorf("denue: %s has no data rows", inPath)
	}

	idx := make(map[string]int)
	for i, h := range records[0] {
		idx[fold.Key(h)] = i
	}
	idCol, tsCol := colOr(idx, "id_denue"), colOr(idx, snapshotColumn)
	latCol, lonCol := colOr(idx, "latitud"), colOr(idx, "longitud")
	agebCol, cpCol := colOr(idx, "cve_ageb"), colOr(idx, "codigo_postal")
	scianCol, estratoCol := colOr(idx, "cve_scian"), colOr(idx, "personal_ocupado_estrato")
	if latCol < 0 || lonCol < 0 || tsCol < 0 {
		return nil, eris.Errorf("denue: %s is missing coordinate or timestamp columns", inPath)
	}

	stratum := make(map[string]int, len(sc.EstratoMap))
	for k, v := range sc.EstratoMap {
		stratum[fold.Key(k)] = v
	}

	stats := &CleanStats{}
	seen := make(map[string]bool)
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		lat, latErr := strconv.ParseFloat(cell(rec, latCol), 64)
		lon, lonErr := strconv.ParseFloat(cell(rec, lonCol), 64)
		if latErr != nil || lonErr != nil || (lat == 0 && lon == 0) {
			stats.Dropped++
			continue
		}
		if !bounds.Empty() && !bounds.Contains(lat, lon) {
			stats.Dropped++
			continue
		}
		ageb := cell(rec, agebCol)
		if ageb == "" {
			stats.Dropped++
			continue
		}

		id, ts := cell(rec, idCol), cell(rec, tsCol)
		if id != "" {
			key := id + "|" + ts
			if seen[key] {
				stats.Duplicates++
				continue
			}
			seen[key] = true
		}

		estrato := ""
		if raw := cell(rec, estratoCol); raw != "" {
			if ord, ok := stratum[fold.Key(raw)]; ok {
				estrato = strconv.Itoa(ord)
			}
		}

		rows = append(rows, []string{
			id, ts,
			strconv.FormatFloat(lat, 'g', -1, 64),
			strconv.FormatFloat(lon, 'g', -1, 64),
			padAGEB(ageb),
			cell(rec, cpCol),
			cell(rec, scianCol),
			estrato,
		})
	}
	stats.Rows = len(rows)
	if stats.Rows == 0 {
		return nil, eris.Errorf("denue: no rows survived cleaning of %s", inPath)
	}

	if err := tabular.WriteFile(outPath, cleanedColumns, rows); err != nil {
		return nil, err
	}
	zap.L().Info("denue: cleaned consolidated dataset",
		zap.Int("rows", stats.Rows),
		zap.Int("dropped", stats.Dropped),
		zap.Int("duplicates", stats.Duplicates),
		zap.String("output", outPath),
	)
	return stats, nil
}

// padAGEB strips a trailing decimal artifact (spreadsheet exports turn
// "0417" into "417.0") and left-pads the key back to four digits.
func padAGEB(v string) string {
	v = strings.SplitN(v, ".", 2)[0]
	for len(v) < 4 {
		v = "0" + v
	}
	return v
}

// LoadCleaned reads a cleaned dataset back into memory for the spatial
// join. Rows with unparseable coordinates are skipped with a warning.
func LoadCleaned(path string) ([]Business, error) {
	records, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, eris.Errorf("denue: %s has no data rows", path)
	}

	idx := make(map[string]int)
	for i, h := range records[0] {
		idx[fold.Key(h)] = i
	}
	for _, required := range []string{"timestamp", "latitud", "longitud"} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("denue: %s is missing column %q", path, required)
		}
	}

	skipped := 0
	out := make([]Business, 0, len(records)-1)
	for _, rec := range records[1:] {
		lat, latErr := strconv.ParseFloat(cell(rec, idx["latitud"]), 64)
		lon, lonErr := strconv.ParseFloat(cell(rec, idx["longitud"]), 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}
		ord, _ := strconv.Atoi(cell(rec, colOr(idx, "estrato_personal")))
		out = append(out, Business{
			ID:         cell(rec, colOr(idx, "id_denue")),
			Snapshot:   cell(rec, idx["timestamp"]),
			Lat:        lat,
			Lon:        lon,
			AGEB:       cell(rec, colOr(idx, "cve_ageb")),
			PostalCode: cell(rec, colOr(idx, "codigo_postal")),
			SCIAN:      cell(rec, colOr(idx, "cve_scian")),
			Stratum:    ord,
		})
	}
	if skipped > 0 {
		zap.L().Warn("denue: skipped rows with unparseable coordinates",
			zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("denue: loaded cleaned dataset",
		zap.String("path", path), zap.Int("businesses", len(out)))
	return out, nil
}

// LatestSnapshot returns the most recent snapshot label, relying on the
// zero-padded "YYYY-MM" form ordering lexicographically.
func LatestSnapshot(biz []Business) string {
	latest := ""
	for _, b := range biz {
		if b.Snapshot > latest {
			latest = b.Snapshot
		}
	}
	return latest
}
