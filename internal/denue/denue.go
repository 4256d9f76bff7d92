// Package denue consolidates the historical DENUE business registry from
// INEGI ZIP archives into tabular snapshots. Each archive holds one CSV
// vintage with its own header spelling and encoding; consolidation maps
// every vintage onto one canonical column set and stamps each row with the
// snapshot date parsed from the archive name.
package denue

import (
	"archive/zip"
	"context"
	"io"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/fold"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/tabular"
)

// snapshotColumn stamps each consolidated row with its archive date.
const snapshotColumn = "timestamp"

// ConsolidateStats summarizes one consolidation run.
type ConsolidateStats struct {
	Archives        int // archives merged into the output
	SkippedArchives int // archives without a snapshot date or readable CSV
	Rows            int
	DroppedRows     int // rows without usable coordinates
}

type options struct {
	workers int
}

// Option adjusts consolidation behavior.
type Option func(*options)

// WithWorkers caps the number of archives processed concurrently.
// Zero or negative means one per CPU.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Consolidate merges every denue_*.zip under zipDir into one gzipped CSV at
// outPath. Archives that yield no snapshot date or no readable CSV are
// skipped with a warning; rows without numeric in-world coordinates are
// dropped. Output rows keep archive order, which is sorted by file name.
func Consolidate(ctx context.Context, zipDir, outPath string, sc config.DenueSchema, opts ...Option) (*ConsolidateStats, error) {
	o := options{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}

	archives, err := filepath.Glob(filepath.Join(zipDir, "denue_*.zip"))
	if err != nil {
		return nil, eris.Wrap(err, "denue: scan archive directory")
	}
	sort.Strings(archives)
	if len(archives) == 0 {
		return nil, eris.Errorf("denue: no denue_*.zip archives under %s", zipDir)
	}

	standard, variants := columnTargets(sc.Columns)
	if len(standard) == 0 {
		return nil, eris.New("denue: schema declares no columns")
	}

	results := make([]archiveRows, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range archives {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = processArchive(archives[i], standard, variants, sc.DateOverrides)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "denue: consolidate archives")
	}

	stats := &ConsolidateStats{}
	header := append(append([]string{}, standard...), snapshotColumn)
	rows := make([][]string, 0)
	for _, res := range results {
		if !res.ok {
			stats.SkippedArchives++
			continue
		}
		stats.Archives++
		stats.DroppedRows += res.dropped
		rows = append(rows, res.rows...)
	}
	stats.Rows = len(rows)
	if stats.Archives == 0 {
		return nil, eris.Errorf("denue: none of the %d archives could be consolidated", len(archives))
	}
	if stats.Rows == 0 {
		return nil, eris.New("denue: consolidation produced no rows")
	}

	if err := tabular.WriteFile(outPath, header, rows); err != nil {
		return nil, err
	}
	zap.L().Info("denue: consolidated historical archives",
		zap.Int("archives", stats.Archives),
		zap.Int("skipped_archives", stats.SkippedArchives),
		zap.Int("rows", stats.Rows),
		zap.Int("dropped_rows", stats.DroppedRows),
		zap.String("output", outPath),
	)
	return stats, nil
}

// columnTargets returns the canonical column names in deterministic order
// plus, per canonical name, the folded set of header variants that map to it.
func columnTargets(columns map[string][]string) ([]string, map[string]map[string]bool) {
	standard := make([]string, 0, len(columns))
	variants := make(map[string]map[string]bool, len(columns))
	for name, raw := range columns {
		standard = append(standard, name)
		variants[name] = fold.KeySet(raw)
	}
	sort.Strings(standard)
	return standard, variants
}

type archiveRows struct {
	rows    [][]string
	dropped int
	ok      bool
}

// processArchive reads one ZIP vintage into consolidated rows. Failures are
// contained: a bad archive is logged and skipped so the rest of the batch
// still consolidates.
func processArchive(path string, standard []string, variants map[string]map[string]bool, overrides map[string]string) archiveRows {
	name := filepath.Base(path)
	snapshot := snapshotDate(name, overrides)
	if snapshot == "" {
		zap.L().Warn("denue: no snapshot date in archive name, skipping", zap.String("archive", name))
		return archiveRows{}
	}

	records, err := readLargestCSV(path)
	if err != nil {
		zap.L().Error("denue: unreadable archive, skipping", zap.String("archive", name), zap.Error(err))
		return archiveRows{}
	}
	if len(records) < 2 {
		zap.L().Warn("denue: archive CSV has no data rows, skipping", zap.String("archive", name))
		return archiveRows{}
	}

	idx := headerIndex(records[0], standard, variants)
	latCol, lonCol := colOr(idx, "latitud"), colOr(idx, "longitud")

	out := archiveRows{rows: make([][]string, 0, len(records)-1), ok: true}
	for _, rec := range records[1:] {
		lat, latOK := parseCoord(rec, latCol, 90)
		lon, lonOK := parseCoord(rec, lonCol, 180)
		if !latOK || !lonOK {
			out.dropped++
			continue
		}
		row := make([]string, 0, len(standard)+1)
		for _, col := range standard {
			switch col {
			case "latitud":
				row = append(row, strconv.FormatFloat(lat, 'g', -1, 64))
			case "longitud":
				row = append(row, strconv.FormatFloat(lon, 'g', -1, 64))
			default:
				row = append(row, cell(rec, idx[col]))
			}
		}
		row = append(row, snapshot)
		out.rows = append(out.rows, row)
	}
	return out
}

// headerIndex maps each canonical column to its position in the vintage
// header, or -1 when no variant matches. The first matching header wins.
func headerIndex(header []string, standard []string, variants map[string]map[string]bool) map[string]int {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = fold.Key(h)
	}
	idx := make(map[string]int, len(standard))
	for _, col := range standard {
		idx[col] = -1
		for i, h := range folded {
			if variants[col][h] {
				idx[col] = i
				break
			}
		}
	}
	return idx
}

// parseCoord parses one coordinate cell and checks it against the world
// limit for its axis.
func parseCoord(rec []string, i int, limit float64) (float64, bool) {
	raw := cell(rec, i)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		return 0, false
	}
	return v, true
}

// readLargestCSV opens the biggest CSV entry of the archive, the convention
// INEGI uses for the data table (smaller CSVs are metadata dictionaries).
func readLargestCSV(path string) ([][]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrap(err, "denue: open archive")
	}
	defer r.Close() //nolint:errcheck

	var main *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		if main == nil || f.UncompressedSize64 > main.UncompressedSize64 {
			main = f
		}
	}
	if main == nil {
		return nil, eris.New("denue: no CSV entry in archive")
	}

	rc, err := main.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "denue: open entry %s", main.Name)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "denue: read entry %s", main.Name)
	}
	return tabular.Decode(data)
}

// cell returns the trimmed value at index i, or "" when out of range.
func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// colOr returns the index recorded for name, or -1 when absent.
func colOr(idx map[string]int, name string) int {
	if i, ok := idx[name]; ok {
		return i
	}
	return -1
}

var (
	copySuffixRe = regexp.MustCompile(`\s*\(\d+\)$`)
	monthYearRe  = regexp.MustCompile(`(\d{2})(\d{2})`)
	yearRe       = regexp.MustCompile(`(\d{4})`)
)

// snapshotDate derives the "YYYY-MM" snapshot from an archive file name.
// Explicit overrides win. Otherwise the leftmost four-digit run is read as
// MMYY (month 01-12, year 15-99); failing that, a four-digit YYYY between
// 2010 and 2025 maps to January. Download copy suffixes like
// "denue_0417 (1).zip" are ignored.
func snapshotDate(name string, overrides map[string]string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = copySuffixRe.ReplaceAllString(stem, "")

	if date, ok := overrides[stem]; ok {
		return date
	}

	if m := monthYearRe.FindStringSubmatch(stem); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && year >= 15 && year <= 99 {
			return "20" + m[2] + "-" + m[1]
		}
	}
	if m := yearRe.FindStringSubmatch(stem); m != nil {
		year, _ := strconv.Atoi(m[1])
		if year >= 2010 && year <= 2025 {
			return m[1] + "-01"
		}
	}
	return ""
}
