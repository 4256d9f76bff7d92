// Package tabular reads and writes the flat files of the raw data
// inventory: CSV with the encoding quirks of INEGI and FGJ exports (UTF-8
// or Latin-1, stray BOMs), transparent gzip by file suffix, and legacy
// XLSX workbooks.
package tabular

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// Decode parses CSV bytes, falling back to Latin-1 when the payload is not
// valid UTF-8. Government exports predating 2019 mostly ship Latin-1.
func Decode(data []byte) ([][]string, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, eris.Wrap(err, "tabular: decode latin-1")
		}
		data = decoded
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: parse csv")
	}
	return records, nil
}

// ReadFile reads a whole CSV file into rows, gunzipping .gz paths.
func ReadFile(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: gunzip %s", path)
		}
		defer zr.Close() //nolint:errcheck
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(zr); err != nil {
			return nil, eris.Wrapf(err, "tabular: gunzip %s", path)
		}
		data = buf.Bytes()
	}
	return Decode(data)
}

// WriteFile writes header plus rows as CSV at path, gzipping when the path
// ends in .gz. Parent directories are created as needed.
func WriteFile(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "tabular: create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabular: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	var w *csv.Writer
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = csv.NewWriter(zw)
	} else {
		w = csv.NewWriter(f)
	}

	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "tabular: write rows")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "tabular: flush csv")
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return eris.Wrap(err, "tabular: close gzip stream")
		}
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "tabular: close %s", path)
	}
	return nil
}
