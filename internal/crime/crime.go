// Package crime ingests FGJ investigation-file exports and keeps the
// georeferenced incidents in the configured high-impact categories.
package crime

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/fold"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/tabular"
)

// Incident is one high-impact incident with a usable location.
type Incident struct {
	Category string
	Lat      float64
	Lon      float64
}

// Load reads an FGJ export and keeps rows whose category is on the
// high-impact list. Category and header matching ignore case and accents,
// since the files flip between "VIOLACIÓN" and "VIOLACION" across
// publication years. Rows without numeric coordinates are dropped.
func Load(path string, sc config.CrimeSchema) ([]Incident, error) {
	if len(sc.HighImpact) == 0 {
		return nil, eris.New("crime: schema lists no high-impact categories")
	}

	records, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, eris.Errorf("crime: %s has no data rows", path)
	}

	idx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		idx[fold.Key(h)] = i
	}
	catCol, ok := idx["categoria_delito"]
	if !ok {
		return nil, eris.Errorf("crime: %s has no categoria_delito column", path)
	}
	latCol, latOK := idx["latitud"]
	lonCol, lonOK := idx["longitud"]
	if !latOK || !lonOK {
		return nil, eris.Errorf("crime: %s is missing coordinate columns", path)
	}

	highImpact := fold.KeySet(sc.HighImpact)

	var dropped int
	out := make([]Incident, 0, len(records)-1)
	for _, rec := range records[1:] {
		if catCol >= len(rec) {
			continue
		}
		category := strings.TrimSpace(rec[catCol])
		if !highImpact[fold.Key(category)] {
			continue
		}
		if latCol >= len(rec) || lonCol >= len(rec) {
			dropped++
			continue
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[latCol]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(rec[lonCol]), 64)
		if latErr != nil || lonErr != nil {
			dropped++
			continue
		}
		out = append(out, Incident{Category: category, Lat: lat, Lon: lon})
	}

	zap.L().Info("crime: loaded high-impact incidents",
		zap.String("path", path),
		zap.Int("incidents", len(out)),
		zap.Int("dropped", dropped),
	)
	return out, nil
}
