// Package feature derives per-AGEB indicators from point datasets: business
// counts and sector diversity from the DENUE, incident counts from the FGJ
// files, and their densities over the AGEB area. Points must share the
// polygon layer's coordinate space; the join itself is pure plane geometry.
package feature

import (
	"github.com/tidwall/rtree"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/crime"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/denue"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/geometry"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/interp"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
)

// Joiner indexes a polygon layer for repeated point-in-polygon lookups.
type Joiner struct {
	layer *layer.Layer
	index rtree.RTreeG[int]
}

// NewJoiner builds the spatial index over the layer's feature bounds.
func NewJoiner(l *layer.Layer) *Joiner {
	j := &Joiner{layer: l}
	for i := range l.Features {
		min, max := geometry.BoundsOf(l.Features[i].Geom)
		j.index.Insert(min, max, i)
	}
	return j
}

// Locate returns the index of the feature containing (x, y), or -1 when no
// polygon does. When overlapping candidates both contain the point, the
// lowest feature index wins, so lookups are deterministic.
func (j *Joiner) Locate(x, y float64) int {
	pt := [2]float64{x, y}
	best := -1
	j.index.Search(pt, pt, func(_, _ [2]float64, i int) bool {
		if (best == -1 || i < best) && geometry.ContainsXY(j.layer.Features[i].Geom, x, y) {
			best = i
		}
		return true
	})
	return best
}

// EconomicStats summarizes one economic join.
type EconomicStats struct {
	Snapshot  string
	Matched   int
	Unmatched int
}

// Economic attaches num_negocios, indice_diversidad and their densities per
// km² to every feature, counting only businesses from the latest snapshot.
// AGEBs without businesses get explicit zeros. The area denominator comes
// from the feature's stored total area in m².
func Economic(j *Joiner, biz []denue.Business, eps interp.Epsilon) EconomicStats {
	stats := EconomicStats{Snapshot: denue.LatestSnapshot(biz)}

	counts := make([]float64, len(j.layer.Features))
	sectors := make([]map[string]bool, len(j.layer.Features))
	for _, b := range biz {
		if b.Snapshot != stats.Snapshot {
			continue
		}
		i := j.Locate(b.Lon, b.Lat)
		if i < 0 {
			stats.Unmatched++
			continue
		}
		stats.Matched++
		counts[i]++
		if b.SCIAN != "" {
			if sectors[i] == nil {
				sectors[i] = make(map[string]bool)
			}
			sectors[i][b.SCIAN] = true
		}
	}

	missingArea := 0
	for i := range j.layer.Features {
		props := j.layer.Features[i].Props
		diversity := float64(len(sectors[i]))
		denom := densityDenominator(props, eps, &missingArea)
		props["num_negocios"] = counts[i]
		props["indice_diversidad"] = diversity
		props["densidad_negocios"] = counts[i] / denom
		props["densidad_diversidad"] = diversity / denom
	}
	warnMissingArea(missingArea)

	zap.L().Info("feature: economic indicators attached",
		zap.String("snapshot", stats.Snapshot),
		zap.Int("matched", stats.Matched),
		zap.Int("unmatched", stats.Unmatched),
	)
	return stats
}

// SecurityStats summarizes one security join.
type SecurityStats struct {
	Matched   int
	Unmatched int
}

// Security attaches num_delitos and tasa_delitos_km2 to every feature.
// AGEBs without incidents get explicit zeros.
func Security(j *Joiner, incidents []crime.Incident, eps interp.Epsilon) SecurityStats {
	var stats SecurityStats

	counts := make([]float64, len(j.layer.Features))
	for _, inc := range incidents {
		i := j.Locate(inc.Lon, inc.Lat)
		if i < 0 {
			stats.Unmatched++
			continue
		}
		stats.Matched++
		counts[i]++
	}

	missingArea := 0
	for i := range j.layer.Features {
		props := j.layer.Features[i].Props
		denom := densityDenominator(props, eps, &missingArea)
		props["num_delitos"] = counts[i]
		props["tasa_delitos_km2"] = counts[i] / denom
	}
	warnMissingArea(missingArea)

	zap.L().Info("feature: security indicators attached",
		zap.Int("matched", stats.Matched),
		zap.Int("unmatched", stats.Unmatched),
	)
	return stats
}

// densityDenominator converts the stored m² total area to km² and pads it
// with ε so a degenerate polygon yields a near-zero density, not a crash.
func densityDenominator(props map[string]float64, eps interp.Epsilon, missing *int) float64 {
	area, ok := props[interp.SourceAreaAttr]
	if !ok {
		*missing++
	}
	return area/1e6 + eps.Value
}

func warnMissingArea(n int) {
	if n > 0 {
		zap.L().Warn("feature: features without a stored total area",
			zap.Int("features", n),
			zap.String("attr", interp.SourceAreaAttr),
		)
	}
}
