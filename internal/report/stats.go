package report

import (
	"math"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/store"
)

// OfficialPopulation2020 is the INEGI census population of Mexico City,
// the reference figure the aggregated dataset is checked against.
const OfficialPopulation2020 = 9_209_944

// PopulationStats compares the aggregated population with the official
// census figure. Served as JSON by the API, printed by the stats command.
type PopulationStats struct {
	Units      int     `json:"unidades"`
	Population float64 `json:"poblacion_calculada"`
	Official   int     `json:"poblacion_oficial_2020"`
	AbsDiff    float64 `json:"diferencia_abs"`
	PctDiff    float64 `json:"diferencia_porcentual"`
}

// Population sums pob_total across every unit and measures the deviation
// from the official count. Interpolation loses the AGEB slivers that fall
// outside all territorial units, so a small negative deviation is normal.
func Population(units []store.Unit) PopulationStats {
	s := PopulationStats{Units: len(units), Official: OfficialPopulation2020}
	for _, u := range units {
		if v, ok := u.Attrs["pob_total"]; ok && !math.IsNaN(v) {
			s.Population += v
		}
	}
	s.AbsDiff = s.Population - float64(s.Official)
	s.PctDiff = 100 * s.AbsDiff / float64(s.Official)
	return s
}

// BusinessStats summarizes the economic indicators across the dataset.
type BusinessStats struct {
	TotalBusinesses float64
	AvgDiversity    float64
	Top             []RankingRow
}

// Business totals num_negocios, averages indice_diversidad and ranks the
// five densest commercial units. AvgDiversity is NaN when no unit carries
// the indicator.
func Business(units []store.Unit) BusinessStats {
	var s BusinessStats
	var divSum float64
	divCount := 0
	for _, u := range units {
		if v, ok := u.Attrs["num_negocios"]; ok && !math.IsNaN(v) {
			s.TotalBusinesses += v
		}
		if v, ok := u.Attrs["indice_diversidad"]; ok && !math.IsNaN(v) {
			divSum += v
			divCount++
		}
	}
	if divCount > 0 {
		s.AvgDiversity = divSum / float64(divCount)
	} else {
		s.AvgDiversity = math.NaN()
	}
	s.Top = topBy(units, "num_negocios", 5)
	return s
}
