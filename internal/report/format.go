package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Numbers are grouped the Mexican way, matching the figures INEGI
// publishes.
var printer = message.NewPrinter(language.MustParse("es-MX"))

// FormatValidation renders the validation report for the console.
func FormatValidation(v *Validation) string {
	var b strings.Builder

	banner(&b, "Análisis Estructural")
	fmt.Fprintf(&b, "Dimensiones: %d filas x %d columnas\n", v.Rows, len(v.AttrColumns)+3)
	fmt.Fprintf(&b, "Sistema de Coordenadas (CRS): %s\n", v.CRS)
	cols := append([]string{"cve_ut", "nombre_ut", "geometry"}, v.AttrColumns...)
	fmt.Fprintf(&b, "Columnas: %s\n", strings.Join(cols, ", "))
	if len(v.Missing) > 0 {
		fmt.Fprintf(&b, "Indicadores faltantes: %s\n", strings.Join(v.Missing, ", "))
	}

	banner(&b, "Análisis de Integridad de Datos")
	fmt.Fprintf(&b, "Conteo total de valores nulos en el dataset: %d\n", v.TotalNulls)
	if v.TotalNulls > 0 {
		b.WriteString("Columnas con valores nulos:\n")
		nullCols := make([]string, 0, len(v.NullCounts))
		for col := range v.NullCounts {
			nullCols = append(nullCols, col)
		}
		sort.Strings(nullCols)
		for _, col := range nullCols {
			fmt.Fprintf(&b, "  %s: %d\n", col, v.NullCounts[col])
		}
	}
	fmt.Fprintf(&b, "Conteo total de valores infinitos en el dataset: %d\n", v.InfValues)

	banner(&b, "Análisis Estadístico Descriptivo")
	writeDescribe(&b, "A) Dimensión Demográfica (Censo)", v.Demographic)
	writeDescribe(&b, "B) Dimensión Económica (DENUE)", v.Economic)
	writeDescribe(&b, "C) Dimensión de Seguridad (FGJ)", v.Security)

	banner(&b, "Análisis de Correlación entre Features")
	writeCorrelation(&b, v.CorrColumns, v.Correlation)

	banner(&b, "Análisis de Rankings (Top 5)")
	writeRanking(&b, "Top 5 por Población Total", v.TopPopulation)
	writeRanking(&b, "Top 5 por Número de Negocios", v.TopBusinesses)
	writeRanking(&b, "Top 5 por Tasa de Delitos (más alta)", v.TopCrimeRate)

	b.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	return b.String()
}

// FormatPopulation renders the population check for the console.
func FormatPopulation(s PopulationStats) string {
	var b strings.Builder
	line := strings.Repeat("=", 50)
	b.WriteString("\n" + line + "\n")
	b.WriteString("      VERIFICACIÓN DE POBLACIÓN TOTAL CALCULADA\n")
	b.WriteString(line + "\n")
	printer.Fprintf(&b, "Población Total (dataset final):   %d\n", int64(s.Population))
	printer.Fprintf(&b, "Población Oficial (Censo 2020):    %d\n", s.Official)
	fmt.Fprintf(&b, "Diferencia Porcentual:             %.2f%%\n", s.PctDiff)
	b.WriteString(line + "\n")
	return b.String()
}

// FormatBusiness renders the economic summary for the console.
func FormatBusiness(s BusinessStats) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	b.WriteString("\n" + line + "\n")
	b.WriteString("      RESUMEN DE CARACTERÍSTICAS ECONÓMICAS (DENUE)\n")
	b.WriteString(line + "\n")
	printer.Fprintf(&b, "Total de Negocios (estimado en Unidades Territoriales): %d\n", int64(s.TotalBusinesses))
	fmt.Fprintf(&b, "Promedio de Diversidad Comercial por Unidad Territorial: %.1f (tipos de negocio únicos)\n", s.AvgDiversity)
	b.WriteString("\n--- Top 5 Unidades Territoriales por # de Negocios ---\n")
	fmt.Fprintf(&b, "%-36s %12s\n", "nombre_ut", "num_negocios")
	for _, r := range s.Top {
		fmt.Fprintf(&b, "%-36s %12.0f\n", r.Name, r.Businesses)
	}
	b.WriteString(line + "\n")
	return b.String()
}

func banner(b *strings.Builder, title string) {
	line := strings.Repeat("=", 80)
	fmt.Fprintf(b, "\n%s\n| %s |\n%s\n", line, center(strings.ToUpper(title), 76), line)
}

func center(s string, width int) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	left := gap / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
}

func writeDescribe(b *strings.Builder, title string, stats []ColumnStats) {
	fmt.Fprintf(b, "\n--- %s ---\n", title)
	if len(stats) == 0 {
		b.WriteString("Sin columnas presentes.\n")
		return
	}
	fmt.Fprintf(b, "%-24s %8s %14s %14s %14s %14s %14s %14s %14s\n",
		"columna", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
	for _, cs := range stats {
		fmt.Fprintf(b, "%-24s %8d", cs.Column, cs.Count)
		for _, val := range []float64{cs.Mean, cs.Std, cs.Min, cs.P25, cs.P50, cs.P75, cs.Max} {
			fmt.Fprintf(b, " %14s", printer.Sprintf("%.2f", val))
		}
		b.WriteString("\n")
	}
}

func writeCorrelation(b *strings.Builder, cols []string, m [][]float64) {
	b.WriteString("Matriz de Correlación:\n")
	if len(cols) == 0 {
		b.WriteString("Sin columnas presentes.\n")
		return
	}
	fmt.Fprintf(b, "%-24s", "")
	for _, c := range cols {
		fmt.Fprintf(b, " %22s", c)
	}
	b.WriteString("\n")
	for i, c := range cols {
		fmt.Fprintf(b, "%-24s", c)
		for j := range cols {
			fmt.Fprintf(b, " %22.2f", m[i][j])
		}
		b.WriteString("\n")
	}
}

func writeRanking(b *strings.Builder, title string, rows []RankingRow) {
	fmt.Fprintf(b, "\n--- %s ---\n", title)
	fmt.Fprintf(b, "%-10s %-36s %12s %14s %18s\n",
		"cve_ut", "nombre_ut", "pob_total", "num_negocios", "tasa_delitos_km2")
	for _, r := range rows {
		fmt.Fprintf(b, "%-10s %-36s %12s %14s %18s\n", r.CVE, r.Name,
			printer.Sprintf("%.0f", r.Population),
			printer.Sprintf("%.0f", r.Businesses),
			printer.Sprintf("%.2f", r.CrimeRate))
	}
}
