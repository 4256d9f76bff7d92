package report

import (
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WriteHeatmap renders the correlation matrix as a standalone HTML chart.
// NaN cells (constant or absent columns) are left blank rather than
// plotted, since they would not serialize.
func WriteHeatmap(v *Validation, path string) error {
	data := make([]opts.HeatMapData, 0, len(v.CorrColumns)*len(v.CorrColumns))
	for i, row := range v.Correlation {
		for j, val := range row {
			if math.IsNaN(val) {
				continue
			}
			rounded := math.Round(val*100) / 100
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, rounded}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Correlación de indicadores",
			Width:     "900px",
			Height:    "640px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Mapa de Calor de Correlaciones entre Features"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			Data:      v.CorrColumns,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
			AxisLabel: &opts.AxisLabel{Rotate: 45},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:      "category",
			Data:      v.CorrColumns,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        -1,
			Max:        1,
			InRange: &opts.VisualMapInRange{
				Color: []string{"#313695", "#74add1", "#ffffff", "#f46d43", "#a50026"},
			},
		}),
	)
	hm.SetXAxis(v.CorrColumns).AddSeries("correlación", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}),
	)

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create heatmap %s", path)
	}
	defer f.Close()

	if err := hm.Render(f); err != nil {
		return eris.Wrap(err, "report: render heatmap")
	}
	zap.L().Info("report: correlation heatmap written",
		zap.String("path", path),
		zap.Int("cells", len(data)),
	)
	return nil
}
