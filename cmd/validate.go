package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/report"
)

var validateHeatmap bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the persisted dataset and print the full report",
	Long: "Checks structure, null counts, descriptive statistics, population\n" +
		"coverage against the 2020 census, rankings, and the correlation matrix\n" +
		"of the persisted dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		units, err := loadDataset(ctx, st)
		if err != nil {
			return err
		}

		v := report.Validate(units, cfg.Data.CRS)
		fmt.Fprint(os.Stdout, report.FormatValidation(v))

		pop := report.Population(units)
		fmt.Fprint(os.Stdout, report.FormatPopulation(pop))

		if validateHeatmap {
			if dir := filepath.Dir(cfg.Report.HeatmapFile); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return eris.Wrapf(err, "create %s", dir)
				}
			}
			if err := report.WriteHeatmap(v, cfg.Report.HeatmapFile); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\nMapa de calor de correlaciones: %s\n", cfg.Report.HeatmapFile)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateHeatmap, "heatmap", false,
		"write the correlation heatmap HTML next to the dataset")
	rootCmd.AddCommand(validateCmd)
}
