package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/report"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Quick statistics over the persisted dataset",
}

var statsPopulationCmd = &cobra.Command{
	Use:   "population",
	Short: "Population coverage against the official 2020 census",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("stats"); err != nil {
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
		fmt.Fprint(os.Stdout, report.FormatPopulation(report.Population(units)))
		return nil
	},
}

var statsDenueCmd = &cobra.Command{
	Use:   "denue",
	Short: "Business counts, diversity, and the top commercial units",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("stats"); err != nil {
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
		fmt.Fprint(os.Stdout, report.FormatBusiness(report.Business(units)))
		return nil
	},
}

func init() {
	statsCmd.AddCommand(statsPopulationCmd)
	statsCmd.AddCommand(statsDenueCmd)
	rootCmd.AddCommand(statsCmd)
}
