package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the territorial-unit dataset from the raw inputs",
	Long: "Runs the full pipeline: census and geometry ingestion, DENUE and crime\n" +
		"indicators at AGEB level, areal interpolation onto territorial units,\n" +
		"and persistence of the final dataset with a run record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("build"); err != nil {
			return err
		}
		schema, err := loadSchema()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := pipeline.New(cfg, schema, st).Build(ctx)
		if err != nil {
			return eris.Wrap(err, "build")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
