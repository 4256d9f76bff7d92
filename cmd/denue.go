package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/denue"
)

var denueCmd = &cobra.Command{
	Use:   "denue",
	Short: "DENUE business registry tools",
	Long:  "Consolidate and clean the historical DENUE archives outside a full build.",
}

var denueConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate and clean the historical DENUE archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("denue"); err != nil {
			return err
		}
		schema, err := loadSchema()
		if err != nil {
			return err
		}

		consolidated, err := denue.Consolidate(ctx, cfg.Denue.ZipDir, cfg.Denue.Consolidated,
			schema.Denue, denue.WithWorkers(cfg.Denue.Workers))
		if err != nil {
			return eris.Wrap(err, "denue consolidate")
		}
		cleaned, err := denue.Clean(cfg.Denue.Consolidated, cfg.Denue.Cleaned,
			schema.Denue, cfg.Denue.Bounds)
		if err != nil {
			return eris.Wrap(err, "denue clean")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"consolidated": consolidated,
			"cleaned":      cleaned,
			"output":       cfg.Denue.Cleaned,
		})
	},
}

func init() {
	denueCmd.AddCommand(denueConsolidateCmd)
	rootCmd.AddCommand(denueCmd)
}
