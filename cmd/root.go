package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pic",
	Short: "CDMX real-estate potential dataset engine",
	Long: "Builds the territorial-unit dataset for Mexico City: census, DENUE and\n" +
		"crime indicators aggregated from AGEBs by areal interpolation, persisted\n" +
		"with run history and served over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
