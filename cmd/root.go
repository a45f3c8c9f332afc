package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "zonescope",
	Short: "Zone opportunity scoring over municipal open data",
	Long:  "Ingests zone boundaries, population counts, and point features (hawker centres, MRT exits, bus stops), scores every zone with kernel-density statistics, and serves the results.",
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
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
