package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sos-priors",
	Short: "Replace SWORD reach priors with gauge statistics",
	Long:  "Pulls daily discharge from gauge agencies, computes per-gauge statistics and overwrites the model baseline priors of matching reaches, recording the provenance of every overwrite.",
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
