package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "venuewatch",
	Short: "Incremental venue promotion tracker",
	Long:  "Crawls venue websites daily, detects content changes against the previous snapshot, extracts recurring promotions via Claude, and materializes display-ready spots.",
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
		// A held lock is a clean refusal, distinguished for schedulers.
		if eris.Is(err, pipeline.ErrLockHeld) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
