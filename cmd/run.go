package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/crawler"
	"github.com/venuewatch/venuewatch/internal/extract"
	"github.com/venuewatch/venuewatch/internal/materialize"
	"github.com/venuewatch/venuewatch/internal/normalize"
	"github.com/venuewatch/venuewatch/internal/pipeline"
	"github.com/venuewatch/venuewatch/internal/store"
	"github.com/venuewatch/venuewatch/internal/venues"
	anthropicpkg "github.com/venuewatch/venuewatch/pkg/anthropic"
)

var (
	runDate string
	runArea string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch, err := buildOrchestrator(cfg, st)
		if err != nil {
			return err
		}

		run, err := orch.Run(ctx, runDate, runArea)
		if err != nil {
			if eris.Is(err, pipeline.ErrLockHeld) {
				zap.L().Warn("run refused: lock held")
				return err
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Any("stats", run.Stats),
		)
		return nil
	},
}

// buildOrchestrator wires the pipeline from config and an open store.
func buildOrchestrator(cfg *config.Config, st store.Store) (*pipeline.Orchestrator, error) {
	dir, err := venues.Load(cfg.Directory.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load venue directory")
	}

	norm := normalize.New(cfg.Normalize.MaxTextLen)
	cr := crawler.New(cfg.Crawl, norm)
	ex := extract.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic, cfg.Extract)
	mat := materialize.New(st)

	return pipeline.New(st, cr, ex, mat, dir, cfg), nil
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "logical run date YYYYMMDD (default: today UTC)")
	runCmd.Flags().StringVar(&runArea, "area", "", "restrict run to venues in one area")
	rootCmd.AddCommand(runCmd)
}
