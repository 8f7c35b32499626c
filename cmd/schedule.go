package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuewatch/venuewatch/internal/pipeline"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a cron schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		spec, _ := cmd.Flags().GetString("cron")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch, err := buildOrchestrator(cfg, st)
		if err != nil {
			return err
		}

		c := cron.New()
		_, err = c.AddFunc(spec, func() {
			run, err := orch.Run(ctx, "", "")
			switch {
			case eris.Is(err, pipeline.ErrLockHeld):
				zap.L().Warn("scheduled run refused: lock held")
			case err != nil:
				zap.L().Error("scheduled run failed", zap.Error(err))
			default:
				zap.L().Info("scheduled run complete",
					zap.String("run_id", run.ID),
					zap.String("status", string(run.Status)),
				)
			}
		})
		if err != nil {
			return eris.Wrapf(err, "invalid cron spec %q", spec)
		}

		c.Start()
		zap.L().Info("scheduler started", zap.String("cron", spec))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			zap.L().Info("scheduler stopping", zap.String("signal", s.String()))
		case <-ctx.Done():
		}

		stopCtx := c.Stop()
		<-stopCtx.Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("cron", "0 6 * * *", "cron schedule for daily runs")
	rootCmd.AddCommand(scheduleCmd)
}
