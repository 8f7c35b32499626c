package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/venuewatch/venuewatch/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "DATE", "AREA", "STATUS", "STARTED", "DURATION", "STAGES"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				truncateID(r.ID),
				r.RunDate,
				r.Area,
				r.Status,
				r.StartedAt.Format("2006-01-02 15:04"),
				runDuration(r),
				stageSummary(r),
			})
		}
		t.Render()
		return nil
	},
}

func runDuration(r model.PipelineRun) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

// stageSummary renders the manifest as one character per stage in pipeline
// order: + completed, - skipped, ! failed, . pending/running.
func stageSummary(r model.PipelineRun) string {
	out := make([]byte, 0, len(model.Stages))
	for _, s := range model.Stages {
		switch r.Stages[s].Status {
		case model.StageCompleted:
			out = append(out, '+')
		case model.StageSkipped:
			out = append(out, '-')
		case model.StageFailed:
			out = append(out, '!')
		default:
			out = append(out, '.')
		}
	}
	return string(out)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}
