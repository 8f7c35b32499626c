package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var spotsCmd = &cobra.Command{
	Use:   "spots",
	Short: "Inspect materialized spots",
}

var spotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current spots",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		area, _ := cmd.Flags().GetString("area")
		spots, err := st.ListSpots(ctx)
		if err != nil {
			return eris.Wrap(err, "spots list")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"VENUE", "AREA", "CATEGORY", "WHEN", "OFFERS", "SOURCE"})
		shown := 0
		for _, s := range spots {
			if area != "" && !strings.EqualFold(s.Area, area) {
				continue
			}
			source := string(s.Source)
			if s.ManualOverride {
				source += " (override)"
			}
			t.AppendRow(table.Row{
				s.VenueName,
				s.Area,
				s.Category,
				s.Description,
				strings.Join(s.Offers, "; "),
				source,
			})
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(os.Stderr, "No spots found.")
			return nil
		}
		t.Render()
		return nil
	},
}

func init() {
	spotsListCmd.Flags().String("area", "", "filter by area")
	spotsCmd.AddCommand(spotsListCmd)
	rootCmd.AddCommand(spotsCmd)
}
