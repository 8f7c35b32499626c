package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/venues"
	"github.com/venuewatch/venuewatch/pkg/geocode"
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Manage the venue directory",
}

var venuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directory venues",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := venues.Load(cfg.Directory.Path)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "NAME", "AREA", "URL", "EXCLUDED"})
		for _, v := range dir.Venues {
			excluded := ""
			if dir.Excluded(v.ID) {
				excluded = "yes"
			}
			t.AppendRow(table.Row{v.ID, v.Name, v.Area, v.URL, excluded})
		}
		t.Render()
		return nil
	},
}

// importEntry is one row of an import file: a venue plus an optional street
// address used for geocoding when coordinates are absent.
type importEntry struct {
	model.Venue `yaml:",inline"`
	Address     string `yaml:"address,omitempty"`
}

var venuesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Append venues from a YAML file, geocoding addresses when possible",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(file)
		if err != nil {
			return eris.Wrapf(err, "read import file %s", file)
		}
		var entries []importEntry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return eris.Wrap(err, "parse import file")
		}

		dir, err := venues.Load(cfg.Directory.Path)
		if err != nil {
			if !os.IsNotExist(eris.Cause(err)) {
				return err
			}
			dir = &venues.Directory{}
		}
		existing := make(map[string]bool, len(dir.Venues))
		for _, v := range dir.Venues {
			existing[v.ID] = true
		}

		var gc geocode.Client
		if cfg.Geocode.Key != "" {
			gc = geocode.NewGoogle(cfg.Geocode.Key, cfg.Geocode.QPS)
		}

		added := 0
		for _, e := range entries {
			if e.ID == "" || e.URL == "" || existing[e.ID] {
				continue
			}
			v := e.Venue
			if v.Lat == 0 && v.Lng == 0 && e.Address != "" && gc != nil {
				res, err := gc.Geocode(ctx, e.Address)
				switch {
				case err != nil:
					zap.L().Warn("geocode failed, importing without coordinates",
						zap.String("venue", v.ID), zap.Error(err))
				case res.Matched:
					v.Lat, v.Lng = res.Latitude, res.Longitude
				}
			}
			dir.Venues = append(dir.Venues, v)
			existing[v.ID] = true
			added++
		}

		if err := dir.Save(cfg.Directory.Path); err != nil {
			return err
		}
		fmt.Printf("Imported %d venues (%d total)\n", added, len(dir.Venues))
		return nil
	},
}

func init() {
	venuesImportCmd.Flags().String("file", "", "YAML file of venues to import (required)")
	_ = venuesImportCmd.MarkFlagRequired("file")
	venuesCmd.AddCommand(venuesListCmd)
	venuesCmd.AddCommand(venuesImportCmd)
	rootCmd.AddCommand(venuesCmd)
}
