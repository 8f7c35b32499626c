// Package venues loads the external venue directory. The directory is owned
// by the discovery/geocoding subsystem; the pipeline treats it as read-only.
package venues

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/venuewatch/venuewatch/internal/model"
)

// Directory is the parsed venues.yaml file.
type Directory struct {
	Venues     []model.Venue `yaml:"venues"`
	Exclusions []string      `yaml:"exclusions,omitempty"`
}

// Load reads and validates the venue directory file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "venues: read %s", path)
	}
	return Parse(data)
}

// Parse decodes directory YAML and drops entries without an id or URL.
func Parse(data []byte) (*Directory, error) {
	var dir Directory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return nil, eris.Wrap(err, "venues: parse yaml")
	}

	valid := dir.Venues[:0]
	seen := make(map[string]bool, len(dir.Venues))
	for _, v := range dir.Venues {
		v.ID = strings.TrimSpace(v.ID)
		v.URL = strings.TrimSpace(v.URL)
		if v.ID == "" || v.URL == "" || seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		valid = append(valid, v)
	}
	dir.Venues = valid
	return &dir, nil
}

// Save writes the directory back to disk (used only by `venues import`).
func (d *Directory) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "venues: marshal yaml")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "venues: write %s", path)
}

// FilterArea returns the venues matching the given area tag. An empty area
// returns all venues.
func (d *Directory) FilterArea(area string) []model.Venue {
	if area == "" {
		return d.Venues
	}
	var out []model.Venue
	for _, v := range d.Venues {
		if strings.EqualFold(v.Area, area) {
			out = append(out, v)
		}
	}
	return out
}

// Excluded reports whether a venue id is on the exclusion list. Excluded
// venues are still crawled and extracted but never materialized into spots.
func (d *Directory) Excluded(venueID string) bool {
	for _, id := range d.Exclusions {
		if id == venueID {
			return true
		}
	}
	return false
}

// ExclusionSet returns the exclusion list as a set.
func (d *Directory) ExclusionSet() map[string]bool {
	set := make(map[string]bool, len(d.Exclusions))
	for _, id := range d.Exclusions {
		set[id] = true
	}
	return set
}
