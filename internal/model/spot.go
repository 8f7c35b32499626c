package model

import "time"

// SpotSource tags how a spot came to exist.
type SpotSource string

const (
	SpotSourceAutomated SpotSource = "automated"
	SpotSourceManual    SpotSource = "manual"
)

// Spot is a display-ready record derived from a GoldRecord × Venue join, or
// created directly by an operator. Automated spots are regenerated each run;
// manual spots and manually-overridden automated spots are never overwritten.
type Spot struct {
	VenueID        string     `json:"venue_id"`
	VenueName      string     `json:"venue_name"`
	Area           string     `json:"area,omitempty"`
	Category       string     `json:"category"`
	Description    string     `json:"description,omitempty"`
	Days           []string   `json:"days,omitempty"`
	Times          string     `json:"times,omitempty"`
	Offers         []string   `json:"offers,omitempty"`
	Source         SpotSource `json:"source"`
	ManualOverride bool       `json:"manual_override"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Key returns the composite (venue, category) key that preservation and
// streak tracking operate on.
func (s Spot) Key() SpotKey {
	return SpotKey{VenueID: s.VenueID, Category: s.Category}
}

// SpotKey is the composite key of a spot.
type SpotKey struct {
	VenueID  string
	Category string
}

// Preserved reports whether regeneration must leave this spot untouched.
func (s Spot) Preserved() bool {
	return s.Source == SpotSourceManual || s.ManualOverride
}

// StreakRecord tracks consecutive-day content changes for a venue+category.
type StreakRecord struct {
	VenueID         string `json:"venue_id"`
	Category        string `json:"category"`
	LastChanged     string `json:"last_changed"` // YYYYMMDD
	ConsecutiveDays int    `json:"consecutive_days"`
}
