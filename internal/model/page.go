package model

import "time"

// Page is one fetched and normalized page for a venue in one generation.
// Immutable once written.
type Page struct {
	VenueID   string    `json:"venue_id"`
	URL       string    `json:"url"`
	Text      string    `json:"text"`
	Hash      string    `json:"hash"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Snapshot is the set of pages captured for one venue in one run generation.
type Snapshot struct {
	VenueID       string `json:"venue_id"`
	Pages         []Page `json:"pages"`
	AggregateHash string `json:"aggregate_hash"`
}

// Empty reports whether the snapshot holds no pages.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Pages) == 0
}

// Generation labels for stored snapshots. Archived generations use
// GenerationArchive plus a YYYYMMDD date label.
const (
	GenerationCurrent  = "current"
	GenerationBaseline = "baseline"
	GenerationArchive  = "archive"
)
