package model

import "time"

// PromoEntry is a single time-boxed offer extracted for a venue.
type PromoEntry struct {
	Category      string   `json:"category"`
	Days          []string `json:"days,omitempty"`
	StartTime     string   `json:"start_time,omitempty"`
	EndTime       string   `json:"end_time,omitempty"`
	Offers        []string `json:"offers,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
	Confidence    int      `json:"confidence"`
	LowConfidence bool     `json:"low_confidence,omitempty"`
}

// Usable reports whether the entry carries at least one field worth keeping:
// a day pattern, a time window, or an offer list.
func (e PromoEntry) Usable() bool {
	return len(e.Days) > 0 || e.StartTime != "" || e.EndTime != "" || len(e.Offers) > 0
}

// GoldRecord is the latest accepted extraction result for a venue, memoized
// by the aggregate hash of the snapshot it was derived from.
type GoldRecord struct {
	VenueID      string       `json:"venue_id"`
	Found        bool         `json:"found"`
	Reason       string       `json:"reason,omitempty"`
	Entries      []PromoEntry `json:"entries,omitempty"`
	SnapshotHash string       `json:"snapshot_hash"`
	ProcessedAt  time.Time    `json:"processed_at"`
}
