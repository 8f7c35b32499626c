package model

// ChangeType classifies a venue's current snapshot against its baseline.
type ChangeType string

const (
	ChangeNew       ChangeType = "new"
	ChangeChanged   ChangeType = "changed"
	ChangeUnchanged ChangeType = "unchanged"
	ChangeRemoved   ChangeType = "removed"
)

// NeedsExtraction reports whether venues of this change type belong in the
// extraction work-set.
func (t ChangeType) NeedsExtraction() bool {
	return t == ChangeNew || t == ChangeChanged
}

// ChangeRecord is the classification outcome for one venue in one run.
type ChangeRecord struct {
	VenueID       string     `json:"venue_id"`
	Type          ChangeType `json:"type"`
	PageCount     int        `json:"page_count"`
	AggregateHash string     `json:"aggregate_hash"`
}
