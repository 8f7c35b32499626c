package materialize

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/venuewatch/internal/model"
)

const dateLayout = "20060102"

// bumpStreak records a content change for a spot key on runDate and persists
// the updated streak.
func (m *Materializer) bumpStreak(ctx context.Context, key model.SpotKey, runDate string) error {
	prev, err := m.store.GetStreak(ctx, key.VenueID, key.Category)
	if err != nil {
		return eris.Wrap(err, "materialize: get streak")
	}
	next := NextStreak(prev, key, runDate)
	if err := m.store.PutStreak(ctx, next); err != nil {
		return eris.Wrap(err, "materialize: put streak")
	}
	return nil
}

// NextStreak computes the streak record after a content change on runDate.
// Consecutive runs extend the streak only when the previous change landed on
// the calendar day immediately before runDate; any gap resets to 1. A second
// change on the same day keeps the streak as-is.
func NextStreak(prev *model.StreakRecord, key model.SpotKey, runDate string) model.StreakRecord {
	next := model.StreakRecord{
		VenueID:         key.VenueID,
		Category:        key.Category,
		LastChanged:     runDate,
		ConsecutiveDays: 1,
	}
	if prev == nil {
		return next
	}

	switch {
	case prev.LastChanged == runDate:
		next.ConsecutiveDays = prev.ConsecutiveDays
	case prev.LastChanged == previousDay(runDate):
		next.ConsecutiveDays = prev.ConsecutiveDays + 1
	}
	return next
}

// previousDay returns the YYYYMMDD date one calendar day before d, or "" when
// d does not parse.
func previousDay(d string) string {
	t, err := time.Parse(dateLayout, d)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dateLayout)
}
