package materialize

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testVenues() []model.Venue {
	return []model.Venue{
		{ID: "dive", Name: "The Dive Bar", URL: "https://dive.example", Area: "downtown"},
		{ID: "roof", Name: "Rooftop Lounge", URL: "https://roof.example", Area: "midtown"},
	}
}

func goldFor(venueID string, entries ...model.PromoEntry) model.GoldRecord {
	return model.GoldRecord{
		VenueID:      venueID,
		Found:        true,
		Entries:      entries,
		SnapshotHash: "hash-" + venueID,
		ProcessedAt:  time.Now().UTC(),
	}
}

func happyHour(confidence int) model.PromoEntry {
	return model.PromoEntry{
		Category:   "happy_hour",
		Days:       []string{"monday", "friday"},
		StartTime:  "15:00",
		EndTime:    "18:00",
		Offers:     []string{"$5 drafts"},
		Confidence: confidence,
	}
}

func TestMaterializeBasic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))

	n, err := New(st).Materialize(ctx, testVenues(), nil, "20260823")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	spots, err := st.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	s := spots[0]
	assert.Equal(t, "dive", s.VenueID)
	assert.Equal(t, "The Dive Bar", s.VenueName)
	assert.Equal(t, "downtown", s.Area)
	assert.Equal(t, "happy_hour", s.Category)
	assert.Equal(t, []string{"monday", "friday"}, s.Days)
	assert.Equal(t, "15:00-18:00", s.Times)
	assert.Equal(t, []string{"$5 drafts"}, s.Offers)
	assert.Equal(t, model.SpotSourceAutomated, s.Source)

	// New spot starts a streak.
	streak, err := st.GetStreak(ctx, "dive", "happy_hour")
	require.NoError(t, err)
	require.NotNil(t, streak)
	assert.Equal(t, 1, streak.ConsecutiveDays)
	assert.Equal(t, "20260823", streak.LastChanged)
}

func TestMaterializeSkipsLowConfidence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	low := happyHour(30)
	low.LowConfidence = true
	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", low)))

	n, err := New(st).Materialize(ctx, testVenues(), nil, "20260823")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMaterializeExclusions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))
	require.NoError(t, st.PutGoldRecord(ctx, goldFor("roof", happyHour(90))))

	n, err := New(st).Materialize(ctx, testVenues(), map[string]bool{"roof": true}, "20260823")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	spots, err := st.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "dive", spots[0].VenueID)
}

func TestMaterializeScopedRunLeavesOtherVenues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	mat := New(st)

	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))
	require.NoError(t, st.PutGoldRecord(ctx, goldFor("roof", happyHour(90))))

	_, err := mat.Materialize(ctx, testVenues(), nil, "20260823")
	require.NoError(t, err)

	// Regenerating only the downtown venue must leave the midtown spot alone.
	downtown := []model.Venue{testVenues()[0]}
	n, err := mat.Materialize(ctx, downtown, nil, "20260824")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	spots, err := st.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 2)

	ids := make(map[string]bool)
	for _, s := range spots {
		ids[s.VenueID] = true
	}
	assert.True(t, ids["dive"])
	assert.True(t, ids["roof"])
}

// failingReplaceStore rejects the spot replacement to exercise the
// streaks-after-commit ordering.
type failingReplaceStore struct {
	store.Store
}

func (f *failingReplaceStore) ReplaceAutomatedSpots(ctx context.Context, venueIDs []string, spots []model.Spot) error {
	return eris.New("replace rejected")
}

func TestMaterializeFailedReplaceWritesNoStreaks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))

	_, err := New(&failingReplaceStore{Store: st}).Materialize(ctx, testVenues(), nil, "20260823")
	require.Error(t, err)

	streak, err := st.GetStreak(ctx, "dive", "happy_hour")
	require.NoError(t, err)
	assert.Nil(t, streak)
}

func TestMaterializePreservesManualSpots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	manual := model.Spot{
		VenueID:     "dive",
		VenueName:   "The Dive Bar",
		Category:    "happy_hour",
		Description: "operator curated",
		Source:      model.SpotSourceManual,
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.PutSpot(ctx, manual))
	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))

	_, err := New(st).Materialize(ctx, testVenues(), nil, "20260823")
	require.NoError(t, err)

	spots, err := st.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "operator curated", spots[0].Description)
	assert.Equal(t, model.SpotSourceManual, spots[0].Source)

	// Preserved keys never accrue streak updates either.
	streak, err := st.GetStreak(ctx, "dive", "happy_hour")
	require.NoError(t, err)
	assert.Nil(t, streak)
}

func TestMaterializeUnchangedContentLeavesStreak(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))
	mat := New(st)

	_, err := mat.Materialize(ctx, testVenues(), nil, "20260823")
	require.NoError(t, err)

	// Second pass with identical content must not touch the streak.
	_, err = mat.Materialize(ctx, testVenues(), nil, "20260824")
	require.NoError(t, err)

	streak, err := st.GetStreak(ctx, "dive", "happy_hour")
	require.NoError(t, err)
	require.NotNil(t, streak)
	assert.Equal(t, 1, streak.ConsecutiveDays)
	assert.Equal(t, "20260823", streak.LastChanged)
}

func TestMaterializeConsecutiveChangeExtendsStreak(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	mat := New(st)

	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", happyHour(90))))
	_, err := mat.Materialize(ctx, testVenues(), nil, "20260823")
	require.NoError(t, err)

	// Next day the offer changes.
	changed := happyHour(90)
	changed.Offers = []string{"$4 drafts"}
	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", changed)))
	_, err = mat.Materialize(ctx, testVenues(), nil, "20260824")
	require.NoError(t, err)

	streak, err := st.GetStreak(ctx, "dive", "happy_hour")
	require.NoError(t, err)
	assert.Equal(t, 2, streak.ConsecutiveDays)
	assert.Equal(t, "20260824", streak.LastChanged)

	// A change after a gap resets the streak.
	changed.Offers = []string{"$3 drafts"}
	require.NoError(t, st.PutGoldRecord(ctx, goldFor("dive", changed)))
	_, err = mat.Materialize(ctx, testVenues(), nil, "20260828")
	require.NoError(t, err)

	streak, err = st.GetStreak(ctx, "dive", "happy_hour")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.ConsecutiveDays)
}

func TestSpotsFromGoldGroupsByCategory(t *testing.T) {
	t.Parallel()

	venue := model.Venue{ID: "dive", Name: "The Dive Bar"}
	gold := goldFor("dive",
		model.PromoEntry{Category: "happy_hour", Days: []string{"friday"}, Offers: []string{"$5 drafts"}, Confidence: 90},
		model.PromoEntry{Category: "happy_hour", Days: []string{"monday"}, Offers: []string{"half-price wings"}, Confidence: 85},
		model.PromoEntry{Category: "trivia", Days: []string{"tuesday"}, Confidence: 80},
	)

	spots := spotsFromGold(venue, gold, time.Now().UTC())
	require.Len(t, spots, 2)

	hh := spots[0]
	assert.Equal(t, "happy_hour", hh.Category)
	assert.Equal(t, []string{"monday", "friday"}, hh.Days) // weekday order
	assert.Equal(t, []string{"$5 drafts", "half-price wings"}, hh.Offers)

	assert.Equal(t, "trivia", spots[1].Category)
}

func TestNextStreak(t *testing.T) {
	t.Parallel()

	key := model.SpotKey{VenueID: "v", Category: "c"}

	tests := []struct {
		name    string
		prev    *model.StreakRecord
		runDate string
		want    int
	}{
		{"no prior starts at 1", nil, "20260823", 1},
		{
			"yesterday extends",
			&model.StreakRecord{LastChanged: "20260822", ConsecutiveDays: 4},
			"20260823", 5,
		},
		{
			"gap resets",
			&model.StreakRecord{LastChanged: "20260819", ConsecutiveDays: 4},
			"20260823", 1,
		},
		{
			"same day keeps count",
			&model.StreakRecord{LastChanged: "20260823", ConsecutiveDays: 4},
			"20260823", 4,
		},
		{
			"month boundary extends",
			&model.StreakRecord{LastChanged: "20260731", ConsecutiveDays: 2},
			"20260801", 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextStreak(tt.prev, key, tt.runDate)
			assert.Equal(t, tt.want, got.ConsecutiveDays)
			assert.Equal(t, tt.runDate, got.LastChanged)
		})
	}
}
