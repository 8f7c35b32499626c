// Package materialize turns gold records into display-ready spots, preserving
// operator-owned rows and maintaining per-spot change streaks.
package materialize

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/store"
)

// Materializer projects gold records onto the spots table.
type Materializer struct {
	store store.Store
}

// New creates a Materializer.
func New(st store.Store) *Materializer {
	return &Materializer{store: st}
}

// Materialize regenerates automated spots for the given venues from the
// gold-record set and updates streaks for spots whose content changed. Spots
// of venues outside the given set survive untouched, so an area-scoped run
// cannot destroy other areas' rows. Manual spots and manually-overridden
// automated spots are never touched; excluded venues are never materialized.
// Returns the number of automated spots written.
func (m *Materializer) Materialize(ctx context.Context, venues []model.Venue, exclusions map[string]bool, runDate string) (int, error) {
	golds, err := m.store.ListGoldRecords(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "materialize: list gold records")
	}
	existing, err := m.store.ListSpots(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "materialize: list spots")
	}

	venueByID := make(map[string]model.Venue, len(venues))
	scope := make([]string, 0, len(venues))
	for _, v := range venues {
		venueByID[v.ID] = v
		scope = append(scope, v.ID)
	}

	// Partition existing spots: preserved keys are off-limits, plain
	// automated rows are the comparison base for streak updates.
	preserved := make(map[model.SpotKey]bool)
	prior := make(map[model.SpotKey]model.Spot)
	for _, s := range existing {
		if s.Preserved() {
			preserved[s.Key()] = true
			continue
		}
		prior[s.Key()] = s
	}

	now := time.Now().UTC()
	var automated []model.Spot
	var changed []model.SpotKey
	for _, gold := range golds {
		if !gold.Found {
			continue
		}
		venue, ok := venueByID[gold.VenueID]
		if !ok || exclusions[gold.VenueID] {
			continue
		}
		for _, spot := range spotsFromGold(venue, gold, now) {
			if preserved[spot.Key()] {
				zap.L().Debug("materialize: key preserved, skipping",
					zap.String("venue", spot.VenueID),
					zap.String("category", spot.Category),
				)
				continue
			}
			automated = append(automated, spot)

			old, had := prior[spot.Key()]
			if !had || !spotContentEqual(old, spot) {
				changed = append(changed, spot.Key())
			}
		}
	}

	if err := m.store.ReplaceAutomatedSpots(ctx, scope, automated); err != nil {
		return 0, eris.Wrap(err, "materialize: replace automated spots")
	}

	// Streaks advance only after the regenerated spots are committed; a
	// failed replace must not leave streaks for spots that were never written.
	for _, key := range changed {
		if err := m.bumpStreak(ctx, key, runDate); err != nil {
			return 0, err
		}
	}

	zap.L().Info("materialize: spots written",
		zap.Int("automated", len(automated)),
		zap.Int("preserved", len(preserved)),
	)
	return len(automated), nil
}

// spotsFromGold folds a gold record's entries into one spot per category.
// Low-confidence entries stay in the gold record but never reach a spot.
func spotsFromGold(venue model.Venue, gold model.GoldRecord, now time.Time) []model.Spot {
	byCategory := make(map[string][]model.PromoEntry)
	var order []string
	for _, e := range gold.Entries {
		if e.LowConfidence {
			continue
		}
		if _, seen := byCategory[e.Category]; !seen {
			order = append(order, e.Category)
		}
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	var spots []model.Spot
	for _, cat := range order {
		entries := byCategory[cat]
		days := mergeDays(entries)
		times := renderTimes(entries[0])
		spots = append(spots, model.Spot{
			VenueID:     venue.ID,
			VenueName:   venue.Name,
			Area:        venue.Area,
			Category:    cat,
			Description: renderDescription(days, times),
			Days:        days,
			Times:       times,
			Offers:      mergeOffers(entries),
			Source:      model.SpotSourceAutomated,
			UpdatedAt:   now,
		})
	}
	return spots
}

// weekdayRank orders merged day lists Monday-first.
var weekdayRank = map[string]int{
	"monday": 0, "tuesday": 1, "wednesday": 2, "thursday": 3,
	"friday": 4, "saturday": 5, "sunday": 6,
}

func mergeDays(entries []model.PromoEntry) []string {
	seen := make(map[string]bool)
	var days []string
	for _, e := range entries {
		for _, d := range e.Days {
			d = strings.ToLower(d)
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
	}
	sort.SliceStable(days, func(i, j int) bool {
		ri, iok := weekdayRank[days[i]]
		rj, jok := weekdayRank[days[j]]
		if iok && jok {
			return ri < rj
		}
		return iok // unknown names sort last, keeping input order
	})
	return days
}

func mergeOffers(entries []model.PromoEntry) []string {
	seen := make(map[string]bool)
	var offers []string
	for _, e := range entries {
		for _, o := range e.Offers {
			if !seen[o] {
				seen[o] = true
				offers = append(offers, o)
			}
		}
	}
	return offers
}

func renderTimes(e model.PromoEntry) string {
	switch {
	case e.StartTime != "" && e.EndTime != "":
		return e.StartTime + "-" + e.EndTime
	case e.StartTime != "":
		return "from " + e.StartTime
	case e.EndTime != "":
		return "until " + e.EndTime
	}
	return ""
}

func renderDescription(days []string, times string) string {
	var parts []string
	if len(days) > 0 {
		parts = append(parts, strings.Join(days, ", "))
	}
	if times != "" {
		parts = append(parts, times)
	}
	return strings.Join(parts, " ")
}

// spotContentEqual compares the content fields that matter for streaks.
// UpdatedAt is excluded: a rewrite with identical content is not a change.
func spotContentEqual(a, b model.Spot) bool {
	if a.Description != b.Description || a.Times != b.Times {
		return false
	}
	if !stringSlicesEqual(a.Days, b.Days) || !stringSlicesEqual(a.Offers, b.Offers) {
		return false
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
