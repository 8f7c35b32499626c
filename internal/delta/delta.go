// Package delta implements content-addressed change detection: per-page and
// per-venue aggregate hashing, classification against the baseline snapshot,
// and the incremental work-set with its cost ceiling.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"go.uber.org/zap"

	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/normalize"
)

// PageHash hashes one page's hashing-normalized URL and text.
func PageHash(pageURL, text string) string {
	h := sha256.New()
	h.Write([]byte(normalize.URLForHashing(pageURL)))
	h.Write([]byte("\n"))
	h.Write([]byte(normalize.ForHashing(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// AggregateHash hashes a snapshot's page hashes joined in URL-sorted order.
// An empty snapshot has an empty aggregate hash.
func AggregateHash(snap *model.Snapshot) string {
	if snap.Empty() {
		return ""
	}

	pages := make([]model.Page, len(snap.Pages))
	copy(pages, snap.Pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })

	h := sha256.New()
	for _, p := range pages {
		hash := p.Hash
		if hash == "" {
			hash = PageHash(p.URL, p.Text)
		}
		h.Write([]byte(hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Classify compares the current snapshot against the baseline and returns a
// change record. A venue with no baseline is always New; a venue present in
// the baseline but absent from current is Removed.
func Classify(venueID string, current, baseline *model.Snapshot) model.ChangeRecord {
	rec := model.ChangeRecord{VenueID: venueID}
	if current != nil {
		rec.PageCount = len(current.Pages)
		rec.AggregateHash = AggregateHash(current)
	}

	switch {
	case baseline.Empty():
		rec.Type = model.ChangeNew
	case current.Empty():
		rec.Type = model.ChangeRemoved
	case rec.AggregateHash != AggregateHash(baseline):
		rec.Type = model.ChangeChanged
	default:
		rec.Type = model.ChangeUnchanged
	}
	return rec
}

// WorkSet is the subset of venues requiring extraction this run.
type WorkSet struct {
	Records []model.ChangeRecord
	// SkipExtraction is set when the work-set exceeded the configured
	// ceiling; all fetched data is still persisted but the extraction stage
	// must be skipped to bound worst-case cost.
	SkipExtraction bool
}

// BuildWorkSet filters records to New/Changed venues and applies the cost
// ceiling. Removed venues are logged for operator visibility but never
// trigger gold-record deletion (a removed venue may be a transient fetch
// failure, not a closure).
func BuildWorkSet(records []model.ChangeRecord, maxWorkSet int) WorkSet {
	var ws WorkSet
	for _, rec := range records {
		if rec.Type == model.ChangeRemoved {
			zap.L().Warn("delta: venue removed from current snapshot",
				zap.String("venue", rec.VenueID),
			)
			continue
		}
		if rec.Type.NeedsExtraction() {
			ws.Records = append(ws.Records, rec)
		}
	}

	if maxWorkSet > 0 && len(ws.Records) > maxWorkSet {
		zap.L().Warn("delta: work-set exceeds ceiling, extraction will be skipped",
			zap.Int("work_set", len(ws.Records)),
			zap.Int("ceiling", maxWorkSet),
		)
		ws.SkipExtraction = true
	}
	return ws
}
