// Package extract turns a venue's normalized page texts into a structured
// gold record via the Anthropic API, with bounded retry on rate limits and
// an ordered chain of response parse strategies.
package extract

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/resilience"
	"github.com/venuewatch/venuewatch/pkg/anthropic"
)

// Adapter performs promotion extraction for one venue at a time.
type Adapter struct {
	ai    anthropic.Client
	model string
	maxT  int64
	cfg   config.ExtractConfig

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// New creates an extraction Adapter.
func New(ai anthropic.Client, acfg config.AnthropicConfig, xcfg config.ExtractConfig) *Adapter {
	maxTokens := int64(acfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Adapter{ai: ai, model: acfg.Model, maxT: maxTokens, cfg: xcfg}
}

// Extract asks the model for the venue's promotions and returns a gold
// record stamped with snapshotHash. Failures never propagate as errors: an
// unparseable or refused response yields Found:false with a reason, so one
// venue cannot abort the extraction stage.
func (a *Adapter) Extract(ctx context.Context, venue model.Venue, pages []model.Page, snapshotHash string) model.GoldRecord {
	log := zap.L().With(zap.String("venue", venue.ID))
	rec := model.GoldRecord{
		VenueID:      venue.ID,
		SnapshotHash: snapshotHash,
		ProcessedAt:  time.Now().UTC(),
	}

	if len(pages) == 0 {
		rec.Reason = "no pages in snapshot"
		return rec
	}

	resp, err := a.callModel(ctx, venue, pages)
	if err != nil {
		log.Warn("extract: model call failed", zap.Error(err))
		rec.Reason = eris.ToString(err, false)
		return rec
	}
	a.recordUsage(resp.Usage)
	resp.Usage.LogCost(a.model, venue.ID)

	parsed, err := parseResponse(resp.Text())
	if err != nil {
		log.Warn("extract: unparseable response", zap.Error(err))
		rec.Reason = "unparseable model response"
		return rec
	}

	if !parsed.Found {
		rec.Reason = parsed.Reason
		if rec.Reason == "" {
			rec.Reason = "no promotions found"
		}
		return rec
	}

	rec.Entries = upgradeEntries(parsed.Promotions, a.lowConfidenceFloor())
	rec.Found = len(rec.Entries) > 0
	if !rec.Found {
		rec.Reason = "no usable promotion entries"
	}

	log.Info("extract: venue processed",
		zap.Bool("found", rec.Found),
		zap.Int("entries", len(rec.Entries)),
	)
	return rec
}

// callModel issues the API call with exponential backoff. Only rate limits
// and transient transport failures are retried; a malformed request fails
// immediately.
func (a *Adapter) callModel(ctx context.Context, venue model.Venue, pages []model.Page) (*anthropic.MessageResponse, error) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:    a.cfg.RetryAttempts,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     time.Duration(a.cfg.MaxBackoffSecs) * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		ShouldRetry: func(err error) bool {
			return resilience.IsRateLimit(err) || resilience.IsTransient(err)
		},
		OnRetry: resilience.RetryLogger("anthropic", venue.ID),
	}

	temperature := 0.0
	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.model,
			MaxTokens: a.maxT,
			System:    systemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: buildPrompt(venue, pages)},
			},
			Temperature: &temperature,
		})
	})
}

// recordUsage folds one call's token usage into the adapter-wide total.
// Extract runs concurrently, so the accumulator is locked.
func (a *Adapter) recordUsage(u anthropic.TokenUsage) {
	a.mu.Lock()
	a.usage.Add(u)
	a.mu.Unlock()
}

// Usage returns the tokens consumed by all Extract calls so far.
func (a *Adapter) Usage() anthropic.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

func (a *Adapter) lowConfidenceFloor() int {
	if a.cfg.LowConfidenceFloor <= 0 {
		return 40
	}
	return a.cfg.LowConfidenceFloor
}
