// Package crawler fetches a venue's homepage, discovers likely-relevant
// subpages via link heuristics, and fetches those with bounded concurrency,
// per-venue rate limiting, and retry on transient failures.
package crawler

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/normalize"
	"github.com/venuewatch/venuewatch/internal/resilience"
)

// errNotHTML marks responses whose content type rules them out before
// normalization. Never retried.
var errNotHTML = eris.New("crawler: non-text content")

// Crawler fetches venue websites.
type Crawler struct {
	http    *http.Client
	cfg     config.CrawlConfig
	norm    *normalize.Normalizer
	matcher *SkipMatcher
}

// New creates a Crawler from config.
func New(cfg config.CrawlConfig, norm *normalize.Normalizer) *Crawler {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Crawler{
		http:    client,
		cfg:     cfg,
		norm:    norm,
		matcher: NewSkipMatcher(cfg.SkipPaths),
	}
}

// FetchAll processes venues through a bounded worker pool, invoking fn with
// each venue's snapshot. fn errors abort the pool (store failures are
// critical); fetch failures never do, they surface as empty snapshots.
func (c *Crawler) FetchAll(ctx context.Context, vs []model.Venue, fn func(model.Venue, *model.Snapshot) error) error {
	concurrency := c.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 15
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, v := range vs {
		g.Go(func() error {
			snap := c.FetchVenue(gCtx, v)
			return fn(v, snap)
		})
	}
	return g.Wait()
}

// FetchVenue fetches a venue's homepage and qualifying subpages, returning a
// snapshot of normalized pages. A venue's total fetch failure yields an
// empty snapshot, never an error: one venue must not abort the run.
func (c *Crawler) FetchVenue(ctx context.Context, venue model.Venue) *model.Snapshot {
	log := zap.L().With(zap.String("venue", venue.ID), zap.String("url", venue.URL))
	snap := &model.Snapshot{VenueID: venue.ID}

	delay := time.Duration(c.cfg.RequestDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = 750 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	homepage, err := c.fetchPage(ctx, limiter, venue.URL)
	if err != nil {
		log.Warn("crawler: homepage fetch failed, recording empty snapshot", zap.Error(err))
		return snap
	}

	now := time.Now().UTC()
	if text := c.norm.Normalize(homepage); text != "" {
		snap.Pages = append(snap.Pages, model.Page{
			VenueID:   venue.ID,
			URL:       venue.URL,
			Text:      text,
			FetchedAt: now,
		})
	}

	subURLs := c.discoverSubpages(homepage, venue.URL)
	for _, u := range subURLs {
		raw, err := c.fetchPage(ctx, limiter, u)
		if err != nil {
			log.Debug("crawler: subpage fetch failed, skipping",
				zap.String("subpage", u),
				zap.Error(err),
			)
			continue
		}
		if text := c.norm.Normalize(raw); text != "" {
			snap.Pages = append(snap.Pages, model.Page{
				VenueID:   venue.ID,
				URL:       u,
				Text:      text,
				FetchedAt: time.Now().UTC(),
			})
		}
	}

	log.Info("crawler: venue fetched",
		zap.Int("pages", len(snap.Pages)),
		zap.Int("subpages_discovered", len(subURLs)),
	)
	return snap
}

// fetchPage fetches one URL with rate limiting and bounded retry. Returns
// the raw body as a string.
func (c *Crawler) fetchPage(ctx context.Context, limiter *rate.Limiter, pageURL string) (string, error) {
	retryCfg := resilience.LinearRetryConfig(c.cfg.RetryAttempts, time.Second)
	retryCfg.OnRetry = resilience.RetryLogger("crawler", pageURL)

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "crawler: rate limit")
		}
		return c.doFetch(ctx, pageURL)
	})
}

func (c *Crawler) doFetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrapf(err, "crawler: build request %s", pageURL)
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "crawler: fetch %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("crawler: fetch %s: status %d", pageURL, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "xhtml") {
		return "", errNotHTML
	}

	maxBody := int64(c.cfg.MaxBodyKB) * 1024
	if maxBody <= 0 {
		maxBody = 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", eris.Wrapf(err, "crawler: read body %s", pageURL)
	}
	return string(body), nil
}

func (c *Crawler) userAgent() string {
	if c.cfg.UserAgent != "" {
		return c.cfg.UserAgent
	}
	return "Mozilla/5.0 (compatible; VenueWatchBot/1.0)"
}
