// Package geocode wraps the Google Geocoding API for venue import.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client resolves free-form addresses to coordinates.
type Client interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result is a geocoding outcome. Matched is false when the API answered but
// found nothing.
type Result struct {
	Latitude  float64
	Longitude float64
	Matched   bool
}

type googleClient struct {
	key     string
	http    *http.Client
	limiter *rate.Limiter
}

// NewGoogle creates a Google-backed geocoder capped at qps requests/second.
func NewGoogle(apiKey string, qps float64) Client {
	if qps <= 0 {
		qps = 5
	}
	return &googleClient{
		key:     apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
	}
}

type googleResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status string `json:"status"`
}

func (g *googleClient) Geocode(ctx context.Context, address string) (*Result, error) {
	if g.key == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address": {address},
		"key":     {g.key},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if parsed.Status != "OK" || len(parsed.Results) == 0 {
		return &Result{Matched: false}, nil
	}

	loc := parsed.Results[0].Geometry.Location
	return &Result{Latitude: loc.Lat, Longitude: loc.Lng, Matched: true}, nil
}
