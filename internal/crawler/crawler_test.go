package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/normalize"
)

func testConfig() config.CrawlConfig {
	return config.CrawlConfig{
		MaxSubpages:    10,
		Concurrency:    4,
		TimeoutSecs:    5,
		RetryAttempts:  2,
		RequestDelayMS: 1,
	}
}

func newTestCrawler(cfg config.CrawlConfig) *Crawler {
	return New(cfg, normalize.New(0))
}

func TestFetchVenueCollectsSubpages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1>The Dive Bar</h1>
			<a href="/specials">Specials</a>
			<a href="/privacy">Privacy</a>
			<a href="https://other.example/menu">Other site menu</a>
			<a href="/about">About</a>
		</body></html>`)
	})
	mux.HandleFunc("/specials", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Happy hour 5-7pm daily</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(testConfig())
	snap := c.FetchVenue(context.Background(), model.Venue{ID: "dive", URL: srv.URL + "/"})

	require.Len(t, snap.Pages, 2)
	assert.Contains(t, snap.Pages[0].Text, "The Dive Bar")
	assert.Contains(t, snap.Pages[1].Text, "Happy hour 5-7pm daily")
}

func TestFetchVenueEmptyOnHomepageFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestCrawler(testConfig())
	snap := c.FetchVenue(context.Background(), model.Venue{ID: "gone", URL: srv.URL})

	assert.True(t, snap.Empty())
	assert.Equal(t, "gone", snap.VenueID)
}

func TestFetchPageRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "<html><body><p>back up</p></body></html>")
	}))
	defer srv.Close()

	c := newTestCrawler(testConfig())
	snap := c.FetchVenue(context.Background(), model.Venue{ID: "flaky", URL: srv.URL})

	require.Len(t, snap.Pages, 1)
	assert.Contains(t, snap.Pages[0].Text, "back up")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPageDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestCrawler(testConfig())
	snap := c.FetchVenue(context.Background(), model.Venue{ID: "blocked", URL: srv.URL})

	assert.True(t, snap.Empty())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchVenueSkipsNonHTMLSubpage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/menu">Menu</a></body></html>`)
	})
	mux.HandleFunc("/menu", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, "binary")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(testConfig())
	snap := c.FetchVenue(context.Background(), model.Venue{ID: "v", URL: srv.URL + "/"})

	require.Len(t, snap.Pages, 1)
	assert.Equal(t, srv.URL+"/", snap.Pages[0].URL)
}

func TestFetchAllBoundedPool(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>hi</p></body></html>")
	}))
	defer srv.Close()

	var venues []model.Venue
	for i := 0; i < 6; i++ {
		venues = append(venues, model.Venue{ID: fmt.Sprintf("v%d", i), URL: srv.URL})
	}

	var handled atomic.Int32
	c := newTestCrawler(testConfig())
	err := c.FetchAll(context.Background(), venues, func(v model.Venue, snap *model.Snapshot) error {
		handled.Add(1)
		assert.False(t, snap.Empty())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(6), handled.Load())
}

func TestDiscoverSubpages(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(testConfig())
	html := `<html><body>
		<a href="/drink-specials">Drinks</a>
		<a href="/menu">Menu</a>
		<a href="/menu/">Menu again</a>
		<a href="/contact">Contact</a>
		<a href="/careers/menu">Jobs</a>
		<a href="#top">Top</a>
		<a href="mailto:x@bar.example">Mail</a>
		<a href="/random">Happy Hour details</a>
	</body></html>`

	urls := c.discoverSubpages(html, "https://bar.example/")

	assert.Equal(t, []string{
		"https://bar.example/drink-specials",
		"https://bar.example/menu",
		"https://bar.example/random",
	}, urls)
}
