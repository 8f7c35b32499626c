package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/resilience"
	"github.com/venuewatch/venuewatch/pkg/anthropic"
)

// fakeClient returns queued responses or errors in order.
type fakeClient struct {
	calls     int
	responses []fakeReply
}

type fakeReply struct {
	text  string
	err   error
	usage anthropic.TokenUsage
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	reply := f.responses[f.calls]
	f.calls++
	if reply.err != nil {
		return nil, reply.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply.text}},
		Usage:   reply.usage,
	}, nil
}

func testAdapter(client anthropic.Client) *Adapter {
	return New(client,
		config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024},
		config.ExtractConfig{RetryAttempts: 3, MaxBackoffSecs: 1, LowConfidenceFloor: 40},
	)
}

func testVenue() model.Venue {
	return model.Venue{ID: "dive-bar", Name: "The Dive Bar", URL: "https://dive.example"}
}

func testPages() []model.Page {
	return []model.Page{{VenueID: "dive-bar", URL: "https://dive.example/specials", Text: "happy hour 5-7"}}
}

func TestExtractSuccess(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeReply{{text: validPayload}}}
	rec := testAdapter(client).Extract(context.Background(), testVenue(), testPages(), "hash123")

	assert.True(t, rec.Found)
	assert.Equal(t, "dive-bar", rec.VenueID)
	assert.Equal(t, "hash123", rec.SnapshotHash)
	require.Len(t, rec.Entries, 1)
	assert.Equal(t, "happy_hour", rec.Entries[0].Category)
	assert.False(t, rec.ProcessedAt.IsZero())
}

func TestExtractRetriesRateLimit(t *testing.T) {
	t.Parallel()

	rateLimited := resilience.NewTransientError(eris.New("rate limit exceeded"), 429)
	client := &fakeClient{responses: []fakeReply{
		{err: rateLimited},
		{err: rateLimited},
		{text: validPayload},
	}}

	rec := testAdapter(client).Extract(context.Background(), testVenue(), testPages(), "h")

	assert.True(t, rec.Found)
	assert.Equal(t, 3, client.calls)
}

func TestExtractNonRetryableFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeReply{{err: eris.New("invalid request: prompt too long")}}}
	rec := testAdapter(client).Extract(context.Background(), testVenue(), testPages(), "h")

	assert.False(t, rec.Found)
	assert.NotEmpty(t, rec.Reason)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "h", rec.SnapshotHash)
}

func TestExtractUnparseableResponse(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeReply{{text: "sorry, I cannot help with that"}}}
	rec := testAdapter(client).Extract(context.Background(), testVenue(), testPages(), "h")

	assert.False(t, rec.Found)
	assert.Equal(t, "unparseable model response", rec.Reason)
}

func TestExtractNotFoundResponse(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeReply{{text: `{"found": false, "reason": "no promos listed"}`}}}
	rec := testAdapter(client).Extract(context.Background(), testVenue(), testPages(), "h")

	assert.False(t, rec.Found)
	assert.Equal(t, "no promos listed", rec.Reason)
}

func TestExtractAccumulatesUsage(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []fakeReply{
		{text: validPayload, usage: anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20}},
		{text: validPayload, usage: anthropic.TokenUsage{InputTokens: 50, OutputTokens: 10}},
	}}
	adapter := testAdapter(client)

	adapter.Extract(context.Background(), testVenue(), testPages(), "h1")
	adapter.Extract(context.Background(), testVenue(), testPages(), "h2")

	usage := adapter.Usage()
	assert.Equal(t, int64(150), usage.InputTokens)
	assert.Equal(t, int64(30), usage.OutputTokens)
}

func TestExtractNoPages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	rec := testAdapter(client).Extract(context.Background(), testVenue(), nil, "")

	assert.False(t, rec.Found)
	assert.Equal(t, "no pages in snapshot", rec.Reason)
	assert.Equal(t, 0, client.calls)
}

func TestBuildPromptIncludesPages(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(testVenue(), testPages())
	assert.Contains(t, prompt, "The Dive Bar")
	assert.Contains(t, prompt, "https://dive.example/specials")
	assert.Contains(t, prompt, "happy hour 5-7")
}
