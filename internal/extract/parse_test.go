package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{"found": true, "promotions": [{"category": "happy_hour", "days": ["monday"], "start_time": "15:00", "end_time": "18:00", "offers": ["$5 drafts"], "confidence": 85}]}`

func TestParseResponseStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"strict json", validPayload},
		{"fenced json block", "Here is the result:\n```json\n" + validPayload + "\n```\nDone."},
		{"fenced without language tag", "```\n" + validPayload + "\n```"},
		{"prose wrapped braces", "Sure! The promotions are: " + validPayload + " Hope that helps."},
		{"leading whitespace", "\n\n  " + validPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := parseResponse(tt.raw)
			require.NoError(t, err)
			assert.True(t, resp.Found)
			require.Len(t, resp.Promotions, 1)
			assert.Equal(t, "happy_hour", resp.Promotions[0].Category)
		})
	}
}

func TestParseResponseFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no json at all", "I could not find any promotions on this site."},
		{"broken json", `{"found": true, "promotions": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseResponse(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseResponseNotFound(t *testing.T) {
	t.Parallel()

	resp, err := parseResponse(`{"found": false, "reason": "static brochure site"}`)
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.Equal(t, "static brochure site", resp.Reason)
}

func TestUpgradeEntriesLegacyTimeWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		window    string
		wantStart string
		wantEnd   string
	}{
		{"object window", `{"start": "17:00", "end": "19:00"}`, "17:00", "19:00"},
		{"dash string", `"5pm-7pm"`, "5pm", "7pm"},
		{"to string", `"5pm to 7pm"`, "5pm", "7pm"},
		{"bare string", `"happy hour time"`, "happy hour time", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			promos := []wirePromotion{{
				Category:   "happy_hour",
				Confidence: 90,
				TimeWindow: json.RawMessage(tt.window),
			}}
			entries := upgradeEntries(promos, 40)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantStart, entries[0].StartTime)
			assert.Equal(t, tt.wantEnd, entries[0].EndTime)
		})
	}
}

func TestUpgradeEntriesDropsUnusable(t *testing.T) {
	t.Parallel()

	promos := []wirePromotion{
		{Category: "happy_hour", Confidence: 90}, // no days, times, or offers
		{Category: "trivia", Days: []string{"tuesday"}, Confidence: 90},
	}
	entries := upgradeEntries(promos, 40)
	require.Len(t, entries, 1)
	assert.Equal(t, "trivia", entries[0].Category)
}

func TestUpgradeEntriesLowConfidenceFlag(t *testing.T) {
	t.Parallel()

	promos := []wirePromotion{
		{Category: "happy_hour", Days: []string{"friday"}, Confidence: 35},
		{Category: "trivia", Days: []string{"tuesday"}, Confidence: 80},
	}
	entries := upgradeEntries(promos, 40)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].LowConfidence)
	assert.False(t, entries[1].LowConfidence)
}

func TestNormalizeConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want int
	}{
		{85, 85},
		{0.85, 85}, // fractional scale from older prompt versions
		{1.0, 100},
		{-5, 0},
		{150, 100},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeConfidence(tt.in), "in=%v", tt.in)
	}
}

func TestUpgradeEntriesDefaultsCategory(t *testing.T) {
	t.Parallel()

	promos := []wirePromotion{{Offers: []string{"$2 tacos"}, Confidence: 70}}
	entries := upgradeEntries(promos, 40)
	require.Len(t, entries, 1)
	assert.Equal(t, "other", entries[0].Category)
}
