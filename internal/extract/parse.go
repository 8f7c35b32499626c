package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/venuewatch/internal/model"
)

// extractionResponse is the wire shape the extraction service is asked to
// return. Field types are deliberately loose; real responses drift.
type extractionResponse struct {
	Found      bool            `json:"found"`
	Reason     string          `json:"reason,omitempty"`
	Promotions []wirePromotion `json:"promotions"`
}

type wirePromotion struct {
	Category   string   `json:"category"`
	Days       []string `json:"days,omitempty"`
	StartTime  string   `json:"start_time,omitempty"`
	EndTime    string   `json:"end_time,omitempty"`
	Offers     []string `json:"offers,omitempty"`
	SourceURL  string   `json:"source_url,omitempty"`
	Confidence float64  `json:"confidence"`

	// Legacy flat shape: a single time window instead of start/end fields.
	TimeWindow json.RawMessage `json:"time_window,omitempty"`
}

type legacyTimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// parseStrategy attempts to extract a structured payload from raw model
// output. Strategies are tried in order; the first success wins.
type parseStrategy struct {
	name string
	fn   func(string) (string, error)
}

var parseStrategies = []parseStrategy{
	{"strict", parseStrict},
	{"fenced", parseFenced},
	{"brace_scan", parseBraceScan},
}

// parseResponse runs the ordered parse strategies over raw output and
// decodes the first candidate payload that unmarshals cleanly.
func parseResponse(raw string) (*extractionResponse, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("extract: empty response")
	}

	var lastErr error
	for _, strat := range parseStrategies {
		candidate, err := strat.fn(raw)
		if err != nil {
			lastErr = err
			continue
		}
		var resp extractionResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
			lastErr = eris.Wrapf(err, "extract: %s strategy produced invalid json", strat.name)
			continue
		}
		return &resp, nil
	}
	return nil, eris.Wrap(lastErr, "extract: all parse strategies failed")
}

// parseStrict requires the whole output to be a JSON object.
func parseStrict(raw string) (string, error) {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return "", eris.New("not a bare json object")
	}
	return raw, nil
}

// parseFenced extracts the payload from a markdown code fence.
func parseFenced(raw string) (string, error) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", eris.New("no code fence")
	}
	rest := raw[start+3:]
	if strings.HasPrefix(rest, "json") {
		rest = rest[4:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", eris.New("unterminated code fence")
	}
	return strings.TrimSpace(rest[:end]), nil
}

// parseBraceScan takes everything between the first { and last }.
func parseBraceScan(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", eris.New("no brace-delimited payload")
	}
	return raw[start : end+1], nil
}

// upgradeEntries converts wire promotions into typed entries, upgrading the
// legacy single time-window shape and dropping entries with no usable field.
func upgradeEntries(promos []wirePromotion, lowConfidenceFloor int) []model.PromoEntry {
	var entries []model.PromoEntry
	for _, p := range promos {
		entry := model.PromoEntry{
			Category:   strings.ToLower(strings.TrimSpace(p.Category)),
			Days:       cleanStrings(p.Days),
			StartTime:  strings.TrimSpace(p.StartTime),
			EndTime:    strings.TrimSpace(p.EndTime),
			Offers:     cleanStrings(p.Offers),
			SourceURL:  strings.TrimSpace(p.SourceURL),
			Confidence: normalizeConfidence(p.Confidence),
		}

		if entry.StartTime == "" && entry.EndTime == "" && len(p.TimeWindow) > 0 {
			entry.StartTime, entry.EndTime = upgradeTimeWindow(p.TimeWindow)
		}

		if entry.Category == "" {
			entry.Category = "other"
		}
		if !entry.Usable() {
			continue
		}
		if entry.Confidence < lowConfidenceFloor {
			entry.LowConfidence = true
		}
		entries = append(entries, entry)
	}
	return entries
}

// upgradeTimeWindow handles the legacy time_window field, which appears
// either as an object {"start","end"} or as a "5pm-7pm" style string.
func upgradeTimeWindow(raw json.RawMessage) (start, end string) {
	var obj legacyTimeWindow
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Start != "" || obj.End != "") {
		return strings.TrimSpace(obj.Start), strings.TrimSpace(obj.End)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, sep := range []string{"-", "–", " to "} {
			if idx := strings.Index(s, sep); idx > 0 {
				return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+len(sep):])
			}
		}
		return strings.TrimSpace(s), ""
	}
	return "", ""
}

// normalizeConfidence maps confidence onto the 0-100 scale; fractional
// values (0-1) from older prompt versions are scaled up.
func normalizeConfidence(c float64) int {
	if c > 0 && c <= 1.0 {
		c *= 100
	}
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return int(c + 0.5)
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
