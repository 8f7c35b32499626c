package extract

import (
	"fmt"
	"strings"

	"github.com/venuewatch/venuewatch/internal/model"
)

const systemPrompt = `You are an analyst who reads restaurant and bar website text and extracts recurring promotions (happy hours, trivia nights, daily specials, live music, brunch deals).

Respond with ONLY a JSON object, no prose, in this shape:
{
  "found": true,
  "promotions": [
    {
      "category": "happy_hour",
      "days": ["monday", "tuesday"],
      "start_time": "15:00",
      "end_time": "18:00",
      "offers": ["$5 draft beers", "half-price appetizers"],
      "source_url": "https://example.com/specials",
      "confidence": 85
    }
  ]
}

Rules:
- category is one of: happy_hour, trivia, live_music, brunch, daily_special, other.
- days are lowercase full English day names.
- times are 24-hour HH:MM when stated; omit when the site gives none.
- offers quote the site's own wording, trimmed.
- confidence is an integer 0-100 reflecting how explicit the source text is.
- source_url is the page the promotion was read from.
- If no recurring promotions are present, respond {"found": false, "reason": "<one line>"}.
- Never invent offers, days, or times that the text does not state.`

// maxPromptPageLen bounds each page's contribution to the prompt so one
// huge page cannot crowd out the rest.
const maxPromptPageLen = 12000

// buildPrompt renders the venue's pages into the user message, each page
// labeled with its source URL so the model can attribute promotions.
func buildPrompt(venue model.Venue, pages []model.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Venue: %s\nHomepage: %s\n", venue.Name, venue.URL)
	if venue.Area != "" {
		fmt.Fprintf(&b, "Area: %s\n", venue.Area)
	}
	b.WriteString("\nExtract recurring promotions from the following page texts.\n")

	for i, p := range pages {
		text := p.Text
		if len(text) > maxPromptPageLen {
			text = text[:maxPromptPageLen]
		}
		fmt.Fprintf(&b, "\n--- PAGE %d: %s ---\n%s\n", i+1, p.URL, text)
	}
	return b.String()
}
