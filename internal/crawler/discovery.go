package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defaultKeywords qualify a link for fetching when no keywords are configured.
var defaultKeywords = []string{
	"menu", "specials", "special", "happy-hour", "happyhour", "happy_hour",
	"events", "deals", "drink", "food", "offers", "promotions", "hours",
}

// discoverSubpages extracts candidate subpage URLs from homepage HTML. A
// link qualifies when it resolves to the same host as the homepage AND its
// path or anchor text matches a keyword, and it is not skip-listed. Results
// are deduplicated and capped at MaxSubpages.
func (c *Crawler) discoverSubpages(homepageHTML, homepageURL string) []string {
	base, err := url.Parse(homepageURL)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homepageHTML))
	if err != nil {
		return nil
	}

	maxSubpages := c.cfg.MaxSubpages
	if maxSubpages <= 0 {
		maxSubpages = 10
	}
	keywords := c.cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}

	seen := map[string]bool{normalizeLink(base): true}
	var urls []string

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return true
		}

		resolved, err := url.Parse(href)
		if err != nil {
			return true
		}
		absolute := base.ResolveReference(resolved)
		if absolute.Host != base.Host {
			return true
		}
		absolute.Fragment = ""

		anchorText := strings.TrimSpace(s.Text())
		if !matchesKeyword(absolute.Path, anchorText, keywords) {
			return true
		}
		if c.matcher.IsSkipped(absolute.String()) {
			return true
		}

		normalized := normalizeLink(absolute)
		if seen[normalized] {
			return true
		}
		seen[normalized] = true
		urls = append(urls, absolute.String())

		return len(urls) < maxSubpages
	})

	return urls
}

// matchesKeyword checks the URL path and anchor text against the keyword list.
func matchesKeyword(urlPath, anchorText string, keywords []string) bool {
	p := strings.ToLower(urlPath)
	t := strings.ToLower(anchorText)
	for _, kw := range keywords {
		if strings.Contains(p, kw) || strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func normalizeLink(u *url.URL) string {
	return strings.TrimRight(u.String(), "/")
}
