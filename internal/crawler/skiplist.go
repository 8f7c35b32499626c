package crawler

import (
	"net/url"
	"path"
	"strings"
)

// defaultSkipPatterns are used when no custom patterns are configured.
var defaultSkipPatterns = []string{
	"/privacy*", "/careers*", "/blog/*", "/terms*", "/login*", "/cart*",
	"/*.pdf", "/*.jpg", "/*.jpeg", "/*.png", "/*.gif", "/*.zip", "/*.mp4",
}

// SkipMatcher filters URLs based on glob-style path patterns. Uses
// path.Match from stdlib for proper glob matching, plus a segmented match so
// "/blog/*" matches multi-level paths like "/blog/deep/path".
type SkipMatcher struct {
	patterns []string
}

// NewSkipMatcher creates a SkipMatcher from glob patterns (e.g. "/blog/*",
// "/*.pdf"). Falls back to default patterns if none are provided.
func NewSkipMatcher(patterns []string) *SkipMatcher {
	if len(patterns) == 0 {
		patterns = defaultSkipPatterns
	}
	return &SkipMatcher{patterns: patterns}
}

// IsSkipped checks whether a URL matches any skip pattern. Unparseable URLs
// are skipped.
func (m *SkipMatcher) IsSkipped(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return m.isPathSkipped(u.Path)
}

func (m *SkipMatcher) isPathSkipped(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/blog/*"
// matches both "/blog/post" and "/blog/deep/nested/path".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	// For patterns ending in "/*", check whether the URL path starts with
	// the pattern's directory prefix, so "/blog/*" matches "/blog/a/b/c".
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
		return false
	}

	// A trailing bare "*" matches across segments too, so "/careers*" covers
	// both "/careers-page" and "/careers/openings".
	if strings.HasSuffix(pattern, "*") && !strings.ContainsAny(pattern[:len(pattern)-1], "*?[") {
		return strings.HasPrefix(urlPath, strings.TrimSuffix(pattern, "*"))
	}

	return false
}
