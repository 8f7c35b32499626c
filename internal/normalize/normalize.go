// Package normalize reduces raw fetched HTML to canonical visible text, and
// provides a second, stricter pass used only for change-detection hashing.
package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// TruncationMarker is appended when normalized text exceeds the length cap.
const TruncationMarker = "\n[truncated]"

// DefaultMaxTextLen caps normalized text per page.
const DefaultMaxTextLen = 50000

// structural elements removed entirely before text extraction.
var strippedSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "template",
	"nav", "header", "footer", "form", "aside",
	"[aria-hidden=true]", "[hidden]",
}

// blockElements emit a newline boundary so paragraph structure survives.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"br": true, "hr": true, "blockquote": true, "pre": true,
}

// Normalizer converts raw page content into display text.
type Normalizer struct {
	maxTextLen int
}

// New creates a Normalizer with the given per-page text cap. A cap of 0 uses
// DefaultMaxTextLen.
func New(maxTextLen int) *Normalizer {
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxTextLen
	}
	return &Normalizer{maxTextLen: maxTextLen}
}

// Normalize parses HTML and returns visible text with block-level line
// breaks preserved. Returns "" for unparseable or empty input; callers must
// treat "" as "no content to hash or send".
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || looksBinary(raw) {
		return ""
	}

	// Venue sites are not reliably UTF-8: sniff BOM/meta charset and decode,
	// falling back to windows-1252 for undeclared single-byte pages.
	reader, err := charset.NewReader(strings.NewReader(raw), "")
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return ""
	}

	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}
	// Inline style-hidden nodes.
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})

	var b strings.Builder
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	for _, node := range body.Nodes {
		renderText(&b, node)
	}

	text := collapseBlankLines(b.String())
	if len(text) > n.maxTextLen {
		cut := n.maxTextLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + TruncationMarker
	}
	return text
}

// renderText walks the node tree appending text, inserting newlines at
// block-element boundaries.
func renderText(b *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode:
		b.WriteString(node.Data)
	case html.CommentNode:
		return
	case html.ElementNode:
		if blockElements[node.Data] {
			b.WriteString("\n")
		}
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}
	if node.Type == html.ElementNode && blockElements[node.Data] {
		b.WriteString("\n")
	}
}

// collapseBlankLines trims each line and collapses runs of blank lines.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// looksBinary sniffs for non-text content that slipped past the skip-list.
// Only NUL bytes and known magic prefixes count as binary: pages in legacy
// single-byte encodings are text and go through charset decoding instead.
func looksBinary(raw string) bool {
	limit := len(raw)
	if limit > 512 {
		limit = 512
	}
	if strings.IndexByte(raw[:limit], 0) >= 0 {
		return true
	}
	for _, magic := range []string{"%PDF-", "\x89PNG", "GIF8", "\xff\xd8\xff", "PK\x03\x04"} {
		if strings.HasPrefix(raw, magic) {
			return true
		}
	}
	return false
}
