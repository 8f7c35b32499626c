package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkipMatcher(t *testing.T) {
	t.Parallel()

	m := NewSkipMatcher(nil)

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"privacy page", "https://bar.example/privacy", true},
		{"privacy policy", "https://bar.example/privacy-policy", true},
		{"careers", "https://bar.example/careers/openings", true},
		{"blog nested", "https://bar.example/blog/2026/01/post", true},
		{"pdf asset", "https://bar.example/menu.pdf", true},
		{"image asset", "https://bar.example/hero.jpg", true},
		{"menu page", "https://bar.example/menu", false},
		{"specials page", "https://bar.example/specials", false},
		{"homepage", "https://bar.example/", false},
		{"case insensitive", "https://bar.example/PRIVACY", true},
		{"unparseable", "http://%zz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, m.IsSkipped(tt.url), tt.url)
		})
	}
}

func TestSkipMatcherCustomPatterns(t *testing.T) {
	t.Parallel()

	m := NewSkipMatcher([]string{"/shop/*"})

	assert.True(t, m.IsSkipped("https://bar.example/shop/tshirts"))
	assert.True(t, m.IsSkipped("https://bar.example/shop/a/b"))
	assert.False(t, m.IsSkipped("https://bar.example/privacy"))
}

func TestMatchSegmented(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/blog/*", "/blog/post", true},
		{"/blog/*", "/blog/a/b/c", true},
		{"/blog/*", "/blog", true},
		{"/blog/*", "/blogging", false},
		{"/*.pdf", "/menu.pdf", true},
		{"/*.pdf", "/files/menu.pdf", false},
		{"/privacy*", "/privacy-policy", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSegmented(tt.pattern, tt.path),
			"pattern %q path %q", tt.pattern, tt.path)
	}
}
