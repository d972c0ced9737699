package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/auditker/scanner/matcher"
)

func TestMatches(t *testing.T) {
	var inputs = []struct {
		pattern  string
		path     string
		fullURL  string
		expected bool
	}{
		{"https://ex.com/admin/*", "/admin/users?id=1", "https://ex.com/admin/users?id=1", true},
		{"https://ex.com/admin/*", "/administrator", "https://ex.com/administrator", false},
		{"https://EX.com/Login", "/login", "https://ex.com/login", true},
		{"https://ex.com:443/login", "/login", "https://ex.com/login", true},
		{"http://ex.com/login", "/login", "http://ex.com:80/login", true},
		{"https://ex.com:8443/login", "/login", "https://ex.com:8443/login", true},
		{"https://ex.com/", "/anything", "https://ex.com/anything", false},
		{"https://ex.com/", "/", "https://ex.com/", true},
		{"https://ex.com/", "", "https://ex.com", true},
		{"https://ex.com/", "/", "https://EX.com:443", true},
		{"https://ex.com", "/", "https://ex.com/", true},
		{"https://ex.com/", "", "https://other.com", false},
		{"https://ex.com/api/", "/api/v1/users", "https://ex.com/api/v1/users", true},
		{"https://ex.com/api/", "/apiv2", "https://ex.com/apiv2", false},
		{"/search", "/search?q=1", "https://ex.com/search?q=1", true},
		{"*/item/*/edit", "/shop/item/42/edit", "https://ex.com/shop/item/42/edit", true},
		{"/item/*/edit", "/item/42/view", "https://ex.com/item/42/view", false},
		{"https://ex.com/a.b", "/axb", "https://ex.com/axb", false},
		{"", "/login", "https://ex.com/login", false},
		{"   ", "/", "https://ex.com/", false},
	}

	for _, in := range inputs {
		require.Equal(t, in.expected, matcher.Matches(in.pattern, in.path, in.fullURL),
			"pattern %q path %q url %q", in.pattern, in.path, in.fullURL)
	}
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"", "https://ex.com/a", "https://ex.com/b/*"}
	require.True(t, matcher.MatchesAny(patterns, "/b/c", "https://ex.com/b/c"))
	require.False(t, matcher.MatchesAny(patterns, "/c", "https://ex.com/c"))
	require.False(t, matcher.MatchesAny(nil, "/c", "https://ex.com/c"))
}
