// Package matcher decides whether a watch list pattern covers a request and
// memoizes those decisions for a bounded time.
package matcher

import (
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
)

var wildcards sync.Map // pattern -> *regexp.Regexp, nil for patterns that failed to compile

// Matches reports whether pattern covers the request. The checks run in
// order and the first hit wins:
// exact full URL, wildcard on the full URL, exact path, wildcard on the path,
// directory scope. Everything is case insensitive and default ports are
// ignored. Empty and malformed patterns never match.
func Matches(pattern, requestPath, requestFullURL string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	pattern = auditk.StripDefaultPort(pattern)
	if !strings.Contains(pattern, "*") {
		if canonical := auditk.CanonicalPath(pattern); canonical != "" {
			pattern = canonical
		}
	}
	fullURL := auditk.StripDefaultPort(strings.ToLower(strings.TrimSpace(requestFullURL)))
	// a bare host request is the root of that host
	if canonical := auditk.CanonicalPath(fullURL); canonical != "" {
		fullURL = canonical
	}

	if fullURL != "" {
		if pattern == fullURL {
			return true
		}
		if strings.Contains(pattern, "*") && wildcardMatch(pattern, fullURL) {
			return true
		}
	}

	reqPath := strings.ToLower(strings.TrimSpace(requestPath))
	if reqPath == "" && fullURL != "" {
		reqPath = fullURL
	}
	reqPath = auditk.PathOf(reqPath)
	patternPath := auditk.PathOf(pattern)
	if patternPath == "" || reqPath == "" {
		return false
	}

	if patternPath != "/" && patternPath == reqPath {
		return true
	}
	if strings.Contains(patternPath, "*") && wildcardMatch(patternPath, reqPath) {
		return true
	}
	return len(patternPath) > 1 && strings.HasSuffix(patternPath, "/") && strings.HasPrefix(reqPath, patternPath)
}

// MatchesAny reports whether any of the patterns covers the request
func MatchesAny(patterns []string, requestPath, requestFullURL string) bool {
	for _, p := range patterns {
		if Matches(p, requestPath, requestFullURL) {
			return true
		}
	}
	return false
}

func wildcardMatch(pattern, subject string) bool {
	re := compileWildcard(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(subject)
}

func compileWildcard(pattern string) *regexp.Regexp {
	if cached, ok := wildcards.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}

	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		log.Debug().Err(err).Str("pattern", pattern).Msg("invalid wildcard pattern")
		wildcards.Store(pattern, (*regexp.Regexp)(nil))
		return nil
	}
	wildcards.Store(pattern, re)
	return re
}
