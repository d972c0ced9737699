package auditk

import (
	"net"
	"strings"
)

// IsURL reports whether s looks like an absolute http(s) URL
func IsURL(s string) bool {
	lowered := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://")
}

// splitURL breaks an absolute URL into scheme, authority and the remainder
// (path, query and fragment). ok is false when s has no scheme separator.
func splitURL(s string) (scheme, authority, rest string, ok bool) {
	idx := strings.Index(s, "://")
	if idx <= 0 {
		return "", "", s, false
	}
	scheme = s[:idx]
	remaining := s[idx+3:]
	end := strings.IndexAny(remaining, "/?#")
	if end < 0 {
		return scheme, remaining, "", true
	}
	return scheme, remaining[:end], remaining[end:], true
}

// StripDefaultPort removes :443 from https and :80 from http authorities.
// Non URL input is returned unchanged.
func StripDefaultPort(s string) string {
	scheme, authority, rest, ok := splitURL(s)
	if !ok {
		return s
	}
	switch strings.ToLower(scheme) {
	case "https":
		authority = strings.TrimSuffix(authority, ":443")
	case "http":
		authority = strings.TrimSuffix(authority, ":80")
	}
	return scheme + "://" + authority + rest
}

// CanonicalPath is the form used for uniqueness comparisons: scheme and host
// lower cased, default port and fragment removed, empty path replaced by "/".
// Returns "" when raw is not an absolute URL.
func CanonicalPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if !IsURL(raw) {
		return ""
	}
	scheme, authority, rest, ok := splitURL(StripDefaultPort(raw))
	if !ok || authority == "" {
		return ""
	}
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" || rest[0] == '?' {
		rest = "/" + rest
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(authority) + rest
}

// DisplayPath of a stored path. When stripHost is set the scheme and host are
// removed and only the path and query remain.
func DisplayPath(path string, stripHost bool) string {
	if !stripHost {
		return path
	}
	_, _, rest, ok := splitURL(path)
	if !ok {
		return path
	}
	if rest == "" || rest[0] == '?' {
		rest = "/" + rest
	}
	return rest
}

// ExpandDisplayPath turns a host-less display path into a full URL using the
// scheme and host of base. Full URLs are returned as is, anything else
// returns "".
func ExpandDisplayPath(display, base string) string {
	display = strings.TrimSpace(display)
	if IsURL(display) {
		return display
	}
	if !strings.HasPrefix(display, "/") || !IsURL(base) {
		return ""
	}
	scheme, authority, _, ok := splitURL(base)
	if !ok || authority == "" {
		return ""
	}
	return scheme + "://" + authority + display
}

// Hostname of an absolute URL, lower cased and without port
func Hostname(raw string) string {
	_, authority, _, ok := splitURL(strings.TrimSpace(raw))
	if !ok {
		return ""
	}
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		authority = authority[at+1:]
	}
	if host, _, err := net.SplitHostPort(authority); err == nil {
		authority = host
	}
	return strings.ToLower(strings.Trim(authority, "[]"))
}

// PathOf returns the path component of a URL or of a bare path, without the
// query string or fragment. Absolute URLs with no path return "/".
func PathOf(s string) string {
	s = strings.TrimSpace(s)
	if _, _, rest, ok := splitURL(s); ok {
		s = rest
		if s == "" || s[0] == '?' || s[0] == '#' {
			return "/"
		}
	}
	if idx := strings.IndexAny(s, "?#"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// TrimQuery removes the query string and fragment from a URL
func TrimQuery(s string) string {
	if idx := strings.IndexAny(s, "?#"); idx >= 0 {
		return s[:idx]
	}
	return s
}
