package auditk

import (
	"strings"
	"time"
	"unicode"
)

// ProjectRecord maps a project name to its document file
type ProjectRecord struct {
	Name        string `json:"-"`
	DataFile    string `json:"dataFile"`
	Description string `json:"description"`
	Created     string `json:"created"`
	LastUsed    string `json:"lastUsed"`
}

// LastUsedTime parses LastUsed, zero time if unset or malformed
func (p *ProjectRecord) LastUsedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.LastUsed)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NormalizeProjectName makes name safe to use as a registry key and a file
// name: spaces and dashes become underscores, anything else that is not a
// letter, digit or underscore is dropped.
func NormalizeProjectName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimRight(b.String(), "_")
}
