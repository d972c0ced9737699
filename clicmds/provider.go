package clicmds

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gitlab.com/auditker/auditk"
)

// FileSiteMapProvider reads known endpoints from a file on every call. Lines
// are either "URL" or "METHOD URL"; blank lines and # comments are skipped.
type FileSiteMapProvider struct {
	path string
}

func NewFileSiteMapProvider(path string) *FileSiteMapProvider {
	return &FileSiteMapProvider{path: path}
}

// ListKnownEndpoints returns entries whose host matches the target, or all of
// them when no target is set
func (f *FileSiteMapProvider) ListKnownEndpoints(ctx context.Context, targetBaseURL string) ([]*auditk.SiteMapEntry, error) {
	fd, err := os.Open(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "open site map")
	}
	defer fd.Close()

	host := auditk.Hostname(targetBaseURL)
	entries := make([]*auditk.SiteMapEntry, 0)
	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry := &auditk.SiteMapEntry{Method: "GET", URL: line}
		if fields := strings.Fields(line); len(fields) == 2 {
			entry.Method = strings.ToUpper(fields[0])
			entry.URL = fields[1]
		}
		if !auditk.IsURL(entry.URL) {
			continue
		}
		if host != "" && auditk.Hostname(entry.URL) != host {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errors.Wrap(scanner.Err(), "read site map")
}
