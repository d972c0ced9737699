package watchlist

import (
	"strings"

	"github.com/pkg/errors"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner/matcher"
)

func (e *Engine) reindexLocked() {
	e.canonical = make(map[string]*auditk.WatchItem, len(e.items))
	e.display = make(map[string]*auditk.WatchItem, len(e.items))
	for _, item := range e.items {
		e.indexLocked(item)
	}
}

func (e *Engine) indexLocked(item *auditk.WatchItem) {
	key := auditk.CanonicalPath(item.Path)
	if key == "" {
		return
	}
	if _, ok := e.canonical[key]; !ok {
		e.canonical[key] = item
	}
	display := auditk.DisplayPath(key, true)
	if _, ok := e.display[display]; !ok {
		e.display[display] = item
	}
}

// lookupLocked finds the item for a full URL or a host-less display path.
// key is the canonical form the path would be stored under, empty when it
// cannot be turned into a full URL.
func (e *Engine) lookupLocked(path string) (*auditk.WatchItem, string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ""
	}
	if auditk.IsURL(path) {
		key := auditk.CanonicalPath(path)
		return e.canonical[key], key
	}
	if item, ok := e.display[path]; ok {
		return item, auditk.CanonicalPath(item.Path)
	}
	key := auditk.CanonicalPath(auditk.ExpandDisplayPath(path, e.baseURL))
	if key == "" {
		return nil, ""
	}
	return e.canonical[key], key
}

func (e *Engine) insertLocked(record auditk.ExportItem, source auditk.Source) (*auditk.WatchItem, error) {
	if strings.TrimSpace(record.Path) == "" {
		return nil, auditk.ErrEmptyPath
	}
	existing, key := e.lookupLocked(record.Path)
	if key == "" {
		return nil, errors.Wrap(auditk.ErrNotURL, record.Path)
	}
	if existing != nil {
		return nil, errors.Wrap(auditk.ErrDuplicateItem, existing.Path)
	}

	item := auditk.NewWatchItem(key, source, e.now())
	item.Note = record.Note
	item.Highlight = record.Highlight
	if record.Audited {
		item.ManualAudited = true
		item.LastAudit = record.LastAudit
		if item.LastAudit == "" || item.LastAudit == auditk.NeverAudited {
			item.LastAudit = e.now().Format(auditk.TimeFormat)
		}
	}
	e.items = append(e.items, item)
	e.indexLocked(item)
	return item, nil
}

// matchingLocked runs the matcher over the watch list. Large lists are first
// narrowed to items whose path contains the request host; items with a
// wildcard or without a host always stay candidates.
func (e *Engine) matchingLocked(path, fullURL string) []*auditk.WatchItem {
	candidates := e.items
	if len(e.items) > e.hostFilterThreshold {
		if host := auditk.Hostname(fullURL); host != "" {
			candidates = make([]*auditk.WatchItem, 0)
			for _, item := range e.items {
				lowered := strings.ToLower(item.Path)
				if strings.Contains(lowered, host) || strings.Contains(lowered, "*") || !auditk.IsURL(lowered) {
					candidates = append(candidates, item)
				}
			}
		}
	}

	matched := make([]*auditk.WatchItem, 0)
	for _, item := range candidates {
		if matcher.Matches(item.Path, path, fullURL) {
			matched = append(matched, item)
		}
	}
	return matched
}
