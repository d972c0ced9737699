package auditk

import "context"

// DocumentStorer loads and durably saves a project document
type DocumentStorer interface {
	Path() string
	Load() *Document
	Save(doc *Document) bool
}

// Journaler keeps the audit history of a project
type Journaler interface {
	Record(evt *JournalEvent)
	Events(limit int) ([]*JournalEvent, error)
	Close() error
}

// SiteMapEntry is one endpoint known to the site map provider
type SiteMapEntry struct {
	URL             string
	Method          string
	StatusCode      int
	ResponseHeaders map[string]string
}

// SiteMapProvider enumerates known endpoints for a target, it is only pulled from
type SiteMapProvider interface {
	ListKnownEndpoints(ctx context.Context, targetBaseURL string) ([]*SiteMapEntry, error)
}
