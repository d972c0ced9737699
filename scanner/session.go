package scanner

import (
	"context"
	"sync"

	"github.com/go-json-experiment/json/jsontext"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner/report"
	"gitlab.com/auditker/scanner/sitemap"
	"gitlab.com/auditker/scanner/traffic"
	"gitlab.com/auditker/scanner/watchlist"
)

// Session is everything that belongs to the active project. A project switch
// builds a new session and discards the old one as a whole.
type Session struct {
	Name       string
	Generation uint64

	Store      auditk.DocumentStorer
	Engine     *watchlist.Engine
	Ledger     *report.Ledger
	Classifier *traffic.Classifier
	Poller     *sitemap.Poller
	Journal    auditk.Journaler

	cfg    *auditk.Config
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	settings auditk.Settings
	extra    map[string]jsontext.Value
}

// Settings of the project
func (s *Session) Settings() auditk.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// Document assembled from the session's current state
func (s *Session) Document() *auditk.Document {
	doc := auditk.NewDocument()
	doc.WatchListAudit = s.Engine.Items()
	doc.Vulnerabilities, doc.MaxVulnID = s.Ledger.Snapshot()

	s.mu.Lock()
	doc.Settings = s.settings.Clone()
	if s.extra != nil {
		doc.Extra = make(map[string]jsontext.Value, len(s.extra))
		for k, v := range s.extra {
			doc.Extra[k] = append(jsontext.Value(nil), v...)
		}
	}
	s.mu.Unlock()
	return doc
}

// stop background work and empty the in memory state. Nothing is saved.
func (s *Session) stop() {
	if s.Poller != nil {
		s.Poller.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.Poller != nil {
		s.Poller.Wait()
	}
	s.Engine.Reset()
	s.Ledger.Reset()
	if err := s.Journal.Close(); err != nil {
		logJournalClose(s.Name, err)
	}
}

// Config the session was opened with, project settings applied
func (s *Session) Config() *auditk.Config {
	return s.cfg
}
