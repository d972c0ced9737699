// Package watchlist owns the in memory watch list and its audit state
package watchlist

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner/matcher"
)

// ChangeHook is called after every mutation, outside of the engine lock.
// events may be empty when only the document needs persisting.
type ChangeHook func(events ...*auditk.JournalEvent)

// Stats of the watch list
type Stats struct {
	Total       int
	Manual      int
	Scanned     int
	Either      int
	Highlighted int
}

// Engine holds the watch items of the active project
type Engine struct {
	mu        sync.RWMutex
	items     []*auditk.WatchItem
	canonical map[string]*auditk.WatchItem
	display   map[string]*auditk.WatchItem

	baseURL             string
	stripHost           bool
	hostFilterThreshold int
	chunkSize           int
	chunkPause          time.Duration

	cache *matcher.Cache
	hook  ChangeHook
	now   func() time.Time
}

// New engine configured from cfg
func New(cfg *auditk.Config) *Engine {
	e := &Engine{
		items:               make([]*auditk.WatchItem, 0),
		canonical:           make(map[string]*auditk.WatchItem),
		display:             make(map[string]*auditk.WatchItem),
		baseURL:             cfg.TargetURL,
		stripHost:           cfg.StripHostInDisplay,
		hostFilterThreshold: cfg.HostFilterThreshold,
		chunkSize:           cfg.ImportChunkSize,
		chunkPause:          cfg.ImportChunkPause,
		cache:               matcher.NewCache(cfg.MatchTTL, cfg.ScannedTTL),
		now:                 time.Now,
	}
	if e.hostFilterThreshold <= 0 {
		e.hostFilterThreshold = auditk.DefaultHostFilterThreshold
	}
	if e.chunkSize <= 0 {
		e.chunkSize = auditk.DefaultImportChunkSize
	}
	return e
}

// SetChangeHook replaces the mutation hook
func (e *Engine) SetChangeHook(hook ChangeHook) {
	e.mu.Lock()
	e.hook = hook
	e.mu.Unlock()
}

// SetClock replaces the time source used for audit timestamps
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
	e.cache.SetClock(now)
}

// SetTarget used to expand display form paths
func (e *Engine) SetTarget(baseURL string, stripHost bool) {
	e.mu.Lock()
	e.baseURL = baseURL
	e.stripHost = stripHost
	e.mu.Unlock()
}

// Cache used for match and scanned lookups. Entries only expire by time, a
// mutation does not invalidate them; Load starts a fresh window.
func (e *Engine) Cache() *matcher.Cache {
	return e.cache
}

// Load replaces the watch list wholesale. Items are taken over as they are.
func (e *Engine) Load(items []*auditk.WatchItem) {
	e.mu.Lock()
	e.items = make([]*auditk.WatchItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			e.items = append(e.items, item)
		}
	}
	e.reindexLocked()
	e.mu.Unlock()
	e.cache.Reset()
}

// Reset to an empty watch list without notifying the hook
func (e *Engine) Reset() {
	e.Load(nil)
}

// Items returns copies of the watch items in insertion order
func (e *Engine) Items() []*auditk.WatchItem {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := make([]*auditk.WatchItem, 0, len(e.items))
	for _, item := range e.items {
		items = append(items, item.Clone())
	}
	return items
}

// Len of the watch list
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.items)
}

// Get a copy of the item stored for path (full URL or display form)
func (e *Engine) Get(path string) (*auditk.WatchItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	item, _ := e.lookupLocked(path)
	if item == nil {
		return nil, errors.Wrap(auditk.ErrItemNotFound, path)
	}
	return item.Clone(), nil
}

// DisplayPath of a stored path using the current display setting
func (e *Engine) DisplayPath(path string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return auditk.DisplayPath(path, e.stripHost)
}

// Classify reports whether the request is covered by the watch list
func (e *Engine) Classify(path, fullURL string) bool {
	return e.cache.CachedMatch(path, fullURL, func() bool {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return len(e.matchingLocked(path, fullURL)) > 0
	})
}

// Match returns the stored paths of every item covering the request
func (e *Engine) Match(path, fullURL string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := e.matchingLocked(path, fullURL)
	paths := make([]string, 0, len(matched))
	for _, item := range matched {
		paths = append(paths, item.Path)
	}
	return paths
}

// IsAudited is true when the request matches at least one item and every
// matching item carries the flag for kind. Scanned lookups are cached.
func (e *Engine) IsAudited(kind auditk.AuditKind, path, fullURL string) bool {
	compute := func() bool {
		e.mu.RLock()
		defer e.mu.RUnlock()
		matched := e.matchingLocked(path, fullURL)
		if len(matched) == 0 {
			return false
		}
		for _, item := range matched {
			if !item.Audited(kind) {
				return false
			}
		}
		return true
	}

	if kind != auditk.AuditScanned {
		return compute()
	}
	key := auditk.TrimQuery(fullURL)
	if key == "" {
		key = path
	}
	return e.cache.CachedIsScanned(key, compute)
}

// MarkAudited sets the kind flag on every matching item that does not have it
// yet. Items that already carry the flag keep their lastAudit.
func (e *Engine) MarkAudited(kind auditk.AuditKind, path, fullURL string) (int, auditk.Outcome) {
	e.mu.Lock()
	matched := e.matchingLocked(path, fullURL)
	if len(matched) == 0 {
		e.mu.Unlock()
		return 0, auditk.Failure(errors.Wrap(auditk.ErrItemNotFound, fullURL))
	}
	events := e.markLocked(kind, matched)
	hook := e.hook
	e.mu.Unlock()

	if len(events) == 0 {
		return 0, auditk.Success("already " + kind.String())
	}
	notify(hook, events...)
	return len(events), auditk.Success("marked " + strconv.Itoa(len(events)) + " " + kind.String())
}

// MarkAuditedBatch marks every request URL in one pass with a single hook call
func (e *Engine) MarkAuditedBatch(kind auditk.AuditKind, fullURLs []string) int {
	e.mu.Lock()
	events := make([]*auditk.JournalEvent, 0)
	for _, fullURL := range fullURLs {
		events = append(events, e.markLocked(kind, e.matchingLocked(auditk.PathOf(fullURL), fullURL))...)
	}
	hook := e.hook
	e.mu.Unlock()

	if len(events) > 0 {
		notify(hook, events...)
	}
	return len(events)
}

func (e *Engine) markLocked(kind auditk.AuditKind, items []*auditk.WatchItem) []*auditk.JournalEvent {
	evtType := auditk.EvtMarkedManual
	if kind == auditk.AuditScanned {
		evtType = auditk.EvtMarkedScanned
	}
	now := e.now()
	events := make([]*auditk.JournalEvent, 0)
	for _, item := range items {
		if item.SetAudited(kind, now) {
			events = append(events, auditk.NewJournalEvent(evtType, item.Path, ""))
		}
	}
	return events
}

// Add a single endpoint
func (e *Engine) Add(path string, source auditk.Source) auditk.Outcome {
	e.mu.Lock()
	item, err := e.insertLocked(auditk.ExportItem{Path: path}, source)
	hook := e.hook
	e.mu.Unlock()
	if err != nil {
		return auditk.Failure(err)
	}
	notify(hook, auditk.NewJournalEvent(auditk.EvtItemAdded, item.Path, string(source)))
	return auditk.Success("added " + item.Path)
}

// Remove the item stored for path
func (e *Engine) Remove(path string) auditk.Outcome {
	e.mu.Lock()
	item, _ := e.lookupLocked(path)
	if item == nil {
		e.mu.Unlock()
		return auditk.Failure(errors.Wrap(auditk.ErrItemNotFound, path))
	}
	for i, candidate := range e.items {
		if candidate == item {
			e.items = append(e.items[:i], e.items[i+1:]...)
			break
		}
	}
	e.reindexLocked()
	hook := e.hook
	e.mu.Unlock()

	notify(hook, auditk.NewJournalEvent(auditk.EvtItemRemoved, item.Path, ""))
	return auditk.Success("removed " + item.Path)
}

// ImportEndpoints adds every url not already known and returns how many were inserted
func (e *Engine) ImportEndpoints(urls []string, source auditk.Source) int {
	inserted, _ := e.ImportEndpointsContext(context.Background(), urls, source)
	return inserted
}

// ImportEndpointsContext is ImportEndpoints with cancellation between chunks
func (e *Engine) ImportEndpointsContext(ctx context.Context, urls []string, source auditk.Source) (int, error) {
	records := make([]auditk.ExportItem, 0, len(urls))
	for _, u := range urls {
		records = append(records, auditk.ExportItem{Path: u})
	}
	return e.ImportRecords(ctx, records, source)
}

// ImportRecords inserts records in chunks, pausing between chunks so a large
// import never holds the lock for long. Audit flags, notes and highlights
// carried by a record are restored on insert. Known paths are skipped.
func (e *Engine) ImportRecords(ctx context.Context, records []auditk.ExportItem, source auditk.Source) (int, error) {
	inserted := 0
	var err error

	for start := 0; start < len(records); start += e.chunkSize {
		if start > 0 && e.chunkPause > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(e.chunkPause):
			}
		} else if ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			break
		}

		end := min(start+e.chunkSize, len(records))
		e.mu.Lock()
		for _, record := range records[start:end] {
			if _, insertErr := e.insertLocked(record, source); insertErr == nil {
				inserted++
			}
		}
		e.mu.Unlock()
	}

	if inserted > 0 {
		e.mu.RLock()
		hook := e.hook
		e.mu.RUnlock()
		notify(hook, auditk.NewJournalEvent(auditk.EvtImported, "", strconv.Itoa(inserted)+" endpoints from "+string(source)))
	}
	return inserted, err
}

// SetHighlight on the item stored for path
func (e *Engine) SetHighlight(path string, on bool) auditk.Outcome {
	e.mu.Lock()
	item, _ := e.lookupLocked(path)
	if item == nil {
		e.mu.Unlock()
		return auditk.Failure(errors.Wrap(auditk.ErrItemNotFound, path))
	}
	if item.Highlight == on {
		e.mu.Unlock()
		return auditk.Success("unchanged")
	}
	item.Highlight = on
	hook := e.hook
	e.mu.Unlock()

	notify(hook, auditk.NewJournalEvent(auditk.EvtHighlightChanged, item.Path, strconv.FormatBool(on)))
	return auditk.Success("highlight " + strconv.FormatBool(on))
}

// SetNote on the item stored for path
func (e *Engine) SetNote(path, note string) auditk.Outcome {
	e.mu.Lock()
	item, _ := e.lookupLocked(path)
	if item == nil {
		e.mu.Unlock()
		return auditk.Failure(errors.Wrap(auditk.ErrItemNotFound, path))
	}
	if item.Note == note {
		e.mu.Unlock()
		return auditk.Success("unchanged")
	}
	item.Note = note
	hook := e.hook
	e.mu.Unlock()

	notify(hook, auditk.NewJournalEvent(auditk.EvtNoteChanged, item.Path, note))
	return auditk.Success("note updated")
}

// GetNote of the item stored for path
func (e *Engine) GetNote(path string) (string, error) {
	item, err := e.Get(path)
	if err != nil {
		return "", err
	}
	return item.Note, nil
}

// TagVulnerability appends the finding marker to the note of the item whose
// canonical path equals the finding URL without its query
func (e *Engine) TagVulnerability(v *auditk.Vulnerability) bool {
	key := auditk.CanonicalPath(auditk.TrimQuery(v.URL))
	marker := v.NoteMarker()

	e.mu.Lock()
	item := e.canonical[key]
	if item == nil || strings.Contains(item.Note, marker) {
		e.mu.Unlock()
		return false
	}
	if item.Note == "" {
		item.Note = marker
	} else {
		item.Note = item.Note + " " + marker
	}
	hook := e.hook
	e.mu.Unlock()

	notify(hook)
	return true
}

// UntagVulnerability removes the finding marker from whichever note holds it
func (e *Engine) UntagVulnerability(v *auditk.Vulnerability) bool {
	marker := v.NoteMarker()

	e.mu.Lock()
	changed := false
	for _, item := range e.items {
		if !strings.Contains(item.Note, marker) {
			continue
		}
		item.Note = strings.Join(strings.Fields(strings.ReplaceAll(item.Note, marker, "")), " ")
		changed = true
	}
	hook := e.hook
	e.mu.Unlock()

	if changed {
		notify(hook)
	}
	return changed
}

// ClearAudits resets both audit flags on every item
func (e *Engine) ClearAudits() int {
	e.mu.Lock()
	cleared := 0
	for _, item := range e.items {
		if item.ManualAudited || item.Scanned || item.LastAudit != auditk.NeverAudited {
			item.ResetAudit()
			cleared++
		}
	}
	hook := e.hook
	e.mu.Unlock()

	if cleared > 0 {
		notify(hook, auditk.NewJournalEvent(auditk.EvtCleared, "", "audits of "+strconv.Itoa(cleared)+" items"))
	}
	return cleared
}

// ClearAll removes every item, the document file itself is kept
func (e *Engine) ClearAll() int {
	e.mu.Lock()
	removed := len(e.items)
	e.items = make([]*auditk.WatchItem, 0)
	e.reindexLocked()
	hook := e.hook
	e.mu.Unlock()

	notify(hook, auditk.NewJournalEvent(auditk.EvtCleared, "", "watch list of "+strconv.Itoa(removed)+" items"))
	return removed
}

// Stats of the current watch list
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{Total: len(e.items)}
	for _, item := range e.items {
		if item.ManualAudited {
			s.Manual++
		}
		if item.Scanned {
			s.Scanned++
		}
		if item.ManualAudited || item.Scanned {
			s.Either++
		}
		if item.Highlight {
			s.Highlighted++
		}
	}
	return s
}

func notify(hook ChangeHook, events ...*auditk.JournalEvent) {
	if hook != nil {
		hook(events...)
	}
}
