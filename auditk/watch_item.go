package auditk

import (
	"strings"
	"time"
)

// TimeFormat used for every stored timestamp
const TimeFormat = "2006-01-02 15:04:05"

// NeverAudited is the lastAudit sentinel for items that were never reviewed
const NeverAudited = "Never"

// AuditKind is one of the two independent review axes of a watch item
type AuditKind int8

const (
	// AuditManual operator review
	AuditManual AuditKind = iota + 1
	// AuditScanned automated tool review
	AuditScanned
)

func (k AuditKind) String() string {
	switch k {
	case AuditManual:
		return "manual"
	case AuditScanned:
		return "scanned"
	}
	return "unknown"
}

// ParseAuditKind from its string form
func ParseAuditKind(s string) (AuditKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual", "audited":
		return AuditManual, true
	case "scanned", "scan", "scanner":
		return AuditScanned, true
	}
	return 0, false
}

// Source records where a watch item came from
type Source string

const (
	SourceManual      Source = "manual"
	SourceImport      Source = "import"
	SourceSitemap     Source = "sitemap"
	SourceSitemapAuto Source = "sitemap-auto"
)

// Valid reports whether s is a known provenance tag
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceImport, SourceSitemap, SourceSitemapAuto:
		return true
	}
	return false
}

// WatchItem is one monitored endpoint. Path is always the full URL.
type WatchItem struct {
	Path          string `json:"path"`
	ManualAudited bool   `json:"manualAudited"`
	Scanned       bool   `json:"scanned"`
	LastAudit     string `json:"lastAudit"`
	Note          string `json:"note"`
	Highlight     bool   `json:"highlight"`
	Added         string `json:"added"`
	Source        Source `json:"source"`
}

// NewWatchItem that has never been audited
func NewWatchItem(path string, source Source, now time.Time) *WatchItem {
	if !source.Valid() {
		source = SourceManual
	}
	return &WatchItem{
		Path:      strings.TrimSpace(path),
		LastAudit: NeverAudited,
		Added:     now.Format(TimeFormat),
		Source:    source,
	}
}

// Audited returns the flag for the kind of review
func (w *WatchItem) Audited(kind AuditKind) bool {
	switch kind {
	case AuditManual:
		return w.ManualAudited
	case AuditScanned:
		return w.Scanned
	}
	return false
}

// SetAudited sets the flag for kind, returns false if it was already set
func (w *WatchItem) SetAudited(kind AuditKind, now time.Time) bool {
	if w.Audited(kind) {
		return false
	}
	switch kind {
	case AuditManual:
		w.ManualAudited = true
	case AuditScanned:
		w.Scanned = true
	default:
		return false
	}
	w.LastAudit = now.Format(TimeFormat)
	return true
}

// ResetAudit clears both review axes
func (w *WatchItem) ResetAudit() {
	w.ManualAudited = false
	w.Scanned = false
	w.LastAudit = NeverAudited
}

// Clone returns a copy of the item
func (w *WatchItem) Clone() *WatchItem {
	c := *w
	return &c
}
