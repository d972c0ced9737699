// Package report keeps the operator asserted vulnerabilities of a project
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/auditker/auditk"
)

// ChangeHook is called after a mutation with the lock released
type ChangeHook func(events ...*auditk.JournalEvent)

// Ledger owns the vulnerability map. The map and the id counter are guarded
// by the same lock so check-then-insert is atomic.
type Ledger struct {
	mu    sync.Mutex
	vulns map[string]*auditk.Vulnerability
	maxID int64
	hook  ChangeHook
	now   func() time.Time
}

// New empty ledger
func New() *Ledger {
	return &Ledger{vulns: make(map[string]*auditk.Vulnerability), now: time.Now}
}

// SetChangeHook replaces the mutation hook
func (l *Ledger) SetChangeHook(hook ChangeHook) {
	l.mu.Lock()
	l.hook = hook
	l.mu.Unlock()
}

// SetClock replaces the time source for finding timestamps
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Load replaces the ledger contents, maxID never drops below the largest id
func (l *Ledger) Load(vulns map[string]*auditk.Vulnerability, maxID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.vulns = make(map[string]*auditk.Vulnerability, len(vulns))
	l.maxID = maxID
	for _, v := range vulns {
		if v == nil {
			continue
		}
		c := v.Clone()
		l.vulns[auditk.VulnKey(c.ID)] = c
		if c.ID > l.maxID {
			l.maxID = c.ID
		}
	}
}

// Reset to empty, including the id counter. Only used when switching projects.
func (l *Ledger) Reset() {
	l.Load(nil, 0)
}

// Snapshot copies the map and the counter for persisting
func (l *Ledger) Snapshot() (map[string]*auditk.Vulnerability, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vulns := make(map[string]*auditk.Vulnerability, len(l.vulns))
	for k, v := range l.vulns {
		vulns[k] = v.Clone()
	}
	return vulns, l.maxID
}

// Add a finding. A second finding for the same fingerprint and cwe is
// rejected with ErrDuplicateFinding.
func (l *Ledger) Add(fp auditk.Fingerprint, cwe, description, url, method string) (*auditk.Vulnerability, error) {
	code, catalogDesc, ok := auditk.LookupCWE(cwe)
	if !ok {
		return nil, errors.Wrap(auditk.ErrUnknownCWE, cwe)
	}
	if description == "" {
		description = catalogDesc
	}

	l.mu.Lock()
	for _, existing := range l.vulns {
		if existing.Fingerprint == fp && existing.CWE == code {
			l.mu.Unlock()
			return nil, errors.Wrapf(auditk.ErrDuplicateFinding, "#%d %s %s", existing.ID, code, fp)
		}
	}
	l.maxID++
	v := &auditk.Vulnerability{
		ID:          l.maxID,
		CWE:         code,
		Description: description,
		URL:         url,
		Method:      method,
		Timestamp:   l.now().Format(auditk.TimeFormat),
		Fingerprint: fp,
	}
	l.vulns[auditk.VulnKey(v.ID)] = v
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		evt := auditk.NewJournalEvent(auditk.EvtVulnAdded, url, code)
		evt.VulnID = v.ID
		hook(evt)
	}
	return v.Clone(), nil
}

// AddRequest derives the fingerprint from method and url
func (l *Ledger) AddRequest(cwe, description, url, method string) (*auditk.Vulnerability, error) {
	return l.Add(auditk.NewFingerprint(method, url), cwe, description, url, method)
}

// Get a copy of the vulnerability with id
func (l *Ledger) Get(id int64) (*auditk.Vulnerability, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vulns[auditk.VulnKey(id)]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Remove the vulnerability with id, its id is never reissued
func (l *Ledger) Remove(id int64) bool {
	l.mu.Lock()
	v, ok := l.vulns[auditk.VulnKey(id)]
	if !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.vulns, auditk.VulnKey(id))
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		evt := auditk.NewJournalEvent(auditk.EvtVulnRemoved, v.URL, v.CWE)
		evt.VulnID = id
		hook(evt)
	}
	return true
}

// ListBy returns the vulnerabilities with the cwe ("" for all) sorted by
// timestamp ascending, ties broken by id
func (l *Ledger) ListBy(cwe string) []*auditk.Vulnerability {
	filter := ""
	if cwe != "" {
		filter, _, _ = auditk.LookupCWE(cwe)
	}

	l.mu.Lock()
	list := make([]*auditk.Vulnerability, 0, len(l.vulns))
	for _, v := range l.vulns {
		if filter == "" || v.CWE == filter {
			list = append(list, v.Clone())
		}
	}
	l.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp == list[j].Timestamp {
			return list[i].ID < list[j].ID
		}
		return list[i].Timestamp < list[j].Timestamp
	})
	return list
}

// Len of live vulnerabilities
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.vulns)
}

// MaxID ever issued
func (l *Ledger) MaxID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxID
}

// Clear removes every vulnerability but keeps the counter
func (l *Ledger) Clear() int {
	l.mu.Lock()
	n := len(l.vulns)
	l.vulns = make(map[string]*auditk.Vulnerability)
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		hook(auditk.NewJournalEvent(auditk.EvtCleared, "", fmt.Sprintf("%d vulnerabilities", n)))
	}
	return n
}

// Print the ledger ordered by timestamp
func (l *Ledger) Print(writer io.Writer) {
	for _, v := range l.ListBy("") {
		fmt.Fprintf(writer, "#%-4d %-9s %-7s %s  (%s) %s\n", v.ID, v.CWE, v.Method, v.URL, v.Description, v.Timestamp)
	}
}
