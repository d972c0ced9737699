package mock

import (
	"sync"

	"gitlab.com/auditker/auditk"
)

// Journal records events in memory
type Journal struct {
	mu     sync.Mutex
	events []*auditk.JournalEvent

	RecordFn     func(evt *auditk.JournalEvent)
	RecordCalled bool

	EventsFn     func(limit int) ([]*auditk.JournalEvent, error)
	EventsCalled bool

	CloseFn     func() error
	CloseCalled bool
}

// Record an event
func (j *Journal) Record(evt *auditk.JournalEvent) {
	j.mu.Lock()
	j.RecordCalled = true
	j.mu.Unlock()
	j.RecordFn(evt)
}

// Events newest first
func (j *Journal) Events(limit int) ([]*auditk.JournalEvent, error) {
	j.mu.Lock()
	j.EventsCalled = true
	j.mu.Unlock()
	return j.EventsFn(limit)
}

// Close the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	j.CloseCalled = true
	j.mu.Unlock()
	return j.CloseFn()
}

// Types of the recorded events in recording order
func (j *Journal) Types() []auditk.EventType {
	j.mu.Lock()
	defer j.mu.Unlock()
	types := make([]auditk.EventType, 0, len(j.events))
	for _, evt := range j.events {
		types = append(types, evt.Type)
	}
	return types
}

func MakeMockJournal() *Journal {
	j := &Journal{events: make([]*auditk.JournalEvent, 0)}
	j.RecordFn = func(evt *auditk.JournalEvent) {
		j.mu.Lock()
		defer j.mu.Unlock()
		j.events = append(j.events, evt)
	}
	j.EventsFn = func(limit int) ([]*auditk.JournalEvent, error) {
		j.mu.Lock()
		defer j.mu.Unlock()
		out := make([]*auditk.JournalEvent, 0, len(j.events))
		for i := len(j.events) - 1; i >= 0; i-- {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, j.events[i])
		}
		return out, nil
	}
	j.CloseFn = func() error {
		return nil
	}
	return j
}
