package store_test

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/store"
)

func TestJournal(t *testing.T) {
	j := store.NewJournal(t.TempDir(), "acme")
	if err := j.Init(); err != nil {
		t.Fatalf("error init journal: %s\n", err)
	}
	defer j.Close()

	base := time.Now()
	types := []auditk.EventType{auditk.EvtItemAdded, auditk.EvtMarkedManual, auditk.EvtVulnAdded}
	for i, typ := range types {
		evt := auditk.NewJournalEvent(typ, "https://ex.com/a", "")
		evt.Time = base.Add(time.Duration(i) * time.Second)
		j.Record(evt)
	}

	events, err := j.Events(0)
	if err != nil {
		t.Fatalf("error reading events: %s\n", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events got %d\n", len(events))
	}
	if events[0].Type != auditk.EvtVulnAdded || events[2].Type != auditk.EvtItemAdded {
		t.Fatalf("expected newest first:\n%s\n", spew.Sdump(events))
	}
	if events[0].Project != "acme" || events[0].ID == "" {
		t.Fatalf("event was not stamped:\n%s\n", spew.Sdump(events[0]))
	}

	limited, err := j.Events(2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 events got %d %v\n", len(limited), err)
	}

	j.Close()
	// recording after close must not panic
	j.Record(auditk.NewJournalEvent(auditk.EvtCleared, "", ""))
}

func TestEventKeyOrder(t *testing.T) {
	early := store.EventKey(time.Unix(1, 0), "b")
	late := store.EventKey(time.Unix(10, 0), "a")
	if string(early) >= string(late) {
		t.Fatalf("keys do not sort by time: %s %s\n", early, late)
	}
	if string(store.GetPredicate(late)) != "evt" {
		t.Fatalf("unexpected predicate %s\n", store.GetPredicate(late))
	}
}
