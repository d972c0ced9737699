package auditk

import "time"

// EventType of an audit journal entry
type EventType int8

const (
	EvtMarkedManual EventType = iota + 1
	EvtMarkedScanned
	EvtItemAdded
	EvtItemRemoved
	EvtImported
	EvtNoteChanged
	EvtHighlightChanged
	EvtVulnAdded
	EvtVulnRemoved
	EvtProjectSwitched
	EvtCleared
)

// EventTypeMap for printing
var EventTypeMap = map[EventType]string{
	EvtMarkedManual:     "marked_manual",
	EvtMarkedScanned:    "marked_scanned",
	EvtItemAdded:        "item_added",
	EvtItemRemoved:      "item_removed",
	EvtImported:         "imported",
	EvtNoteChanged:      "note_changed",
	EvtHighlightChanged: "highlight_changed",
	EvtVulnAdded:        "vuln_added",
	EvtVulnRemoved:      "vuln_removed",
	EvtProjectSwitched:  "project_switched",
	EvtCleared:          "cleared",
}

func (e EventType) String() string {
	if s, ok := EventTypeMap[e]; ok {
		return s
	}
	return "unknown"
}

// JournalEvent is one entry of the per project audit history
type JournalEvent struct {
	ID      string    `msgpack:"id"`
	Time    time.Time `msgpack:"time"`
	Type    EventType `msgpack:"type"`
	Project string    `msgpack:"project"`
	Path    string    `msgpack:"path"`
	VulnID  int64     `msgpack:"vuln_id"`
	Detail  string    `msgpack:"detail"`
}

// NewJournalEvent stamped with the current time
func NewJournalEvent(evtType EventType, path, detail string) *JournalEvent {
	return &JournalEvent{
		Time:   time.Now(),
		Type:   evtType,
		Path:   path,
		Detail: detail,
	}
}
