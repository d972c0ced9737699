package auditk

import "strings"

// ToolOrigin tags which tool produced an observed request
type ToolOrigin int8

const (
	// ToolProxy browsing through the intercepting proxy
	ToolProxy ToolOrigin = iota + 1
	// ToolRepeater manual replay of a request
	ToolRepeater
	// ToolScanner automated scanning
	ToolScanner
	// ToolIntruder automated fuzzing
	ToolIntruder
	// ToolSpider crawling
	ToolSpider
	// ToolExtension requests issued by extensions
	ToolExtension
	// ToolOther anything else
	ToolOther
)

// ToolOriginMap for printing and parsing
var ToolOriginMap = map[ToolOrigin]string{
	ToolProxy:     "proxy",
	ToolRepeater:  "repeater",
	ToolScanner:   "scanner",
	ToolIntruder:  "intruder",
	ToolSpider:    "spider",
	ToolExtension: "extension",
	ToolOther:     "other",
}

func (t ToolOrigin) String() string {
	if s, ok := ToolOriginMap[t]; ok {
		return s
	}
	return "unknown"
}

// Tracked origins are the only ones the classifier acts on
func (t ToolOrigin) Tracked() bool {
	return t == ToolProxy || t == ToolRepeater || t == ToolScanner
}

// ParseToolOrigin from its string form, unknown strings map to ToolOther
func ParseToolOrigin(s string) ToolOrigin {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, v := range ToolOriginMap {
		if v == s {
			return k
		}
	}
	return ToolOther
}

// TrafficEvent is one observation delivered by the traffic source
type TrafficEvent struct {
	Origin    ToolOrigin
	IsRequest bool
	URL       string
	Method    string
	Raw       []byte
}

// Path of the observed request without query
func (e *TrafficEvent) Path() string {
	return PathOf(e.URL)
}

// ClassifyAction is what the classifier did with an event
type ClassifyAction int8

const (
	// ActIgnored event was not a request or came from an untracked origin
	ActIgnored ClassifyAction = iota + 1
	// ActNotWatched request does not match the watch list
	ActNotWatched
	// ActHighlighted request matched and should be highlighted
	ActHighlighted
	// ActMarkedManual the matching items were marked manually audited
	ActMarkedManual
	// ActMarkedScanned the matching items were marked scanned
	ActMarkedScanned
	// ActQueuedScanned scanned marking was deferred to the next batch
	ActQueuedScanned
	// ActAlreadyAudited nothing to do, the matching items carry the flag
	ActAlreadyAudited
)

// ClassifyActionMap for printing
var ClassifyActionMap = map[ClassifyAction]string{
	ActIgnored:        "ignored",
	ActNotWatched:     "not_watched",
	ActHighlighted:    "highlighted",
	ActMarkedManual:   "marked_manual",
	ActMarkedScanned:  "marked_scanned",
	ActQueuedScanned:  "queued_scanned",
	ActAlreadyAudited: "already_audited",
}

func (a ClassifyAction) String() string {
	if s, ok := ClassifyActionMap[a]; ok {
		return s
	}
	return "unknown"
}

// Annotation the traffic source may apply to the message it delivered
type Annotation struct {
	Highlight string
	Comment   string
}

// Classification result of one traffic event
type Classification struct {
	Action     ClassifyAction
	Annotation *Annotation
	Outcome    Outcome
}
