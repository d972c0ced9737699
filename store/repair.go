package store

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gitlab.com/auditker/auditk"
)

// maxBoolStringLen a string longer than this in a boolean field is treated as a shifted column
const maxBoolStringLen = 10

var dateLike = regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}`)

// timestampOnly is a note that holds nothing but a stored timestamp, the
// signature of a lastAudit value shifted into the note column
var timestampOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

var (
	boolFields   = []string{"manualAudited", "scanned", "highlight"}
	stringFields = []string{"path", "note", "lastAudit", "added", "source"}
)

// RepairReport describes what the load pipeline changed
type RepairReport struct {
	Migrated  []string
	Defaulted []string
	Repaired  int
	Dropped   []string
}

// Dirty reports whether the loaded document differs from what is on disk
func (r *RepairReport) Dirty() bool {
	return len(r.Migrated) > 0 || len(r.Defaulted) > 0 || r.Repaired > 0 || len(r.Dropped) > 0
}

func (r *RepairReport) drop(reason string) {
	r.Dropped = append(r.Dropped, reason)
}

func (r *RepairReport) defaulted(key string) {
	r.Defaulted = append(r.Defaulted, key)
}

// RepairItems validates raw watch list entries. Valid items are normalized,
// corrupted items are rebuilt around the first URL shaped value they hold and
// anything without such a value is dropped. Duplicate paths keep the first
// occurrence.
func RepairItems(raw []interface{}, now time.Time) ([]*auditk.WatchItem, *RepairReport) {
	report := &RepairReport{}
	return repairItems(raw, now, report), report
}

func repairItems(raw []interface{}, now time.Time, report *RepairReport) []*auditk.WatchItem {
	items := make([]*auditk.WatchItem, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for i, entry := range raw {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			report.drop("item " + strconv.Itoa(i) + ": not an object")
			continue
		}

		var item *auditk.WatchItem
		if itemCorrupted(fields) {
			item = rebuildItem(fields, now)
			if item == nil {
				report.drop("item " + strconv.Itoa(i) + ": corrupted and no URL could be recovered")
				continue
			}
			report.Repaired++
		} else {
			var changed bool
			item, changed = normalizeItem(fields, now)
			if changed {
				report.Repaired++
			}
		}

		key := auditk.CanonicalPath(item.Path)
		if _, dup := seen[key]; dup {
			report.drop("item " + strconv.Itoa(i) + ": duplicate of " + item.Path)
			continue
		}
		seen[key] = struct{}{}
		items = append(items, item)
	}
	return items
}

// itemCorrupted looks for the shapes left behind by column shifted writes.
// These checks cover the failure modes seen so far, they are not exhaustive.
func itemCorrupted(fields map[string]interface{}) bool {
	for _, key := range boolFields {
		s, isString := fields[key].(string)
		if !isString {
			continue
		}
		if auditk.IsURL(s) || len(s) > maxBoolStringLen {
			return true
		}
	}

	if note, ok := fields["note"].(string); ok && timestampOnly.MatchString(strings.TrimSpace(note)) {
		return true
	}
	if last, ok := fields["lastAudit"].(string); ok && auditk.IsURL(last) {
		return true
	}

	path, _ := fields["path"].(string)
	return !auditk.IsURL(path)
}

// normalizeItem converts a structurally sound entry, filling defaults for
// missing or mistyped fields. changed is set when the result differs from
// what was stored.
func normalizeItem(fields map[string]interface{}, now time.Time) (*auditk.WatchItem, bool) {
	changed := false
	item := &auditk.WatchItem{}

	path, _ := fields["path"].(string)
	item.Path = strings.TrimSpace(path)
	if item.Path != path {
		changed = true
	}

	var ok bool
	if item.ManualAudited, ok = boolField(fields, "manualAudited"); !ok {
		changed = true
	}
	if item.Scanned, ok = boolField(fields, "scanned"); !ok {
		changed = true
	}
	if item.Highlight, ok = boolField(fields, "highlight"); !ok {
		changed = true
	}

	item.LastAudit, ok = fields["lastAudit"].(string)
	if !ok || !validLastAudit(item.LastAudit) {
		item.LastAudit = auditk.NeverAudited
		changed = true
	}

	if item.Note, ok = fields["note"].(string); !ok {
		changed = true
	}

	item.Added, ok = fields["added"].(string)
	if !ok || item.Added == "" {
		item.Added = now.Format(auditk.TimeFormat)
		changed = true
	}

	source, _ := fields["source"].(string)
	item.Source = auditk.Source(source)
	if !item.Source.Valid() {
		item.Source = auditk.SourceManual
		changed = true
	}
	return item, changed
}

// rebuildItem infers the path from the first URL shaped value and keeps only
// the fields whose values already have the right type.
func rebuildItem(fields map[string]interface{}, now time.Time) *auditk.WatchItem {
	pathKey := ""
	for _, key := range orderedKeys(fields) {
		if s, ok := fields[key].(string); ok && auditk.IsURL(s) {
			pathKey = key
			break
		}
	}
	if pathKey == "" {
		return nil
	}

	item := auditk.NewWatchItem(fields[pathKey].(string), auditk.SourceManual, now)
	if b, ok := fields["manualAudited"].(bool); ok {
		item.ManualAudited = b
	}
	if b, ok := fields["scanned"].(bool); ok {
		item.Scanned = b
	}
	if b, ok := fields["highlight"].(bool); ok {
		item.Highlight = b
	}
	if pathKey != "lastAudit" {
		if s, ok := fields["lastAudit"].(string); ok && validLastAudit(s) {
			item.LastAudit = s
		}
	}
	if pathKey != "note" {
		if s, ok := fields["note"].(string); ok && !timestampOnly.MatchString(strings.TrimSpace(s)) && !auditk.IsURL(s) {
			item.Note = s
		}
	}
	if pathKey != "added" {
		if s, ok := fields["added"].(string); ok && dateLike.MatchString(s) {
			item.Added = s
		}
	}
	if s, ok := fields["source"].(string); ok && auditk.Source(s).Valid() {
		item.Source = auditk.Source(s)
	}
	return item
}

// orderedKeys puts the known string fields first so path inference is deterministic
func orderedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	known := make(map[string]struct{}, len(stringFields)+len(boolFields))
	for _, key := range append(append([]string{}, stringFields...), boolFields...) {
		known[key] = struct{}{}
		if _, ok := fields[key]; ok {
			keys = append(keys, key)
		}
	}
	rest := make([]string, 0)
	for key := range fields {
		if _, ok := known[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// boolField returns the value and whether it was stored as a proper bool.
// "true"/"false" strings are salvaged but reported as changed.
func boolField(fields map[string]interface{}, key string) (bool, bool) {
	switch v := fields[key].(type) {
	case bool:
		return v, true
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b, false
	}
	return false, false
}

func validLastAudit(s string) bool {
	return s == auditk.NeverAudited || dateLike.MatchString(s)
}
