package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/store"
)

func testDocument() *auditk.Document {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := auditk.NewDocument()
	item := auditk.NewWatchItem("https://ex.com/login", auditk.SourceManual, now)
	item.ManualAudited = true
	item.LastAudit = now.Format(auditk.TimeFormat)
	item.Note = "xss here"
	doc.WatchListAudit = append(doc.WatchListAudit, item)
	doc.WatchListAudit = append(doc.WatchListAudit, auditk.NewWatchItem("https://ex.com/admin/", auditk.SourceImport, now))

	vuln := &auditk.Vulnerability{
		ID:          3,
		CWE:         "CWE-79",
		Description: "Cross-site Scripting",
		URL:         "https://ex.com/login?x=1",
		Method:      "POST",
		Timestamp:   now.Format(auditk.TimeFormat),
		Fingerprint: auditk.NewFingerprint("POST", "https://ex.com/login?x=1"),
	}
	doc.Vulnerabilities[auditk.VulnKey(vuln.ID)] = vuln
	doc.MaxVulnID = 5
	doc.Settings.ProjectName = "acme"
	doc.Settings.TargetURL = "https://ex.com"
	doc.Settings.PollFrequencySeconds = 10
	return doc
}

func TestDocumentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.json")
	s := store.NewDocumentStore(path)

	doc := testDocument()
	if !s.Save(doc) {
		t.Fatalf("save failed\n")
	}

	loaded := s.Load()
	if len(loaded.WatchListAudit) != 2 {
		t.Fatalf("expected 2 items got %d\n", len(loaded.WatchListAudit))
	}
	got := loaded.WatchListAudit[0]
	if !got.ManualAudited || got.Scanned || got.Note != "xss here" {
		t.Fatalf("item fields were not preserved: %#v\n", got)
	}
	if *got != *doc.WatchListAudit[0] {
		t.Fatalf("expected %#v got %#v\n", doc.WatchListAudit[0], got)
	}
	if loaded.WatchListAudit[1].Path != "https://ex.com/admin/" {
		t.Fatalf("insertion order was not preserved\n")
	}
	if loaded.MaxVulnID != 5 {
		t.Fatalf("expected max vuln id 5 got %d\n", loaded.MaxVulnID)
	}
	v, ok := loaded.Vulnerabilities["3"]
	if !ok || *v != *doc.Vulnerabilities["3"] {
		t.Fatalf("vulnerability was not preserved: %#v\n", v)
	}
	if loaded.Settings.ProjectName != "acme" || loaded.Settings.PollFrequencySeconds != 10 {
		t.Fatalf("settings were not preserved: %#v\n", loaded.Settings)
	}
}

func TestDocumentLoadMissing(t *testing.T) {
	s := store.NewDocumentStore(filepath.Join(t.TempDir(), "none.json"))
	doc := s.Load()
	if doc == nil || len(doc.WatchListAudit) != 0 || len(doc.Vulnerabilities) != 0 {
		t.Fatalf("expected empty document got %#v\n", doc)
	}
}

func TestDocumentLoadMalformed(t *testing.T) {
	for _, data := range []string{`{"watchListAudit": [`, `[]`, `null`, `"str"`} {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatalf("error writing: %s\n", err)
		}
		doc := store.NewDocumentStore(path).Load()
		if doc == nil || len(doc.WatchListAudit) != 0 {
			t.Fatalf("expected empty document for %q\n", data)
		}
		backup, err := os.ReadFile(path + ".corrupt")
		if err != nil || string(backup) != data {
			t.Fatalf("expected corrupt backup for %q\n", data)
		}
	}
}

func TestDocumentInterruptedSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.json")
	s := store.NewDocumentStore(path)
	if !s.Save(testDocument()) {
		t.Fatalf("save failed\n")
	}

	// a save that died after writing half of the temp file
	if err := os.WriteFile(path+".tmp", []byte(`{"watchListAudit": [{"path": "https://ex`), 0644); err != nil {
		t.Fatalf("error writing temp: %s\n", err)
	}

	doc := s.Load()
	if len(doc.WatchListAudit) != 2 || doc.WatchListAudit[0].Note != "xss here" {
		t.Fatalf("expected previous document got %#v\n", doc.WatchListAudit)
	}

	doc.WatchListAudit[0].Note = "updated"
	if !s.Save(doc) {
		t.Fatalf("save over stale temp failed\n")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be gone after save\n")
	}
	if s.Load().WatchListAudit[0].Note != "updated" {
		t.Fatalf("expected updated note\n")
	}
}

func TestDocumentRecoverTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.json")
	s := store.NewDocumentStore(path)
	if !s.Save(testDocument()) {
		t.Fatalf("save failed\n")
	}
	// target deleted, rename never happened
	if err := os.Rename(path, path+".tmp"); err != nil {
		t.Fatalf("error moving: %s\n", err)
	}

	doc := s.Load()
	if len(doc.WatchListAudit) != 2 {
		t.Fatalf("expected recovery from temp file got %d items\n", len(doc.WatchListAudit))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("temp file was not promoted: %s\n", err)
	}
}

func TestDocumentUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.json")
	data := `{
  "watchListAudit": [],
  "vulnerabilities": {},
  "settings": {"projectName": "acme", "theme": {"dark": true}},
  "maxVulnId": 0,
  "uiState": {"columns": [1, 2, 3]}
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("error writing: %s\n", err)
	}
	s := store.NewDocumentStore(path)
	doc := s.Load()
	if _, ok := doc.Extra["uiState"]; !ok {
		t.Fatalf("unknown top level key was dropped\n")
	}
	if !s.Save(doc) {
		t.Fatalf("save failed\n")
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("error reading: %s\n", err)
	}
	for _, want := range []string{`"uiState"`, `"columns"`, `"theme"`, `"dark"`} {
		if !strings.Contains(string(written), want) {
			t.Fatalf("expected %s to survive round trip:\n%s\n", want, written)
		}
	}
}

func TestDocumentMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	data := `{
  "watchListAudit": ["https://ex.com/a", {"path": "https://ex.com/b", "manualAudited": true, "scanned": false, "lastAudit": "2023-01-01 00:00:00", "note": "", "highlight": false, "added": "2023-01-01 00:00:00", "source": "manual"}],
  "watchList": ["https://ex.com/c", "https://ex.com/a"]
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("error writing: %s\n", err)
	}

	doc := store.NewDocumentStore(path).Load()
	paths := make([]string, 0)
	for _, item := range doc.WatchListAudit {
		paths = append(paths, item.Path)
	}
	if strings.Join(paths, ",") != "https://ex.com/a,https://ex.com/b,https://ex.com/c" {
		t.Fatalf("unexpected migrated items: %v\n", paths)
	}
	if doc.WatchListAudit[0].LastAudit != auditk.NeverAudited || doc.WatchListAudit[0].Source != auditk.SourceImport {
		t.Fatalf("string item was not upgraded: %#v\n", doc.WatchListAudit[0])
	}
	if !doc.WatchListAudit[1].ManualAudited {
		t.Fatalf("structured item lost its audit flag\n")
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("error reading: %s\n", err)
	}
	if strings.Contains(string(written), `"watchList"`) {
		t.Fatalf("legacy key was not removed from disk\n")
	}
	for _, key := range auditk.RequiredKeys {
		if !strings.Contains(string(written), `"`+key+`"`) {
			t.Fatalf("missing key %s after migration save\n", key)
		}
	}
}

func TestDocumentNumericFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	data := `{
  "watchListAudit": [],
  "vulnerabilities": {
    "1": {"id": 1, "cwe": "CWE-89", "description": "SQL Injection", "url": "https://ex.com/q?id=1", "method": "get", "timestamp": "2023-04-01 10:00:00", "requestFingerprint": -8812345678},
    "2": {"id": 2, "cwe": "CWE-79", "description": "XSS", "url": "https://ex.com/s", "method": "POST", "timestamp": "2023-04-02 10:00:00", "requestFingerprint": {"method": "POST", "host": "ex.com", "path": "/s"}}
  },
  "settings": {},
  "maxVulnId": 2
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("error writing: %s\n", err)
	}

	doc := store.NewDocumentStore(path).Load()
	if len(doc.Vulnerabilities) != 2 || doc.MaxVulnID != 2 {
		t.Fatalf("expected both findings to survive, got %d max %d\n", len(doc.Vulnerabilities), doc.MaxVulnID)
	}
	v := doc.Vulnerabilities[auditk.VulnKey(1)]
	if v == nil || v.Fingerprint != auditk.NewFingerprint("GET", "https://ex.com/q") {
		t.Fatalf("numeric fingerprint was not rebuilt: %#v\n", v)
	}
	if v.CWE != "CWE-89" || v.Description != "SQL Injection" {
		t.Fatalf("finding fields were not preserved: %#v\n", v)
	}

	reloaded := store.NewDocumentStore(path).Load()
	if len(reloaded.Vulnerabilities) != 2 {
		t.Fatalf("findings lost after the repair was saved\n")
	}
}

func TestDocumentNoteStartingWithDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.json")
	s := store.NewDocumentStore(path)

	doc := testDocument()
	doc.WatchListAudit[0].Note = "2024-05-01 retested, still vulnerable"
	if !s.Save(doc) {
		t.Fatalf("save failed\n")
	}

	loaded := s.Load()
	if loaded.WatchListAudit[0].Note != "2024-05-01 retested, still vulnerable" {
		t.Fatalf("note was not preserved: %q\n", loaded.WatchListAudit[0].Note)
	}
	if *loaded.WatchListAudit[0] != *doc.WatchListAudit[0] {
		t.Fatalf("expected %#v got %#v\n", doc.WatchListAudit[0], loaded.WatchListAudit[0])
	}
}
