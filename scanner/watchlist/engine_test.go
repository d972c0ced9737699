package watchlist_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner/watchlist"
)

func testEngine() *watchlist.Engine {
	cfg := auditk.DefaultConfig()
	cfg.TargetURL = "https://ex.com"
	cfg.ImportChunkPause = 0
	return watchlist.New(cfg)
}

func TestImportDedupe(t *testing.T) {
	e := testEngine()

	if n := e.ImportEndpoints([]string{"http://ex.com/a"}, auditk.SourceImport); n != 1 {
		t.Fatalf("expected 1 insert got %d\n", n)
	}
	if n := e.ImportEndpoints([]string{"http://ex.com:80/a", "HTTP://EX.COM/a", "http://ex.com/a#frag"}, auditk.SourceImport); n != 0 {
		t.Fatalf("expected default port variants to be skipped got %d\n", n)
	}
	if e.Len() != 1 {
		t.Fatalf("expected one item got %d\n", e.Len())
	}

	// display only variant of a known endpoint
	e.ImportEndpoints([]string{"https://ex.com/login"}, auditk.SourceImport)
	if n := e.ImportEndpoints([]string{"/login", "/a"}, auditk.SourceImport); n != 0 {
		t.Fatalf("display form variants should be no-ops got %d\n", n)
	}
	if n := e.ImportEndpoints([]string{"/new"}, auditk.SourceImport); n != 1 {
		t.Fatalf("expected display form to expand against the target got %d\n", n)
	}
	if _, err := e.Get("https://ex.com/new"); err != nil {
		t.Fatalf("expanded item missing: %s\n", err)
	}
}

func TestImportChunked(t *testing.T) {
	cfg := auditk.DefaultConfig()
	cfg.ImportChunkSize = 20
	cfg.ImportChunkPause = time.Millisecond
	e := watchlist.New(cfg)

	calls := 0
	e.SetChangeHook(func(events ...*auditk.JournalEvent) { calls++ })

	urls := make([]string, 0)
	for i := 0; i < 95; i++ {
		urls = append(urls, "https://ex.com/p"+strconv.Itoa(i%60))
	}
	n, err := e.ImportEndpointsContext(context.Background(), urls, auditk.SourceSitemap)
	if err != nil {
		t.Fatalf("error importing: %s\n", err)
	}
	if n != 60 || e.Len() != 60 {
		t.Fatalf("expected 60 unique items got %d/%d\n", n, e.Len())
	}
	if calls != 1 {
		t.Fatalf("expected one hook call for the import got %d\n", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.ImportEndpointsContext(ctx, []string{"https://ex.com/late"}, auditk.SourceImport); err == nil {
		t.Fatalf("expected cancelled import to fail\n")
	}
}

func TestMarkAuditedIdempotent(t *testing.T) {
	e := testEngine()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })
	e.Add("https://ex.com/admin/*", auditk.SourceManual)

	n, outcome := e.MarkAudited(auditk.AuditManual, "/admin/users", "https://ex.com/admin/users?id=1")
	if n != 1 || !outcome.OK {
		t.Fatalf("expected one mark got %d %s\n", n, outcome)
	}
	first, _ := e.Get("https://ex.com/admin/*")

	now = now.Add(time.Hour)
	n, outcome = e.MarkAudited(auditk.AuditManual, "/admin/users", "https://ex.com/admin/users")
	if n != 0 || !outcome.OK {
		t.Fatalf("second mark should be a no-op got %d %s\n", n, outcome)
	}
	second, _ := e.Get("https://ex.com/admin/*")
	if first.LastAudit != second.LastAudit {
		t.Fatalf("lastAudit was refreshed: %s -> %s\n", first.LastAudit, second.LastAudit)
	}
	if second.Scanned {
		t.Fatalf("manual mark must not touch scanned\n")
	}

	if n, _ := e.MarkAudited(auditk.AuditScanned, "/admin/users", "https://ex.com/admin/users"); n != 1 {
		t.Fatalf("scanned axis is independent, expected a mark got %d\n", n)
	}
	if !e.IsAudited(auditk.AuditScanned, "/admin/users", "https://ex.com/admin/users") {
		t.Fatalf("expected scanned\n")
	}

	if _, outcome := e.MarkAudited(auditk.AuditManual, "/other", "https://ex.com/other"); outcome.OK {
		t.Fatalf("expected failure for unmatched request\n")
	}
}

func TestClassifyHostFilter(t *testing.T) {
	e := testEngine()
	for i := 0; i < 30; i++ {
		e.Add("https://host"+strconv.Itoa(i)+".com/app/", auditk.SourceManual)
	}
	e.Add("https://*.wild.com/x", auditk.SourceManual)

	if !e.Classify("/app/page", "https://host7.com/app/page") {
		t.Fatalf("expected match on host7\n")
	}
	if len(e.Match("/app/page", "https://host7.com/app/page")) != 1 {
		t.Fatalf("host filter should leave only host7 plus path matches\n")
	}
	if !e.Classify("/x", "https://api.wild.com/x") {
		t.Fatalf("wildcard host items must survive the host filter\n")
	}
	if e.Classify("/nothing", "https://host7.com/nothing") {
		t.Fatalf("expected no match\n")
	}
}

func TestNotesHighlightRemove(t *testing.T) {
	e := testEngine()
	e.Add("https://ex.com/login", auditk.SourceManual)

	if outcome := e.SetNote("/login", "xss here"); !outcome.OK {
		t.Fatalf("error setting note: %s\n", outcome)
	}
	note, err := e.GetNote("https://ex.com/login")
	if err != nil || note != "xss here" {
		t.Fatalf("expected note got %q %v\n", note, err)
	}
	if outcome := e.SetNote("https://ex.com/missing", "x"); outcome.OK {
		t.Fatalf("expected failure for missing item\n")
	}

	e.SetHighlight("https://ex.com/login", true)
	if s := e.Stats(); s.Highlighted != 1 || s.Total != 1 {
		t.Fatalf("unexpected stats %#v\n", s)
	}

	v := &auditk.Vulnerability{ID: 7, CWE: "CWE-79", URL: "https://ex.com/login?q=1"}
	if !e.TagVulnerability(v) {
		t.Fatalf("expected tag\n")
	}
	note, _ = e.GetNote("/login")
	if note != "xss here [VULN #7] CWE-79" {
		t.Fatalf("unexpected tagged note %q\n", note)
	}
	e.UntagVulnerability(v)
	note, _ = e.GetNote("/login")
	if note != "xss here" {
		t.Fatalf("unexpected untagged note %q\n", note)
	}

	if outcome := e.Remove("/login"); !outcome.OK {
		t.Fatalf("error removing: %s\n", outcome)
	}
	if e.Len() != 0 {
		t.Fatalf("expected empty watch list\n")
	}
}

func TestClearAudits(t *testing.T) {
	e := testEngine()
	e.ImportEndpoints([]string{"https://ex.com/a", "https://ex.com/b"}, auditk.SourceImport)
	e.MarkAudited(auditk.AuditManual, "/a", "https://ex.com/a")
	e.MarkAudited(auditk.AuditScanned, "/b", "https://ex.com/b")

	if s := e.Stats(); s.Either != 2 || s.Manual != 1 || s.Scanned != 1 {
		t.Fatalf("unexpected stats %#v\n", s)
	}
	if n := e.ClearAudits(); n != 2 {
		t.Fatalf("expected 2 cleared got %d\n", n)
	}
	for _, item := range e.Items() {
		if item.ManualAudited || item.Scanned || item.LastAudit != auditk.NeverAudited {
			t.Fatalf("item was not reset: %#v\n", item)
		}
	}
	if n := e.ClearAll(); n != 2 || e.Len() != 0 {
		t.Fatalf("expected everything removed\n")
	}
}
