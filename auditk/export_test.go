package auditk_test

import (
	"strings"
	"testing"

	"gitlab.com/auditker/auditk"
)

func TestParseImport(t *testing.T) {
	items, err := auditk.ParseImport([]byte("# comment\nhttp://ex.com/a\n\n  http://ex.com/b  \n"))
	if err != nil {
		t.Fatalf("error parsing list: %s\n", err)
	}
	if len(items) != 2 || items[1].Path != "http://ex.com/b" {
		t.Fatalf("unexpected items %#v\n", items)
	}

	items, err = auditk.ParseImport([]byte(`[{"path":"http://ex.com/a","audited":true,"lastAudit":"Never","note":"n","highlight":true}]`))
	if err != nil {
		t.Fatalf("error parsing json: %s\n", err)
	}
	if len(items) != 1 || !items[0].Audited || !items[0].Highlight || items[0].Note != "n" {
		t.Fatalf("unexpected items %#v\n", items)
	}

	if _, err := auditk.ParseImport([]byte(`[{"path": }]`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestExportRoundTrip(t *testing.T) {
	item := &auditk.WatchItem{Path: "https://ex.com/a", ManualAudited: true, LastAudit: "2024-01-01 00:00:00", Note: "xss here"}
	data, err := auditk.ExportJSON([]*auditk.WatchItem{item})
	if err != nil {
		t.Fatalf("error exporting: %s\n", err)
	}
	items, err := auditk.ParseImport(data)
	if err != nil {
		t.Fatalf("error parsing export: %s\n", err)
	}
	if len(items) != 1 || items[0].Note != "xss here" || !items[0].Audited {
		t.Fatalf("unexpected items %#v\n", items)
	}

	text := auditk.ExportText([]*auditk.WatchItem{item}, true)
	if text != "/a\n" {
		t.Fatalf("unexpected text export %q\n", text)
	}
}

func TestExportVulnsCSV(t *testing.T) {
	v := &auditk.Vulnerability{ID: 3, CWE: "CWE-79", Description: "Cross-site Scripting (XSS)", Method: "GET", URL: "https://ex.com/a", Timestamp: "2024-01-01 00:00:00"}
	data, err := auditk.ExportVulnsCSV([]*auditk.Vulnerability{v})
	if err != nil {
		t.Fatalf("error exporting csv: %s\n", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "3,CWE-79,") {
		t.Fatalf("unexpected csv %q\n", data)
	}
}
