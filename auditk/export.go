package auditk

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"
)

// ExportItem is the JSON import/export shape of a watch item
type ExportItem struct {
	Path      string `json:"path"`
	Audited   bool   `json:"audited"`
	LastAudit string `json:"lastAudit"`
	Note      string `json:"note"`
	Highlight bool   `json:"highlight"`
}

// ExportText renders one display path per line
func ExportText(items []*WatchItem, stripHost bool) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(DisplayPath(item.Path, stripHost))
		b.WriteByte('\n')
	}
	return b.String()
}

// ExportJSON renders the watch list as an indented JSON array
func ExportJSON(items []*WatchItem) ([]byte, error) {
	out := make([]ExportItem, 0, len(items))
	for _, item := range items {
		out = append(out, ExportItem{
			Path:      item.Path,
			Audited:   item.ManualAudited,
			LastAudit: item.LastAudit,
			Note:      item.Note,
			Highlight: item.Highlight,
		})
	}
	return json.Marshal(out, jsontext.WithIndent("  "))
}

// ParseImport accepts either a JSON array of export items or a newline
// delimited URL list. Blank lines and lines starting with # are skipped.
func ParseImport(data []byte) ([]ExportItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []ExportItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.Wrap(err, "parse json import")
		}
		return items, nil
	}

	items := make([]ExportItem, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, ExportItem{Path: line})
	}
	return items, errors.Wrap(scanner.Err(), "read url list")
}

// ExportVulnsCSV renders vulnerabilities in the order given
func ExportVulnsCSV(vulns []*Vulnerability) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "cwe", "description", "method", "url", "timestamp"}); err != nil {
		return nil, err
	}
	for _, v := range vulns {
		record := []string{strconv.FormatInt(v.ID, 10), v.CWE, v.Description, v.Method, v.URL, v.Timestamp}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
