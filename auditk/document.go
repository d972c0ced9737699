package auditk

import (
	"sort"
	"strconv"

	"github.com/go-json-experiment/json/jsontext"
)

// Top level document keys
const (
	KeyWatchList       = "watchListAudit"
	KeyVulnerabilities = "vulnerabilities"
	KeySettings        = "settings"
	KeyMaxVulnID       = "maxVulnId"
)

// RequiredKeys every stored document carries
var RequiredKeys = []string{KeyWatchList, KeyVulnerabilities, KeySettings, KeyMaxVulnID}

// Settings stored alongside the watch list. Unknown members survive a
// load/save round trip through Extra.
type Settings struct {
	ProjectName          string                    `json:"projectName"`
	TargetURL            string                    `json:"targetUrl"`
	StripHostInDisplay   bool                      `json:"stripHostInDisplay"`
	AutoUpdate           bool                      `json:"autoUpdate"`
	PollFrequencySeconds int                       `json:"pollFrequency"`
	Extra                map[string]jsontext.Value `json:",unknown"`
}

// Clone deep copies settings
func (s Settings) Clone() Settings {
	c := s
	c.Extra = cloneRaw(s.Extra)
	return c
}

// Document is the single unit persisted per project
type Document struct {
	WatchListAudit  []*WatchItem              `json:"watchListAudit"`
	Vulnerabilities map[string]*Vulnerability `json:"vulnerabilities"`
	Settings        Settings                  `json:"settings"`
	MaxVulnID       int64                     `json:"maxVulnId"`
	Extra           map[string]jsontext.Value `json:",unknown"`
}

// NewDocument returns an empty document
func NewDocument() *Document {
	return &Document{
		WatchListAudit:  make([]*WatchItem, 0),
		Vulnerabilities: make(map[string]*Vulnerability),
	}
}

// Normalize replaces nil collections and raises MaxVulnID to at least the
// largest live id
func (d *Document) Normalize() {
	if d.WatchListAudit == nil {
		d.WatchListAudit = make([]*WatchItem, 0)
	}
	if d.Vulnerabilities == nil {
		d.Vulnerabilities = make(map[string]*Vulnerability)
	}
	for key, v := range d.Vulnerabilities {
		if v == nil {
			delete(d.Vulnerabilities, key)
			continue
		}
		if v.ID > d.MaxVulnID {
			d.MaxVulnID = v.ID
		}
	}
}

// VulnerabilityList returns the vulnerabilities ordered by id
func (d *Document) VulnerabilityList() []*Vulnerability {
	vulns := make([]*Vulnerability, 0, len(d.Vulnerabilities))
	for _, v := range d.Vulnerabilities {
		vulns = append(vulns, v)
	}
	sort.Slice(vulns, func(i, j int) bool { return vulns[i].ID < vulns[j].ID })
	return vulns
}

// Clone deep copies the document
func (d *Document) Clone() *Document {
	c := &Document{
		WatchListAudit:  make([]*WatchItem, 0, len(d.WatchListAudit)),
		Vulnerabilities: make(map[string]*Vulnerability, len(d.Vulnerabilities)),
		Settings:        d.Settings.Clone(),
		MaxVulnID:       d.MaxVulnID,
		Extra:           cloneRaw(d.Extra),
	}
	for _, item := range d.WatchListAudit {
		c.WatchListAudit = append(c.WatchListAudit, item.Clone())
	}
	for k, v := range d.Vulnerabilities {
		c.Vulnerabilities[k] = v.Clone()
	}
	return c
}

// VulnKey is the map key a vulnerability is stored under
func VulnKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func cloneRaw(in map[string]jsontext.Value) map[string]jsontext.Value {
	if in == nil {
		return nil
	}
	out := make(map[string]jsontext.Value, len(in))
	for k, v := range in {
		out[k] = append(jsontext.Value(nil), v...)
	}
	return out
}
