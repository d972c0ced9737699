package auditk

import (
	"sort"
	"strconv"
	"strings"
)

// Fingerprint groups logically equivalent requests. Compared by value.
type Fingerprint struct {
	Method string `json:"method" msgpack:"method"`
	Host   string `json:"host" msgpack:"host"`
	Path   string `json:"path" msgpack:"path"`
}

// NewFingerprint of a request, the query string does not take part
func NewFingerprint(method, rawURL string) Fingerprint {
	return Fingerprint{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Host:   Hostname(rawURL),
		Path:   PathOf(rawURL),
	}
}

func (f Fingerprint) String() string {
	return f.Method + " " + f.Host + f.Path
}

// Vulnerability is one operator asserted finding
type Vulnerability struct {
	ID          int64       `json:"id"`
	CWE         string      `json:"cwe"`
	Description string      `json:"description"`
	URL         string      `json:"url"`
	Method      string      `json:"method"`
	Timestamp   string      `json:"timestamp"`
	Fingerprint Fingerprint `json:"requestFingerprint"`
}

// Clone returns a copy of the vulnerability
func (v *Vulnerability) Clone() *Vulnerability {
	c := *v
	return &c
}

// NoteMarker is the text added to a watch item note for this finding
func (v *Vulnerability) NoteMarker() string {
	return "[VULN #" + strconv.FormatInt(v.ID, 10) + "] " + v.CWE
}

// CWECatalog is the closed set of finding categories an operator may assert
var CWECatalog = map[string]string{
	"CWE-20":   "Improper Input Validation",
	"CWE-22":   "Path Traversal",
	"CWE-78":   "OS Command Injection",
	"CWE-79":   "Cross-site Scripting (XSS)",
	"CWE-89":   "SQL Injection",
	"CWE-94":   "Code Injection",
	"CWE-200":  "Exposure of Sensitive Information",
	"CWE-285":  "Improper Authorization",
	"CWE-287":  "Improper Authentication",
	"CWE-307":  "Missing Brute Force Protection",
	"CWE-352":  "Cross-Site Request Forgery (CSRF)",
	"CWE-384":  "Session Fixation",
	"CWE-434":  "Unrestricted File Upload",
	"CWE-502":  "Deserialization of Untrusted Data",
	"CWE-601":  "Open Redirect",
	"CWE-611":  "XML External Entity (XXE)",
	"CWE-639":  "Insecure Direct Object Reference (IDOR)",
	"CWE-862":  "Missing Authorization",
	"CWE-918":  "Server-Side Request Forgery (SSRF)",
	"CWE-942":  "Permissive CORS Policy",
	"CWE-1021": "Clickjacking",
	"CWE-1336": "Server-Side Template Injection (SSTI)",
}

// LookupCWE normalizes code ("79", "cwe-79") and returns the catalog entry
func LookupCWE(code string) (string, string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code != "" && !strings.HasPrefix(code, "CWE-") {
		code = "CWE-" + code
	}
	desc, ok := CWECatalog[code]
	return code, desc, ok
}

// CWECodes in numeric order
func CWECodes() []string {
	codes := make([]string, 0, len(CWECatalog))
	for k := range CWECatalog {
		codes = append(codes, k)
	}
	sort.Slice(codes, func(i, j int) bool {
		return cweNumber(codes[i]) < cweNumber(codes[j])
	})
	return codes
}

func cweNumber(code string) int {
	n := 0
	for _, r := range strings.TrimPrefix(code, "CWE-") {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}
