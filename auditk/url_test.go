package auditk_test

import (
	"testing"

	"gitlab.com/auditker/auditk"
)

func TestStripDefaultPort(t *testing.T) {
	var inputs = []struct {
		in       string
		expected string
	}{
		{"https://ex.com:443/a", "https://ex.com/a"},
		{"http://ex.com:80/a?x=1", "http://ex.com/a?x=1"},
		{"http://ex.com:443/a", "http://ex.com:443/a"},
		{"https://ex.com:8443", "https://ex.com:8443"},
		{"HTTP://EX.COM:80", "HTTP://EX.COM"},
		{"/just/a/path", "/just/a/path"},
	}
	for _, in := range inputs {
		if ret := auditk.StripDefaultPort(in.in); ret != in.expected {
			t.Fatalf("%s did not match %s for %s\n", ret, in.expected, in.in)
		}
	}
}

func TestCanonicalPath(t *testing.T) {
	var inputs = []struct {
		in       string
		expected string
	}{
		{"http://ex.com/a", "http://ex.com/a"},
		{"http://ex.com:80/a", "http://ex.com/a"},
		{"HTTP://Ex.Com/A", "http://ex.com/A"},
		{"https://ex.com", "https://ex.com/"},
		{"https://ex.com?q=1", "https://ex.com/?q=1"},
		{"https://ex.com/a#frag", "https://ex.com/a"},
		{"  https://ex.com/a  ", "https://ex.com/a"},
		{"/a", ""},
		{"ftp://ex.com/a", ""},
		{"", ""},
	}
	for _, in := range inputs {
		if ret := auditk.CanonicalPath(in.in); ret != in.expected {
			t.Fatalf("%q did not match %q for %q\n", ret, in.expected, in.in)
		}
	}
}

func TestDisplayPath(t *testing.T) {
	if ret := auditk.DisplayPath("https://ex.com/a?b=1", true); ret != "/a?b=1" {
		t.Fatalf("unexpected display path %s\n", ret)
	}
	if ret := auditk.DisplayPath("https://ex.com", true); ret != "/" {
		t.Fatalf("unexpected display path %s\n", ret)
	}
	if ret := auditk.DisplayPath("https://ex.com/a", false); ret != "https://ex.com/a" {
		t.Fatalf("unexpected display path %s\n", ret)
	}
	if ret := auditk.ExpandDisplayPath("/a?b=1", "https://ex.com:8443/base"); ret != "https://ex.com:8443/a?b=1" {
		t.Fatalf("unexpected expanded path %s\n", ret)
	}
	if ret := auditk.ExpandDisplayPath("/a", ""); ret != "" {
		t.Fatalf("expected no expansion without base, got %s\n", ret)
	}
}

func TestHostnameAndPath(t *testing.T) {
	if h := auditk.Hostname("https://User@Ex.com:8443/a"); h != "ex.com" {
		t.Fatalf("unexpected hostname %s\n", h)
	}
	if h := auditk.Hostname("/a"); h != "" {
		t.Fatalf("expected empty hostname got %s\n", h)
	}
	if p := auditk.PathOf("https://ex.com/admin/users?id=1"); p != "/admin/users" {
		t.Fatalf("unexpected path %s\n", p)
	}
	if p := auditk.PathOf("https://ex.com?id=1"); p != "/" {
		t.Fatalf("unexpected path %s\n", p)
	}
	if p := auditk.PathOf("/a/b#x"); p != "/a/b" {
		t.Fatalf("unexpected path %s\n", p)
	}
}

func TestFingerprint(t *testing.T) {
	a := auditk.NewFingerprint("get", "https://ex.com/a?id=1")
	b := auditk.NewFingerprint("GET", "https://EX.com:443/a?id=2")
	if a != b {
		t.Fatalf("expected equal fingerprints %v %v\n", a, b)
	}
	c := auditk.NewFingerprint("POST", "https://ex.com/a")
	if a == c {
		t.Fatalf("method must take part in the fingerprint")
	}
}
