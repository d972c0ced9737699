package mock

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/auditker/auditk"
)

// MakeMockConfig with no pauses so tests run fast
func MakeMockConfig(target string) *auditk.Config {
	cfg := auditk.DefaultConfig()
	cfg.TargetURL = target
	cfg.ImportChunkPause = 0
	cfg.ScanMarkInterval = time.Hour
	cfg.ScanMarkBurst = 1
	return cfg
}

// MakeMockSiteMap entries for urls
func MakeMockSiteMap(urls ...string) []*auditk.SiteMapEntry {
	entries := make([]*auditk.SiteMapEntry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, &auditk.SiteMapEntry{
			URL:             u,
			Method:          "GET",
			StatusCode:      200,
			ResponseHeaders: map[string]string{"Content-Type": "text/html"},
		})
	}
	return entries
}

// MakeMockEndpoints under base: base/p0 ... base/p<n-1>
func MakeMockEndpoints(base string, n int) []string {
	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		urls = append(urls, fmt.Sprintf("%s/p%d", base, i))
	}
	return urls
}

// MakeMockTraffic request from origin
func MakeMockTraffic(origin auditk.ToolOrigin, method, url string) *auditk.TrafficEvent {
	return &auditk.TrafficEvent{
		Origin:    origin,
		IsRequest: true,
		URL:       url,
		Method:    method,
		Raw:       []byte(fmt.Sprintf("%s %s HTTP/1.1\r\n\r\n", method, url)),
	}
}

// Context for a traffic event
func Context(ctx context.Context, evt *auditk.TrafficEvent) *auditk.Context {
	return auditk.NewContext(ctx, evt)
}
