package mock

import (
	"context"

	"gitlab.com/auditker/auditk"
)

// SiteMapProvider returns whatever ListKnownEndpointsFn returns
type SiteMapProvider struct {
	ListKnownEndpointsFn     func(ctx context.Context, targetBaseURL string) ([]*auditk.SiteMapEntry, error)
	ListKnownEndpointsCalled bool
}

// ListKnownEndpoints for the target
func (s *SiteMapProvider) ListKnownEndpoints(ctx context.Context, targetBaseURL string) ([]*auditk.SiteMapEntry, error) {
	s.ListKnownEndpointsCalled = true
	return s.ListKnownEndpointsFn(ctx, targetBaseURL)
}

// MakeMockSiteMapProvider serving the given urls as 200 GETs
func MakeMockSiteMapProvider(urls ...string) *SiteMapProvider {
	p := &SiteMapProvider{}
	p.ListKnownEndpointsFn = func(ctx context.Context, targetBaseURL string) ([]*auditk.SiteMapEntry, error) {
		return MakeMockSiteMap(urls...), nil
	}
	return p
}
