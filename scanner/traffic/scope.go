package traffic

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
)

// ScopeService keeps traffic for hosts we do not track, and URIs that must
// never change audit state, away from the watch list
type ScopeService struct {
	allowed      []string
	ignored      []string
	excluded     []string
	excludedURIs []string
}

// NewScopeService with no restrictions, everything is in scope until hosts
// are allowed explicitly
func NewScopeService() *ScopeService {
	return &ScopeService{
		allowed:      make([]string, 0),
		ignored:      make([]string, 0),
		excluded:     make([]string, 0),
		excludedURIs: make([]string, 0),
	}
}

// NewScopeServiceFromConfig applies the host and URI lists of cfg. The target
// host is allowed implicitly when any allow list is given.
func NewScopeServiceFromConfig(cfg *auditk.Config) *ScopeService {
	s := NewScopeService()
	if len(cfg.AllowedHosts) > 0 {
		s.AddScope(cfg.AllowedHosts, auditk.InScope)
		if host := auditk.Hostname(cfg.TargetURL); host != "" {
			s.AddScope([]string{host}, auditk.InScope)
		}
	}
	s.AddScope(cfg.IgnoredHosts, auditk.OutOfScope)
	s.AddScope(cfg.ExcludedHosts, auditk.ExcludedFromScope)
	s.AddExcludedURIs(cfg.ExcludedURIs)
	return s
}

// AddScope to the scope service
func (s *ScopeService) AddScope(inputs []string, scope auditk.Scope) {
	if len(inputs) == 0 {
		return
	}
	lowered := mapFunction(inputs, strings.ToLower)

	switch scope {
	case auditk.InScope:
		s.allowed = append(s.allowed, lowered...)
	case auditk.OutOfScope:
		s.ignored = append(s.ignored, lowered...)
	case auditk.ExcludedFromScope:
		s.excluded = append(s.excluded, lowered...)
	}
}

// AddExcludedURIs so logout and the like never mark anything
func (s *ScopeService) AddExcludedURIs(inputs []string) {
	for _, input := range inputs {
		if auditk.IsURL(input) {
			u, err := url.Parse(input)
			if err != nil {
				log.Warn().Err(err).Msg("failed to add URI to exclusion list")
				continue
			}
			s.excludedURIs = append(s.excludedURIs, strings.ToLower(u.Path))
		} else {
			s.excludedURIs = append(s.excludedURIs, strings.ToLower(input))
		}
	}
}

// Check a url to see if it's in scope
func (s *ScopeService) Check(uri string) auditk.Scope {
	lowered := strings.ToLower(uri)
	host := ""

	if strings.HasPrefix(lowered, "http") {
		u, err := url.Parse(lowered)
		if err != nil {
			log.Warn().Err(err).Str("uri", lowered).Msg("failed to parse URI returning out of scope")
			return auditk.OutOfScope
		}
		host = u.Hostname()
		lowered = u.Path
	} else if !strings.HasPrefix(lowered, "/") {
		lowered = "/" + lowered
	}
	return s.CheckRelative(host, lowered)
}

// CheckRelative checks exclusion first, then ignored hosts, then excluded
// URIs and finally the allow list. An empty allow list allows every host.
func (s *ScopeService) CheckRelative(host, relative string) auditk.Scope {
	if includeFunction(s.excluded, host) {
		return auditk.ExcludedFromScope
	} else if includeFunction(s.ignored, host) {
		return auditk.OutOfScope
	} else if includeFunction(s.excludedURIs, relative) {
		return auditk.ExcludedFromScope
	} else if len(s.allowed) == 0 || includeFunction(s.allowed, host) {
		return auditk.InScope
	}
	return auditk.OutOfScope
}

func mapFunction(vs []string, f func(string) string) []string {
	vsm := make([]string, len(vs))
	for i, v := range vs {
		vsm[i] = f(v)
	}
	return vsm
}

func indexFunction(vs []string, t string) int {
	for i, v := range vs {
		if v == t {
			return i
		}
	}
	return -1
}

func includeFunction(vs []string, t string) bool {
	return indexFunction(vs, t) >= 0
}
