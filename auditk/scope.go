package auditk

// Scope of observed traffic
type Scope int8

const (
	// InScope traffic is classified against the watch list
	InScope Scope = iota + 1
	// OutOfScope traffic for hosts we are not tracking
	OutOfScope
	// ExcludedFromScope traffic that must never touch audit state (logout etc)
	ExcludedFromScope
)

// ScopeTypeMap for printing
var ScopeTypeMap = map[Scope]string{
	InScope:           "in_scope",
	OutOfScope:        "out_of_scope",
	ExcludedFromScope: "excluded",
}

func (s Scope) String() string {
	if v, ok := ScopeTypeMap[s]; ok {
		return v
	}
	return "unknown"
}

// ScopeService decides whether traffic is considered at all
type ScopeService interface {
	AddScope(inputs []string, scope Scope)
	AddExcludedURIs(inputs []string)
	Check(uri string) Scope
	CheckRelative(host, relative string) Scope
}
