package scanner

import (
	"sync"

	"gitlab.com/auditker/auditk"
)

// GuardState of the active project session
type GuardState int8

const (
	// GuardIdle no project is active, saves are dropped
	GuardIdle GuardState = iota + 1
	// GuardTransitioning a project switch is in flight, saves are dropped
	GuardTransitioning
	// GuardActive a project is loaded and saves go through
	GuardActive
)

// GuardStateMap for printing
var GuardStateMap = map[GuardState]string{
	GuardIdle:          "idle",
	GuardTransitioning: "transitioning",
	GuardActive:        "active",
}

func (s GuardState) String() string {
	if v, ok := GuardStateMap[s]; ok {
		return v
	}
	return "unknown"
}

// Guard gates document saves while in memory state is being replaced
type Guard struct {
	mu    sync.Mutex
	state GuardState
}

// NewGuard in the idle state
func NewGuard() *Guard {
	return &Guard{state: GuardIdle}
}

// State of the guard
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CanSave is only true while active
func (g *Guard) CanSave() bool {
	return g.State() == GuardActive
}

// Transition runs fn with the guard held in Transitioning. The guard always
// leaves Transitioning: Active if fn succeeds, Idle if it fails or panics.
// A second concurrent transition gets ErrTransitioning.
func (g *Guard) Transition(fn func() error) (err error) {
	g.mu.Lock()
	if g.state == GuardTransitioning {
		g.mu.Unlock()
		return auditk.ErrTransitioning
	}
	g.state = GuardTransitioning
	g.mu.Unlock()

	defer func() {
		r := recover()
		g.mu.Lock()
		if r != nil || err != nil {
			g.state = GuardIdle
		} else {
			g.state = GuardActive
		}
		g.mu.Unlock()
		if r != nil {
			panic(r)
		}
	}()
	return fn()
}

// Deactivate drops back to idle, used on shutdown
func (g *Guard) Deactivate() {
	g.mu.Lock()
	g.state = GuardIdle
	g.mu.Unlock()
}
