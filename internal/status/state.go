package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting    State = "BOOTING"
	Connecting State = "CONNECTING"
	Syncing    State = "SYNCING"
	Ready      State = "READY"
	Degraded   State = "DEGRADED"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions. SYNCING covers an
// inbox refresh in flight; a failed refresh lands in DEGRADED until the next
// one succeeds.
var validTransitions = map[State][]State{
	Booting:    {Connecting, Error},
	Connecting: {Syncing, Degraded, Error},
	Syncing:    {Ready, Degraded, Error},
	Ready:      {Syncing, Degraded, Error},
	Degraded:   {Connecting, Syncing, Error},
	Error:      {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(to)
}

// Advance moves to the first state of path that is reachable from the
// current one, walking the rest of path from there. It reports whether the
// machine ended in the last state of path.
func (m *Machine) Advance(path ...State) bool {
	if len(path) == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range path {
		if m.current == s {
			continue
		}
		_ = m.transition(s)
	}
	return m.current == path[len(path)-1]
}

func (m *Machine) transition(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
