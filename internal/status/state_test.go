package status

import (
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Connecting},
		{Booting, Error},
		{Connecting, Syncing},
		{Connecting, Degraded},
		{Syncing, Ready},
		{Syncing, Degraded},
		{Ready, Syncing},
		{Degraded, Syncing},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.SessionStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.SessionStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Connecting {
		t.Errorf("change = %v -> %v, want BOOTING -> CONNECTING", change.From, change.To)
	}
}

// TestAdvanceFromBoot walks the first inbox refresh:
// BOOTING → CONNECTING → SYNCING → READY
func TestAdvanceFromBoot(t *testing.T) {
	m := NewMachine(nil)
	if !m.Advance(Connecting, Syncing) {
		t.Fatalf("Advance to SYNCING failed, state = %s", m.Current())
	}
	if !m.Advance(Ready) {
		t.Fatalf("Advance to READY failed, state = %s", m.Current())
	}
}

// TestAdvanceSkipsUnreachable verifies that a later refresh from READY
// skips CONNECTING and goes straight to SYNCING.
func TestAdvanceSkipsUnreachable(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Ready)
	if !m.Advance(Connecting, Syncing) {
		t.Fatalf("Advance from READY failed, state = %s", m.Current())
	}
}

// TestRecoverFromDegraded verifies a failed refresh followed by a good one:
// SYNCING → DEGRADED → SYNCING → READY
func TestRecoverFromDegraded(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Syncing)

	steps := []State{Degraded, Syncing, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func TestAdvanceEmptyPath(t *testing.T) {
	m := NewMachine(nil)
	if m.Advance() {
		t.Error("Advance() with no path should report false")
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:    {},
		Connecting: {Connecting},
		Syncing:    {Connecting, Syncing},
		Ready:      {Connecting, Syncing, Ready},
		Degraded:   {Connecting, Syncing, Degraded},
		Error:      {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
