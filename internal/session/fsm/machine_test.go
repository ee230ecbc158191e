package fsm

import "testing"

func TestMachineDefault(t *testing.T) {
	m := New()
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s, want %s", got, StateIdle)
	}
	if m.Interrupted() {
		t.Fatal("interrupted=true on fresh machine")
	}
}

func TestMachineConnectLifecycle(t *testing.T) {
	m := New()
	steps := []State{StateConnecting, StateConnected, StateDisconnecting, StateIdle}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error: %v", s, err)
		}
		if got := m.State(); got != s {
			t.Fatalf("state=%s, want %s", got, s)
		}
	}
}

func TestMachineRejectsIllegalTransitions(t *testing.T) {
	m := New()
	if err := m.Transition(StateConnected); err == nil {
		t.Fatal("idle -> connected accepted, want error")
	}
	if err := m.Transition(StateDisconnecting); err == nil {
		t.Fatal("idle -> disconnecting accepted, want error")
	}
	if got := m.State(); got != StateIdle {
		t.Fatalf("state=%s after rejected transitions, want %s", got, StateIdle)
	}
}

func TestMachineAbruptLossDropsToIdle(t *testing.T) {
	m := New()
	if err := m.Transition(StateConnecting); err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if err := m.Transition(StateConnected); err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if err := m.Transition(StateIdle); err != nil {
		t.Fatalf("connected -> idle error: %v", err)
	}
}

func TestMachineInterruptedFlag(t *testing.T) {
	m := New()
	m.MarkInterrupted()
	if m.Interrupted() {
		t.Fatal("interrupted raised while idle")
	}

	_ = m.Transition(StateConnecting)
	_ = m.Transition(StateConnected)
	m.MarkInterrupted()
	if !m.Interrupted() {
		t.Fatal("interrupted not raised while connected")
	}
	if !m.ClearInterrupted() {
		t.Fatal("ClearInterrupted()=false, want true")
	}
	if m.Interrupted() {
		t.Fatal("interrupted still raised after clear")
	}

	m.MarkInterrupted()
	_ = m.Transition(StateDisconnecting)
	if m.Interrupted() {
		t.Fatal("interrupted survived leaving connected")
	}
}

func TestMachineInvalidForce(t *testing.T) {
	m := New()
	if err := m.Force(State("unknown")); err == nil {
		t.Fatal("Force(unknown) error=nil, want non-nil")
	}
	if err := m.Force(StateConnected); err != nil {
		t.Fatalf("Force(connected) error: %v", err)
	}
	if got := m.State(); got != StateConnected {
		t.Fatalf("state=%s, want %s", got, StateConnected)
	}
}
