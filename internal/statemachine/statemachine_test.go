package statemachine

import (
	"sync"
	"testing"

	"github.com/beliefcore/core/internal/domain"
)

func TestTransitionFollowsLegalTable(t *testing.T) {
	m := New("m1", 10)
	event := m.Transition(StateIngestSignal, "signal received")
	if event.To != StateIngestSignal {
		t.Fatalf("Transition() To = %s, want INGEST_SIGNAL", event.To)
	}
	if m.Current() != StateIngestSignal {
		t.Fatalf("Current() = %s, want INGEST_SIGNAL", m.Current())
	}
}

func TestIllegalTransitionForcesHalt(t *testing.T) {
	m := New("m1", 10)
	// OBSERVE -> EXECUTE_TRADE is not in the legal table.
	event := m.Transition(StateExecuteTrade, "skip ahead")

	if event.To != StateHalt {
		t.Fatalf("Transition() To = %s, want HALT on an illegal transition", event.To)
	}
	if event.HaltCause != domain.HaltIllegalTransition {
		t.Errorf("HaltCause = %s, want illegal_transition", event.HaltCause)
	}
	if m.Current() != StateHalt {
		t.Fatalf("Current() = %s, want HALT", m.Current())
	}
}

func TestHaltIsTerminal(t *testing.T) {
	m := New("m1", 10)
	m.ForceHalt(domain.HaltOperator, "operator stop")

	event := m.Transition(StateObserve, "try to escape")
	if event.To != StateHalt || event.From != StateHalt {
		t.Errorf("Transition() after HALT = %+v, want a no-op staying in HALT", event)
	}
	if m.Current() != StateHalt {
		t.Error("Current() left HALT, want it to remain terminal")
	}
}

func TestForceHaltFromAnyNonTerminalState(t *testing.T) {
	m := New("m1", 10)
	m.Transition(StateIngestSignal, "x")
	m.Transition(StateUpdateBelief, "x")

	event := m.ForceHalt(domain.HaltCalibrationFailure, "calibration halt")
	if event.To != StateHalt || event.From != StateUpdateBelief {
		t.Errorf("ForceHalt() = %+v, want From=UPDATE_BELIEF To=HALT", event)
	}
	if event.HaltCause != domain.HaltCalibrationFailure {
		t.Errorf("HaltCause = %s, want calibration_failure", event.HaltCause)
	}
}

func TestResetOnlyWorksFromHalt(t *testing.T) {
	m := New("m1", 10)
	if err := m.Reset("operator reset"); err == nil {
		t.Error("Reset() error = nil, want an error when not halted")
	}

	m.ForceHalt(domain.HaltOperator, "stop")
	if err := m.Reset("operator reset"); err != nil {
		t.Fatalf("Reset() error = %v, want nil once halted", err)
	}
	if m.Current() != StateObserve {
		t.Errorf("Current() after Reset() = %s, want OBSERVE", m.Current())
	}
}

func TestHistoryIsBoundedAndCopiedOnRead(t *testing.T) {
	m := New("m1", 2)
	m.Transition(StateIngestSignal, "1")
	m.Transition(StateObserve, "2")
	m.Transition(StateIngestSignal, "3")

	hist := m.History()
	if len(hist) != 2 {
		t.Fatalf("len(History()) = %d, want 2 (bounded)", len(hist))
	}
	hist[0].Reason = "mutated"
	if m.History()[0].Reason == "mutated" {
		t.Error("History() returned a reference into internal state, want a copy")
	}
}

func TestHandlersAreNotifiedAndRecoverFromPanic(t *testing.T) {
	m := New("m1", 10)
	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	var seen []State

	m.RegisterHandler(func(e TransitionEvent) {
		defer wg.Done()
		panic("handler boom") // must not crash the caller
	})
	m.RegisterHandler(func(e TransitionEvent) {
		defer wg.Done()
		mu.Lock()
		seen = append(seen, e.To)
		mu.Unlock()
	})

	m.Transition(StateIngestSignal, "go")
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != StateIngestSignal {
		t.Errorf("seen = %v, want [INGEST_SIGNAL] from the surviving handler", seen)
	}
}
