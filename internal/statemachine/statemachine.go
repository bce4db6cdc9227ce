// Package statemachine implements C3: one instance per market, enforcing
// the fixed legal-transition table and the terminal HALT state. Adapted
// from the mutex-guarded current-state/transition-history pattern of the
// teacher's phase detector, generalized from portfolio phases to the
// seven-state trading lifecycle.
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/beliefcore/core/internal/domain"
)

// State is one of the seven fixed states.
type State string

const (
	StateObserve       State = "OBSERVE"
	StateIngestSignal   State = "INGEST_SIGNAL"
	StateUpdateBelief   State = "UPDATE_BELIEF"
	StateEvaluateTrade  State = "EVALUATE_TRADE"
	StateExecuteTrade   State = "EXECUTE_TRADE"
	StateMonitor        State = "MONITOR"
	StateHalt           State = "HALT"
)

// legalTransitions is the fixed table of §4.3. Anything not listed here is
// illegal and forces HALT.
var legalTransitions = map[State]map[State]bool{
	StateObserve:       {StateIngestSignal: true, StateHalt: true},
	StateIngestSignal:  {StateUpdateBelief: true, StateObserve: true, StateHalt: true},
	StateUpdateBelief:  {StateEvaluateTrade: true, StateObserve: true, StateHalt: true},
	StateEvaluateTrade: {StateExecuteTrade: true, StateObserve: true, StateHalt: true},
	StateExecuteTrade:  {StateMonitor: true, StateHalt: true},
	StateMonitor:       {StateObserve: true, StateHalt: true},
	StateHalt:          {},
}

// TransitionEvent records one transition for audit and test inspection.
type TransitionEvent struct {
	From      State
	To        State
	Reason    string
	At        time.Time
	HaltCause domain.HaltReason // only meaningful when To == StateHalt
}

// TransitionHandler is notified, fire-and-forget, after every transition.
type TransitionHandler func(TransitionEvent)

// Machine is the per-market state machine. The zero value is not usable;
// construct with New.
type Machine struct {
	marketID string
	mu       sync.RWMutex
	current  State
	history  []TransitionEvent
	maxHistory int
	handlers []TransitionHandler
}

// New constructs a Machine in the initial OBSERVE state for one market.
func New(marketID string, maxHistory int) *Machine {
	if maxHistory <= 0 {
		maxHistory = 200
	}
	return &Machine{
		marketID:   marketID,
		current:    StateObserve,
		maxHistory: maxHistory,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// RegisterHandler adds a transition handler.
func (m *Machine) RegisterHandler(h TransitionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// History returns a copy of the transition history.
func (m *Machine) History() []TransitionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransitionEvent, len(m.history))
	copy(out, m.history)
	return out
}

// Transition attempts to move to `to` with the given reason. An illegal
// transition is rejected and the machine is forced to HALT instead — the
// returned event always reflects what actually happened, so callers must
// inspect event.To rather than assume `to` was reached.
func (m *Machine) Transition(to State, reason string) TransitionEvent {
	m.mu.Lock()

	if m.current == StateHalt {
		// HALT is terminal; nothing transitions out of it.
		event := TransitionEvent{From: StateHalt, To: StateHalt, Reason: "halt is terminal", At: time.Now()}
		m.mu.Unlock()
		return event
	}

	allowed := legalTransitions[m.current][to]
	from := m.current
	var event TransitionEvent

	if allowed {
		m.current = to
		event = TransitionEvent{From: from, To: to, Reason: reason, At: time.Now()}
	} else {
		m.current = StateHalt
		event = TransitionEvent{
			From:      from,
			To:        StateHalt,
			Reason:    fmt.Sprintf("illegal transition: %s -> %s (%s)", from, to, reason),
			At:        time.Now(),
			HaltCause: domain.HaltIllegalTransition,
		}
	}

	m.appendHistory(event)
	handlers := m.handlersCopy()
	m.mu.Unlock()

	m.notify(event, handlers)
	return event
}

// ForceHalt is an unconditional jump to HALT from any non-terminal state,
// invoked by any invariant violation or by C7.
func (m *Machine) ForceHalt(cause domain.HaltReason, reason string) TransitionEvent {
	m.mu.Lock()
	from := m.current
	if from == StateHalt {
		m.mu.Unlock()
		return TransitionEvent{From: StateHalt, To: StateHalt, Reason: "already halted", At: time.Now(), HaltCause: cause}
	}
	m.current = StateHalt
	event := TransitionEvent{From: from, To: StateHalt, Reason: reason, At: time.Now(), HaltCause: cause}
	m.appendHistory(event)
	handlers := m.handlersCopy()
	m.mu.Unlock()

	m.notify(event, handlers)
	return event
}

// Reset clears the HALT state back to OBSERVE. It is only ever invoked by
// the operator-gated control surface, never automatically (Non-goal:
// "recovery from HALT without operator action").
func (m *Machine) Reset(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != StateHalt {
		return fmt.Errorf("reset refused: machine is not halted (current=%s)", m.current)
	}
	m.current = StateObserve
	m.appendHistory(TransitionEvent{From: StateHalt, To: StateObserve, Reason: reason, At: time.Now()})
	return nil
}

func (m *Machine) appendHistory(event TransitionEvent) {
	m.history = append(m.history, event)
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

func (m *Machine) handlersCopy() []TransitionHandler {
	out := make([]TransitionHandler, len(m.handlers))
	copy(out, m.handlers)
	return out
}

func (m *Machine) notify(event TransitionEvent, handlers []TransitionHandler) {
	for _, h := range handlers {
		go func(handler TransitionHandler) {
			defer func() {
				_ = recover()
			}()
			handler(event)
		}(h)
	}
}
