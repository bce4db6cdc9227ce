// Package belief implements C2: deterministic belief-range updates with
// per-class impact caps, conflict widening, an unknowns ledger, and
// multi-factor confidence recomputation with time decay.
//
// All arithmetic is float64 during intermediate computation, per the design
// note that belief math must be reproducible across platforms; rounding to
// two decimals happens only at the storage boundary (Round), never here.
package belief

import (
	"math"
	"time"

	"github.com/beliefcore/core/internal/domain"
)

// ImpactCaps is the per-signal-class maximum proportional shift of the
// belief range.
var ImpactCaps = map[domain.SignalType]float64{
	domain.SignalAuthoritative: 0.20,
	domain.SignalProcedural:    0.15,
	domain.SignalQuantitative:  0.10,
	domain.SignalInterpretive:  0.07,
	domain.SignalSpeculative:   0.03,
}

// Config bounds the per-market history and unknowns ledger sizes (§5).
type Config struct {
	MaxSignalHistory int
	MaxUnknowns      int
	// SpeculativeLookback is N in the GI5 "no non-speculative entry in the
	// last N signals" rule. Default 10 per §4.2.
	SpeculativeLookback int
}

// DefaultConfig returns the defaults named in §4.2/§5.
func DefaultConfig() Config {
	return Config{
		MaxSignalHistory:    15,
		MaxUnknowns:         3,
		SpeculativeLookback: 10,
	}
}

// Engine applies signals to belief states.
type Engine struct {
	cfg Config
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// UpdateResult carries the new state plus whether GI2 was violated, in which
// case the caller (C3, via the scheduler) must forceHalt and must not apply
// NewState.
type UpdateResult struct {
	NewState      domain.BeliefState
	Rejected      bool // GI5: speculative-only basis, belief unchanged
	GI2Violated   bool
}

// Apply runs the full §4.2 procedure: eligibility check, range update,
// conflict widening, clamp, history append/eviction, and confidence
// recomputation with the GI2 invariant check.
func (e *Engine) Apply(old domain.BeliefState, signal domain.Signal, now time.Time) UpdateResult {
	if !e.eligible(signal, old.SignalHistory) {
		return UpdateResult{NewState: old, Rejected: true}
	}

	low, high := e.shiftAndWiden(old.BeliefLow, old.BeliefHigh, signal)
	low, high = clamp(low, high)

	newHistory := appendHistory(old.SignalHistory, signal, e.cfg.MaxSignalHistory)

	newConfidence := e.confidence(newHistory, old.Unknowns, old.LastSignal, signal, now)

	oldUnknownsLen := len(old.Unknowns)
	newUnknownsLen := len(old.Unknowns) // C2 never mutates unknowns itself
	gi2Violated := newUnknownsLen > oldUnknownsLen && newConfidence > old.Confidence

	newState := domain.BeliefState{
		MarketID:      old.MarketID,
		BeliefLow:     low,
		BeliefHigh:    high,
		Confidence:    newConfidence,
		Unknowns:      old.Unknowns,
		SignalHistory: newHistory,
		LastUpdated:   now,
		LastSignal:    &signal,
	}

	return UpdateResult{NewState: newState, GI2Violated: gi2Violated}
}

// eligible enforces GI5: a speculative signal cannot be the sole basis for a
// belief move.
func (e *Engine) eligible(signal domain.Signal, history []domain.Signal) bool {
	if signal.Type != domain.SignalSpeculative {
		return true
	}
	lookback := e.cfg.SpeculativeLookback
	if lookback <= 0 {
		lookback = 10
	}
	start := len(history) - lookback
	if start < 0 {
		start = 0
	}
	for _, s := range history[start:] {
		if s.Type != domain.SignalSpeculative {
			return true
		}
	}
	return false
}

// shiftAndWiden implements the range-update formula of §4.2, exactly as
// stated: shift first (bounded by the impact cap and by 0.6 of the
// pre-shift width), then widen the conflicting bound outward by 0.25 of the
// same pre-shift width.
func (e *Engine) shiftAndWiden(low, high float64, signal domain.Signal) (float64, float64) {
	w := high - low
	cap := ImpactCaps[signal.Type]
	maxShift := cap * 100 * float64(signal.Strength) / 5
	shift := math.Min(maxShift, w*0.6)

	var dir float64
	switch signal.Direction {
	case domain.DirectionUp:
		dir = 1
	case domain.DirectionDown:
		dir = -1
	default:
		dir = 0
	}

	newLow := low + dir*shift
	newHigh := high + dir*shift

	if signal.ConflictsWithExisting {
		switch signal.Direction {
		case domain.DirectionDown:
			newLow -= w * 0.25
		case domain.DirectionUp:
			newHigh += w * 0.25
		}
	}

	return newLow, newHigh
}

// clamp enforces low,high in [0,100] and low <= high via swap (never
// collapse), satisfying I1.
func clamp(low, high float64) (float64, float64) {
	if low < 0 {
		low = 0
	}
	if low > 100 {
		low = 100
	}
	if high < 0 {
		high = 0
	}
	if high > 100 {
		high = 100
	}
	if low > high {
		low, high = high, low
	}
	return low, high
}

func appendHistory(history []domain.Signal, signal domain.Signal, max int) []domain.Signal {
	out := append(append([]domain.Signal{}, history...), signal)
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// confidence recomputes the confidence score as a pure function of the
// post-update state, per §4.2. Speculative signals never contribute to the
// authoritative/procedural bonuses (§9 open-question resolution) but are
// still counted toward history for GI5 purposes and still penalized if
// conflicting.
func (e *Engine) confidence(history []domain.Signal, unknowns []domain.Unknown, prevSignal *domain.Signal, newSignal domain.Signal, now time.Time) float64 {
	c := 50.0

	authCount, procCount := 0, 0
	anyConflict := newSignal.ConflictsWithExisting
	for _, s := range history {
		switch s.Type {
		case domain.SignalAuthoritative:
			authCount++
		case domain.SignalProcedural:
			procCount++
		}
		if s.ConflictsWithExisting {
			anyConflict = true
		}
	}

	c += 10 * float64(authCount)
	c += 5 * float64(procCount)
	c -= 7 * float64(len(unknowns))
	if anyConflict {
		c -= 10
	}

	daysSince := 0.0
	if prevSignal != nil {
		daysSince = now.Sub(prevSignal.Timestamp).Hours() / 24
		if daysSince < 0 {
			daysSince = 0
		}
	}
	c -= 0.5 * daysSince

	return clampConfidence(c)
}

func clampConfidence(c float64) float64 {
	if c < 30 {
		return 30
	}
	if c > 95 {
		return 95
	}
	return c
}

// Decay recomputes confidence purely from elapsed time with no new signal,
// used by the scheduler's periodic reconciliation (§8 S3).
func (e *Engine) Decay(state domain.BeliefState, now time.Time) float64 {
	authCount, procCount := 0, 0
	anyConflict := false
	for _, s := range state.SignalHistory {
		switch s.Type {
		case domain.SignalAuthoritative:
			authCount++
		case domain.SignalProcedural:
			procCount++
		}
		if s.ConflictsWithExisting {
			anyConflict = true
		}
	}

	c := 50.0 + 10*float64(authCount) + 5*float64(procCount) - 7*float64(len(state.Unknowns))
	if anyConflict {
		c -= 10
	}

	daysSince := 0.0
	if state.LastSignal != nil {
		daysSince = now.Sub(state.LastSignal.Timestamp).Hours() / 24
		if daysSince < 0 {
			daysSince = 0
		}
	}
	c -= 0.5 * daysSince

	return clampConfidence(c)
}

// CheckGI2 enforces the global invariant that confidence cannot rise if the
// unknown count rose in the same transition. Callers invoke it whenever
// AddUnknown changes the ledger size ahead of a confidence recomputation;
// a true result means the caller must reject the update and forceHalt.
func CheckGI2(oldConfidence float64, oldUnknownsCount int, newConfidence float64, newUnknownsCount int) bool {
	return newUnknownsCount > oldUnknownsCount && newConfidence > oldConfidence
}

// Round applies the storage-boundary two-decimal rounding named in §9. It is
// only ever called when persisting, never during intermediate computation.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

// AddUnknown appends an Unknown to the belief, evicting the oldest past
// MaxUnknowns (newest retained), and returns the updated slice. Confidence
// is not recomputed here. Apply's own GI2 flag compares the unknowns it is
// given with themselves and so never sees this growth; the caller checks it
// with CheckGI2 against the count from before AddUnknown.
func (e *Engine) AddUnknown(unknowns []domain.Unknown, u domain.Unknown) []domain.Unknown {
	out := append(append([]domain.Unknown{}, unknowns...), u)
	max := e.cfg.MaxUnknowns
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// ResolveUnknown marks an unknown resolved in place (does not remove it; the
// ledger only shrinks via eviction).
func ResolveUnknown(unknowns []domain.Unknown, id string, resolvedAt time.Time) []domain.Unknown {
	out := make([]domain.Unknown, len(unknowns))
	copy(out, unknowns)
	for i := range out {
		if out[i].ID == id && out[i].ResolvedAt == nil {
			t := resolvedAt
			out[i].ResolvedAt = &t
		}
	}
	return out
}
