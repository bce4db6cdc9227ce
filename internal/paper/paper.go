// Package paper implements C6: the persistent virtual position ledger.
// Positions are mutated only serially per id, matching §5's shared-resource
// policy; the per-id lock is a small, in-process adaptation of the
// key-scoped distributed-lock idea in the teacher's redis locker, needed
// here only to serialize concurrent resolution/eviction passes within one
// process.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/ports"
)

// Config bounds the retention window for resolved/expired positions (§4.6).
type Config struct {
	RetentionWindow time.Duration
}

// DefaultConfig returns a 30-day retention window.
func DefaultConfig() Config {
	return Config{RetentionWindow: 30 * 24 * time.Hour}
}

// Tracker is C6.
type Tracker struct {
	store ports.PositionStore
	cfg   Config

	mu        sync.RWMutex
	positions map[string]domain.PaperPosition
	locks     map[string]*sync.Mutex
}

// New constructs a Tracker and recovers every position from the store.
func New(ctx context.Context, store ports.PositionStore, cfg Config) (*Tracker, error) {
	t := &Tracker{
		store:     store,
		cfg:       cfg,
		positions: make(map[string]domain.PaperPosition),
		locks:     make(map[string]*sync.Mutex),
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceFailure, "paper.New", err)
	}
	for _, p := range loaded {
		t.positions[p.ID] = p
	}
	return t, nil
}

func (t *Tracker) lockFor(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// HasOpenPosition implements execution.OpenPositionChecker.
func (t *Tracker) HasOpenPosition(ctx context.Context, marketID string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.positions {
		if p.MarketID == marketID && p.Status == domain.PositionOpen {
			return true, nil
		}
	}
	return false, nil
}

// Create registers a new OPEN position on a simulated fill, per §4.6.
func (t *Tracker) Create(ctx context.Context, decision domain.TradeDecision, belief domain.BeliefState, edge float64, now time.Time) (domain.PaperPosition, error) {
	p := domain.PaperPosition{
		ID:                uuid.NewString(),
		MarketID:          decision.MarketID,
		Side:              decision.Side,
		EntryPrice:        decision.EntryPrice,
		BeliefLow:         belief.BeliefLow,
		BeliefHigh:        belief.BeliefHigh,
		EdgeAtEntry:       edge,
		ConfidenceAtEntry: belief.Confidence,
		UnknownsAtEntry:   len(belief.Unknowns),
		SizeUSD:           decision.SizeUSD,
		EntryTS:           now,
		Status:            domain.PositionOpen,
	}
	if err := t.persist(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// Resolve implements the §4.6 resolution formula when a market is observed
// with a resolution outcome.
func (t *Tracker) Resolve(ctx context.Context, id string, outcome domain.Outcome, now time.Time) (domain.PaperPosition, error) {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t.mu.RLock()
	p, ok := t.positions[id]
	t.mu.RUnlock()
	if !ok {
		return p, fmt.Errorf("no such position %s", id)
	}
	if p.Status != domain.PositionOpen {
		return p, nil // idempotent
	}

	exitPrice := 0.0
	if outcome == domain.OutcomeYes {
		exitPrice = 100
	}
	winningSide := outcome == domain.OutcomeYes && p.Side == domain.SideYes ||
		outcome == domain.OutcomeNo && p.Side == domain.SideNo

	var pnl decimal.Decimal
	size := p.SizeUSD
	if p.Side == domain.SideYes {
		pnl = decimal.NewFromFloat(exitPrice - p.EntryPrice).Mul(size).Div(decimal.NewFromInt(100))
	} else {
		pnl = decimal.NewFromFloat(p.EntryPrice - exitPrice).Mul(size).Div(decimal.NewFromInt(100))
	}

	p.ExitPrice = &exitPrice
	p.ResolvedTS = &now
	p.PnL = &pnl
	p.ActualOutcome = &outcome
	if winningSide {
		p.Status = domain.PositionWin
	} else {
		p.Status = domain.PositionLoss
	}

	if err := t.persist(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// Expire marks a position EXPIRED when the market disappears before
// resolution. pnl is left undefined, per §4.6.
func (t *Tracker) Expire(ctx context.Context, id string, now time.Time) (domain.PaperPosition, error) {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t.mu.RLock()
	p, ok := t.positions[id]
	t.mu.RUnlock()
	if !ok {
		return p, fmt.Errorf("no such position %s", id)
	}
	if p.Status != domain.PositionOpen {
		return p, nil
	}
	p.Status = domain.PositionExpired
	p.ResolvedTS = &now

	if err := t.persist(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

func (t *Tracker) persist(ctx context.Context, p domain.PaperPosition) error {
	if err := t.store.Upsert(ctx, p); err != nil {
		return domain.NewError(domain.ErrPersistenceFailure, "paper.persist", err)
	}
	t.mu.Lock()
	t.positions[p.ID] = p
	t.mu.Unlock()
	return nil
}

// ToCalibrationRecord converts a resolved position to the record C7
// consumes.
func ToCalibrationRecord(p domain.PaperPosition, category domain.Category, confidenceAtEntry float64, unknownsCount int, invalidated bool) domain.CalibrationRecord {
	var resolvedTS time.Time
	if p.ResolvedTS != nil {
		resolvedTS = *p.ResolvedTS
	}
	var outcome domain.Outcome
	if p.ActualOutcome != nil {
		outcome = *p.ActualOutcome
	}
	return domain.CalibrationRecord{
		MarketID:          p.MarketID,
		Category:          category,
		BeliefAtEntryLow:  p.BeliefLow,
		BeliefAtEntryHigh: p.BeliefHigh,
		ConfidenceAtEntry: confidenceAtEntry,
		UnknownsCount:     unknownsCount,
		ActualOutcome:     outcome,
		ResolvedTS:        resolvedTS,
		EdgeAtEntry:       p.EdgeAtEntry,
		InvalidatedExit:   invalidated,
	}
}

// EvictOld removes WIN/LOSS/EXPIRED positions older than the retention
// window, per §4.6's bounded retention policy. Aggressive/emergency memory
// pressure calls this with a tighter window (§5 Memory policy).
func (t *Tracker) EvictOld(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	if window <= 0 {
		window = t.cfg.RetentionWindow
	}

	t.mu.Lock()
	var toDelete []string
	for id, p := range t.positions {
		if p.Status == domain.PositionOpen {
			continue
		}
		if p.ResolvedTS == nil {
			continue
		}
		if now.Sub(*p.ResolvedTS) > window {
			toDelete = append(toDelete, id)
		}
	}
	t.mu.Unlock()

	for _, id := range toDelete {
		if err := t.store.Delete(ctx, id); err != nil {
			return 0, domain.NewError(domain.ErrPersistenceFailure, "paper.EvictOld", err)
		}
		t.mu.Lock()
		delete(t.positions, id)
		delete(t.locks, id)
		t.mu.Unlock()
	}
	return len(toDelete), nil
}

// Snapshot returns a copy of every tracked position.
func (t *Tracker) Snapshot() []domain.PaperPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.PaperPosition, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}
