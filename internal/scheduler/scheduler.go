// Package scheduler wires C1-C7 together into the single logical event
// loop described in §5: one sharded worker pool gives every market a
// serial processing lane, a ticker drives periodic polling/resolution/
// cleanup passes, and an in-process bus fans calibration and halt
// notifications out to anything subscribed. Adapted from the teacher's
// workerpool.Pool wiring plus the ticker+stopCh+WaitGroup loop shape used
// throughout its services.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/belief"
	"github.com/beliefcore/core/internal/bus"
	"github.com/beliefcore/core/internal/calibration"
	"github.com/beliefcore/core/internal/classify"
	"github.com/beliefcore/core/internal/decision"
	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/execution"
	"github.com/beliefcore/core/internal/logging"
	"github.com/beliefcore/core/internal/memory"
	"github.com/beliefcore/core/internal/paper"
	"github.com/beliefcore/core/internal/ports"
	"github.com/beliefcore/core/internal/safety"
	"github.com/beliefcore/core/internal/statemachine"
)

// Config carries the scheduling cadence and capacity limits of §5/§6 that
// are not owned by any single component.
type Config struct {
	MaxMarkets              int
	PollInterval            time.Duration
	CleanupInterval         time.Duration
	ResolutionCheckInterval time.Duration
	VirtualCapitalUSD       float64
	RangeCoverageTarget     float64
	RetentionWindow         time.Duration
	Pool                    PoolConfig
}

// DefaultConfig returns the defaults named in §6.
func DefaultConfig() Config {
	return Config{
		MaxMarkets:              300,
		PollInterval:            60 * time.Second,
		CleanupInterval:         60 * time.Second,
		ResolutionCheckInterval: 5 * time.Minute,
		VirtualCapitalUSD:       10000,
		RangeCoverageTarget:     0.75,
		RetentionWindow:         30 * 24 * time.Hour,
		Pool:                    DefaultPoolConfig(),
	}
}

// marketState is the per-market mutable state: one state machine and one
// belief. Only ever touched by the worker owning that market's shard, so
// it carries no lock of its own — the pool's stable-hash routing is the
// synchronization primitive (§5).
type marketState struct {
	machine  *statemachine.Machine
	belief   domain.BeliefState
	category domain.Category
	question string
}

// Scheduler is the single logical event loop described in §5.
type Scheduler struct {
	cfg Config

	markets        ports.MarketSource
	signals        ports.SignalSource
	classifier     *classify.Classifier
	beliefEngine   *belief.Engine
	decisionEngine *decision.Engine
	execLayer      *execution.Layer
	paperTracker   *paper.Tracker
	calibMonitor   *calibration.Monitor
	safetyLedger   *safety.Ledger // nil disables the live-mode risk gate
	memMonitor     *memory.Monitor
	auditSink      ports.AuditSink
	notifySink     ports.NotificationSink
	eventBus       *bus.Bus
	clock          ports.Clock
	log            *logging.StandardLogger

	pool *pool

	mu           sync.RWMutex
	marketStates map[string]*marketState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires every component into a Scheduler. safetyLedger may be nil.
func New(
	cfg Config,
	markets ports.MarketSource,
	signals ports.SignalSource,
	classifier *classify.Classifier,
	beliefEngine *belief.Engine,
	decisionEngine *decision.Engine,
	execLayer *execution.Layer,
	paperTracker *paper.Tracker,
	calibMonitor *calibration.Monitor,
	safetyLedger *safety.Ledger,
	memMonitor *memory.Monitor,
	auditSink ports.AuditSink,
	notifySink ports.NotificationSink,
	eventBus *bus.Bus,
	clock ports.Clock,
	log *logging.StandardLogger,
) *Scheduler {
	return &Scheduler{
		cfg:            cfg,
		markets:        markets,
		signals:        signals,
		classifier:     classifier,
		beliefEngine:   beliefEngine,
		decisionEngine: decisionEngine,
		execLayer:      execLayer,
		paperTracker:   paperTracker,
		calibMonitor:   calibMonitor,
		safetyLedger:   safetyLedger,
		memMonitor:     memMonitor,
		auditSink:      auditSink,
		notifySink:     notifySink,
		eventBus:       eventBus,
		clock:          clock,
		log:            log.WithComponent("scheduler"),
		pool:           newPool(cfg.Pool),
		marketStates:   make(map[string]*marketState),
	}
}

// Start launches the worker pool, the memory monitor, and the three
// periodic passes (poll, resolution check, cleanup). It returns once
// everything is running; the passes themselves run until Stop or ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.pool.start(ctx); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}
	s.memMonitor.Register(s.handleMemoryPressure)
	s.memMonitor.Start(ctx)

	s.stopCh = make(chan struct{})

	s.emit(ctx, ports.AuditEvent{Event: ports.EventSystemStart, Detail: "scheduler started"})

	s.wg.Add(3)
	go s.runLoop(ctx, s.cfg.PollInterval, s.pollOnce)
	go s.runLoop(ctx, s.cfg.ResolutionCheckInterval, s.resolutionCheckOnce)
	go s.runLoop(ctx, s.cfg.CleanupInterval, s.cleanupOnce)

	return nil
}

// Stop halts every periodic pass and the worker pool, and waits for both
// to drain. Persisted positions and calibration records are left intact.
func (s *Scheduler) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.wg.Wait()
	s.pool.stop()
	s.memMonitor.Stop()
}

// runLoop drives fn on a ticker until ctx or stopCh fires. A tick that
// fires while fn is still running is dropped, not queued (§5).
func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Tick runs one poll pass immediately, for the control surface's manual
// tick() action.
func (s *Scheduler) Tick(ctx context.Context) {
	s.pollOnce(ctx)
}

// ForceHalt is the control surface's force_halt(reason) action: every
// per-market machine is forced into HALT.
func (s *Scheduler) ForceHalt(ctx context.Context, reason string) {
	s.forceHaltAll(ctx, domain.HaltOperator, reason)
}

// Reset is the control surface's reset() action: every halted machine
// returns to OBSERVE. Never invoked automatically (Non-goal: "recovery
// from HALT without operator action"). When at least one machine is reset,
// the decision engine's auto-adjust state is cleared as well.
func (s *Scheduler) Reset(reason string) int {
	s.mu.RLock()
	states := make([]*marketState, 0, len(s.marketStates))
	for _, st := range s.marketStates {
		states = append(states, st)
	}
	s.mu.RUnlock()

	reset := 0
	for _, st := range states {
		if st.machine.Current() == statemachine.StateHalt {
			if err := st.machine.Reset(reason); err == nil {
				reset++
			}
		}
	}
	if reset > 0 {
		s.decisionEngine.ResetAutoAdjust()
	}
	return reset
}

// stateFor returns the per-market state, constructing a fresh one seeded
// at the uninformed prior (GI1: never a point estimate) on first sight.
func (s *Scheduler) stateFor(market domain.Market) *marketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.marketStates[market.ID]
	if !ok {
		st = &marketState{
			machine: statemachine.New(market.ID, 200),
			belief: domain.BeliefState{
				MarketID:    market.ID,
				BeliefLow:   0,
				BeliefHigh:  100,
				Confidence:  50,
				LastUpdated: s.clock.Now(),
			},
			category: market.Category,
			question: market.Question,
		}
		s.marketStates[market.ID] = st
		return st
	}
	st.category = market.Category
	st.question = market.Question
	return st
}

// pollOnce lists markets, caps the working set at MaxMarkets (favoring the
// most liquid), and submits one per-market task per market to the pool.
func (s *Scheduler) pollOnce(ctx context.Context) {
	markets, err := s.markets.ListMarkets(ctx)
	if err != nil {
		s.logRecoverable("list_markets", err)
		return
	}

	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Liquidity > markets[j].Liquidity
	})
	if s.cfg.MaxMarkets > 0 && len(markets) > s.cfg.MaxMarkets {
		markets = markets[:s.cfg.MaxMarkets]
	}

	for _, market := range markets {
		market := market
		err := s.pool.submit(Task{MarketID: market.ID, Execute: func() { s.processMarket(ctx, market) }})
		if err != nil {
			s.log.WithOperation("submit").Warn(fmt.Sprintf("dropped tick for market %s: %v", market.ID, err))
		}
	}
}

// processMarket runs one full OBSERVE -> ... -> OBSERVE cycle for a single
// market: ingest and apply every newly classified signal in timestamp
// order, monitor any open paper position for an invalidation exit, and
// evaluate a trade decision against the resulting belief.
func (s *Scheduler) processMarket(ctx context.Context, market domain.Market) {
	state := s.stateFor(market)

	if state.machine.Current() == statemachine.StateHalt {
		return
	}

	items, err := s.signals.FetchRecent(ctx, &market.Category)
	if err != nil {
		s.logRecoverable("fetch_signals", err)
		items = nil
	}

	keywords := strings.Fields(market.Question)
	var newSignals []domain.Signal
	for _, item := range items {
		sig := s.classifier.Classify(item, keywords, state.belief.SignalHistory)
		if sig != nil {
			newSignals = append(newSignals, *sig)
		}
	}
	sort.SliceStable(newSignals, func(i, j int) bool {
		return newSignals[i].Timestamp.Before(newSignals[j].Timestamp)
	})

	if len(newSignals) == 0 {
		s.applyDecay(ctx, market, state)
	} else {
		for i, sig := range newSignals {
			if !s.applySignal(ctx, market, state, sig, i == len(newSignals)-1) {
				return
			}
		}
	}

	s.monitorOpenPosition(ctx, market, state)

	if state.machine.Current() != statemachine.StateEvaluateTrade {
		return
	}
	s.evaluateAndMaybeTrade(ctx, market, state)
}

// applyDecay drives the machine through a signal-free cycle, recomputing
// confidence purely from elapsed time (§8 S3), and leaves it in
// EVALUATE_TRADE so the caller always evaluates against a fresh market
// price even when nothing new was observed.
func (s *Scheduler) applyDecay(ctx context.Context, market domain.Market, state *marketState) {
	ev := state.machine.Transition(statemachine.StateIngestSignal, "no new signals")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return
	}

	now := s.clock.Now()
	state.belief.Confidence = s.beliefEngine.Decay(state.belief, now)
	state.belief.LastUpdated = now

	ev = state.machine.Transition(statemachine.StateUpdateBelief, "confidence decay, no new signal")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return
	}
	ev = state.machine.Transition(statemachine.StateEvaluateTrade, "proceed to trade evaluation")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
	}
}

// applySignal ingests and applies one classified signal. It returns false
// when the market's processing for this tick must stop (halted).
func (s *Scheduler) applySignal(ctx context.Context, market domain.Market, state *marketState, sig domain.Signal, isLast bool) bool {
	ev := state.machine.Transition(statemachine.StateIngestSignal, "ingest signal")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return false
	}
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventSignalIngested, MarketID: market.ID, Question: market.Question,
		Detail: fmt.Sprintf("%s/%s strength=%d", sig.Type, sig.Direction, sig.Strength),
	})

	now := s.clock.Now()
	if sig.ConflictsWithExisting {
		if !s.addUnknownFromConflict(ctx, market, state, sig, now) {
			return false
		}
	} else {
		s.resolveSettledUnknowns(state, now)
	}

	result := s.beliefEngine.Apply(state.belief, sig, now)
	if result.Rejected {
		ev = state.machine.Transition(statemachine.StateObserve, "signal ineligible: speculative-only basis")
		if ev.To == statemachine.StateHalt {
			s.onHalt(ctx, market, ev)
			return false
		}
		if isLast {
			s.applyDecay(ctx, market, state)
		}
		return true
	}
	if result.GI2Violated {
		ev = state.machine.ForceHalt(domain.HaltInvariantViolation, "GI2 violated: confidence rose while unknowns increased")
		s.onHalt(ctx, market, ev)
		return false
	}

	ev = state.machine.Transition(statemachine.StateUpdateBelief, "apply signal to belief range")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return false
	}

	state.belief = result.NewState
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventBeliefUpdated, MarketID: market.ID, Question: market.Question,
		BeliefLow: state.belief.BeliefLow, BeliefHigh: state.belief.BeliefHigh,
		Detail: fmt.Sprintf("confidence=%.2f", state.belief.Confidence),
	})

	if isLast {
		ev = state.machine.Transition(statemachine.StateEvaluateTrade, "proceed to trade evaluation")
	} else {
		ev = state.machine.Transition(statemachine.StateObserve, "batch continues")
	}
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return false
	}
	return true
}

// addUnknownFromConflict registers an Unknown when a signal contradicts the
// market's established direction: a contradicting signal is exactly an
// unresolved question about which side is correct, per C2's unknowns
// ledger. It recomputes confidence over the grown ledger via Decay before
// any other effect of the signal is applied, and enforces GI2 on that
// recomputation independently of the range-update Apply that follows.
// Returns false when GI2 fires and the market has been force-halted.
func (s *Scheduler) addUnknownFromConflict(ctx context.Context, market domain.Market, state *marketState, sig domain.Signal, now time.Time) bool {
	oldConfidence := state.belief.Confidence
	oldUnknownsCount := len(state.belief.Unknowns)

	newUnknowns := s.beliefEngine.AddUnknown(state.belief.Unknowns, domain.Unknown{
		ID:          uuid.NewString(),
		Description: fmt.Sprintf("conflicting %s signal: %s", sig.Type, sig.Description),
		AddedAt:     now,
	})

	withUnknown := state.belief
	withUnknown.Unknowns = newUnknowns
	newConfidence := s.beliefEngine.Decay(withUnknown, now)

	if belief.CheckGI2(oldConfidence, oldUnknownsCount, newConfidence, len(newUnknowns)) {
		ev := state.machine.ForceHalt(domain.HaltInvariantViolation, "GI2 violated: confidence rose while unknowns increased")
		s.onHalt(ctx, market, ev)
		return false
	}

	state.belief.Unknowns = newUnknowns
	state.belief.Confidence = newConfidence
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventUnknownRegistered, MarketID: market.ID, Question: market.Question,
		Detail: fmt.Sprintf("unknowns=%d confidence=%.2f", len(newUnknowns), newConfidence),
	})
	return true
}

// resolveSettledUnknowns marks every still-open Unknown resolved once a
// subsequent signal agrees with the market's established direction again,
// i.e. the open question the conflicting signal raised has been settled by
// newer evidence. The ledger retains resolved entries until eviction.
func (s *Scheduler) resolveSettledUnknowns(state *marketState, now time.Time) {
	updated := state.belief.Unknowns
	for _, u := range state.belief.Unknowns {
		if u.ResolvedAt == nil {
			updated = belief.ResolveUnknown(updated, u.ID, now)
		}
	}
	state.belief.Unknowns = updated
}

// monitorOpenPosition closes an open paper position early when the belief
// that justified it has been invalidated: the relevant bound has moved
// against the held side by at least the invalidation exit's belief-shift
// threshold (§4.4's buildExitPlan, BeliefShiftPct=50).
func (s *Scheduler) monitorOpenPosition(ctx context.Context, market domain.Market, state *marketState) {
	for _, p := range s.paperTracker.Snapshot() {
		if p.MarketID != market.ID || p.Status != domain.PositionOpen {
			continue
		}
		entryWidth := p.BeliefHigh - p.BeliefLow
		if entryWidth <= 0 {
			continue
		}
		threshold := entryWidth * 0.5
		var invalidated bool
		if p.Side == domain.SideYes {
			invalidated = (p.BeliefLow - state.belief.BeliefLow) >= threshold
		} else {
			invalidated = (state.belief.BeliefHigh - p.BeliefHigh) >= threshold
		}
		if invalidated {
			s.closeInvalidatedPosition(ctx, market, p)
		}
	}
}

func (s *Scheduler) closeInvalidatedPosition(ctx context.Context, market domain.Market, p domain.PaperPosition) {
	now := s.clock.Now()
	resolved, err := s.paperTracker.Expire(ctx, p.ID, now)
	if err != nil {
		resolved, err = s.retryPaperOp(ctx, market, err, func() (domain.PaperPosition, error) {
			return s.paperTracker.Expire(ctx, p.ID, now)
		})
		if err != nil {
			s.forceHaltAll(ctx, domain.HaltPersistenceFailure, "persistence failure closing invalidated position "+p.ID)
			return
		}
	}

	if s.safetyLedger != nil {
		_ = s.safetyLedger.DecrementOpenPositions(ctx)
	}
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventPositionResolved, MarketID: market.ID, Question: market.Question,
		Action: "INVALIDATED", Detail: p.ID,
	})
	s.recordCalibration(ctx, resolved, market.Category, true)
}

// evaluateAndMaybeTrade runs C4, the optional live-mode safety gate, and on
// acceptance C5/C6. It always leaves the machine back in OBSERVE (or
// HALT) by the time it returns.
func (s *Scheduler) evaluateAndMaybeTrade(ctx context.Context, market domain.Market, state *marketState) {
	result := s.decisionEngine.Evaluate(state.belief, market, s.cfg.VirtualCapitalUSD)

	if result.Decision == nil {
		ev := state.machine.Transition(statemachine.StateObserve, "no_trade: "+string(result.Reason))
		if ev.To == statemachine.StateHalt {
			s.onHalt(ctx, market, ev)
			return
		}
		s.emit(ctx, ports.AuditEvent{
			Event: ports.EventMarketEvaluated, MarketID: market.ID, Question: market.Question,
			Action: "NO_TRADE", Detail: string(result.Reason), Edge: result.Edge,
			BeliefLow: state.belief.BeliefLow, BeliefHigh: state.belief.BeliefHigh,
		})
		return
	}

	if s.safetyLedger != nil {
		refusal, err := s.safetyLedger.Allow(ctx)
		if err != nil {
			s.log.WithOperation("safety_allow").Warn(err.Error())
		} else if refusal != "" {
			ev := state.machine.Transition(statemachine.StateObserve, "no_trade: safety ledger veto: "+refusal)
			if ev.To == statemachine.StateHalt {
				s.onHalt(ctx, market, ev)
				return
			}
			s.emit(ctx, ports.AuditEvent{
				Event: ports.EventMarketEvaluated, MarketID: market.ID, Question: market.Question,
				Action: "NO_TRADE", Detail: refusal,
			})
			return
		}
	}

	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventTradeOpportunity, MarketID: market.ID, Question: market.Question,
		Action: string(result.Decision.Side), Edge: result.Edge, SizeUSD: sizeFloat(result.Decision.SizeUSD),
		BeliefLow: state.belief.BeliefLow, BeliefHigh: state.belief.BeliefHigh,
	})

	ev := state.machine.Transition(statemachine.StateExecuteTrade, "execute trade decision")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return
	}

	outcome := s.execLayer.Execute(ctx, *result.Decision, market.ID, market.ID)
	if !outcome.OK {
		s.handleExecutionError(ctx, market, state, outcome.Err)
		return
	}

	now := s.clock.Now()
	pos, err := s.paperTracker.Create(ctx, *result.Decision, state.belief, result.Edge, now)
	if err != nil {
		pos, err = s.retryPaperOp(ctx, market, err, func() (domain.PaperPosition, error) {
			return s.paperTracker.Create(ctx, *result.Decision, state.belief, result.Edge, now)
		})
		if err != nil {
			state.machine.ForceHalt(domain.HaltPersistenceFailure, "persistence failure opening position")
			s.onHalt(ctx, market, statemachine.TransitionEvent{To: statemachine.StateHalt, HaltCause: domain.HaltPersistenceFailure, Reason: "persistence failure opening position"})
			return
		}
	}

	if s.safetyLedger != nil {
		_ = s.safetyLedger.IncrementOpenPositions(ctx)
	}
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventTradeExecuted, MarketID: market.ID, Question: market.Question,
		Action: string(result.Decision.Side), SizeUSD: sizeFloat(result.Decision.SizeUSD), Detail: pos.ID,
	})

	ev = state.machine.Transition(statemachine.StateMonitor, "position opened")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
		return
	}
	ev = state.machine.Transition(statemachine.StateObserve, "handed off to resolution pass")
	if ev.To == statemachine.StateHalt {
		s.onHalt(ctx, market, ev)
	}
}

// handleExecutionError applies the §7 propagation policy for C5 failures:
// duplicate positions, order rejections, and recoverable connector errors
// return to OBSERVE with no halt; anything else is an invariant violation.
func (s *Scheduler) handleExecutionError(ctx context.Context, market domain.Market, state *marketState, err *domain.Error) {
	kind := domain.ErrOrderRejected
	detail := "execution failed"
	if err != nil {
		kind = err.Kind
		detail = err.Error()
	}
	s.emit(ctx, ports.AuditEvent{Event: ports.EventError, MarketID: market.ID, Question: market.Question, Detail: detail})

	switch kind {
	case domain.ErrDuplicatePosition, domain.ErrOrderRejected, domain.ErrConnectorUnavailable, domain.ErrConnectorTimeout:
		ev := state.machine.Transition(statemachine.StateMonitor, "execution rejected: "+string(kind))
		if ev.To == statemachine.StateHalt {
			s.onHalt(ctx, market, ev)
			return
		}
		ev = state.machine.Transition(statemachine.StateObserve, "return to observe after rejected execution")
		if ev.To == statemachine.StateHalt {
			s.onHalt(ctx, market, ev)
		}
	default:
		ev := state.machine.ForceHalt(domain.HaltInvariantViolation, "unexpected execution error: "+detail)
		s.onHalt(ctx, market, ev)
	}
}

// retryPaperOp implements the §7 policy for PersistenceFailure: retry once
// with a short backoff, then surface the error so the caller forceHalts.
// Any other error kind is returned at once, without a retry, and the caller
// forceHalts on it as well.
func (s *Scheduler) retryPaperOp(ctx context.Context, market domain.Market, firstErr error, op func() (domain.PaperPosition, error)) (domain.PaperPosition, error) {
	kind, _ := domain.KindOf(firstErr)
	if kind != domain.ErrPersistenceFailure {
		return domain.PaperPosition{}, firstErr
	}
	time.Sleep(50 * time.Millisecond)
	return op()
}

// resolutionCheckOnce scans every open paper position and, per market,
// submits a resolution task to the pool so it serializes against any
// in-flight tick for the same market.
func (s *Scheduler) resolutionCheckOnce(ctx context.Context) {
	for _, p := range s.paperTracker.Snapshot() {
		if p.Status != domain.PositionOpen {
			continue
		}
		p := p
		err := s.pool.submit(Task{MarketID: p.MarketID, Execute: func() { s.resolveOnePosition(ctx, p) }})
		if err != nil {
			s.log.WithOperation("resolution_submit").Warn(fmt.Sprintf("dropped resolution check for %s: %v", p.MarketID, err))
		}
	}
}

func (s *Scheduler) resolveOnePosition(ctx context.Context, p domain.PaperPosition) {
	market, err := s.markets.GetMarket(ctx, p.MarketID)
	if err != nil {
		s.logRecoverable("get_market", err)
		return
	}
	if market == nil {
		s.expirePosition(ctx, p, domain.Market{ID: p.MarketID})
		return
	}
	if market.ResolutionOutcome == nil {
		return
	}

	now := s.clock.Now()
	resolved, err := s.paperTracker.Resolve(ctx, p.ID, *market.ResolutionOutcome, now)
	if err != nil {
		resolved, err = s.retryPaperOp(ctx, *market, err, func() (domain.PaperPosition, error) {
			return s.paperTracker.Resolve(ctx, p.ID, *market.ResolutionOutcome, now)
		})
		if err != nil {
			s.forceHaltAll(ctx, domain.HaltPersistenceFailure, "persistence failure resolving position "+p.ID)
			return
		}
	}

	if s.safetyLedger != nil {
		_ = s.safetyLedger.DecrementOpenPositions(ctx)
		if resolved.PnL != nil {
			if resolved.PnL.IsNegative() {
				_ = s.safetyLedger.RecordLoss(ctx, resolved.PnL.Abs())
				_ = s.safetyLedger.RaiseThrottle(ctx)
			} else {
				_ = s.safetyLedger.RecordWin(ctx)
				_ = s.safetyLedger.ResetThrottle(ctx)
			}
		}
	}

	pnl := 0.0
	if resolved.PnL != nil {
		pnl, _ = resolved.PnL.Float64()
	}
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventPositionResolved, MarketID: market.ID, Question: market.Question,
		Action: string(resolved.Status), PnL: pnl, Detail: p.ID,
	})
	s.recordCalibration(ctx, resolved, market.Category, false)
}

func (s *Scheduler) expirePosition(ctx context.Context, p domain.PaperPosition, market domain.Market) {
	now := s.clock.Now()
	resolved, err := s.paperTracker.Expire(ctx, p.ID, now)
	if err != nil {
		resolved, err = s.retryPaperOp(ctx, market, err, func() (domain.PaperPosition, error) {
			return s.paperTracker.Expire(ctx, p.ID, now)
		})
		if err != nil {
			s.forceHaltAll(ctx, domain.HaltPersistenceFailure, "persistence failure expiring position "+p.ID)
			return
		}
	}
	if s.safetyLedger != nil {
		_ = s.safetyLedger.DecrementOpenPositions(ctx)
	}
	s.emit(ctx, ports.AuditEvent{Event: ports.EventPositionResolved, MarketID: p.MarketID, Action: "EXPIRED", Detail: p.ID})
	s.recordCalibration(ctx, resolved, s.categoryFor(p.MarketID), false)
}

// categoryFor recovers the last-known category for a market that has
// since disappeared from the connector cache.
func (s *Scheduler) categoryFor(marketID string) domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.marketStates[marketID]; ok {
		return st.category
	}
	return domain.CategoryOther
}

// recordCalibration converts a resolved position to a calibration record,
// feeds it to C7, and applies the §4.4 auto-adjust / §4.7 halt policy.
// Calibration is global, not per-market, so a halt condition here forces
// every market's machine to HALT.
func (s *Scheduler) recordCalibration(ctx context.Context, p domain.PaperPosition, category domain.Category, invalidated bool) {
	rec := paper.ToCalibrationRecord(p, category, p.ConfidenceAtEntry, p.UnknownsAtEntry, invalidated)
	cond, halted, err := s.calibMonitor.Record(ctx, rec)
	if err != nil {
		s.forceHaltAll(ctx, domain.HaltPersistenceFailure, "calibration store failure: "+err.Error())
		return
	}

	s.emit(ctx, ports.AuditEvent{Event: ports.EventCalibrationReport, MarketID: p.MarketID, Detail: string(cond)})
	s.eventBus.Publish(bus.TopicCalibration, rec)

	if halted {
		s.forceHaltAll(ctx, domain.HaltCalibrationFailure, "calibration halt condition: "+string(cond))
		return
	}

	metrics := s.calibMonitor.Snapshot()
	s.decisionEngine.ApplyAutoAdjust(category, metrics.RangeCoverage, s.cfg.RangeCoverageTarget)
}

// cleanupOnce evicts paper positions past the retention window (§4.6) and
// then trims tracked per-market state down to MaxMarkets.
func (s *Scheduler) cleanupOnce(ctx context.Context) {
	n, err := s.paperTracker.EvictOld(ctx, s.clock.Now(), s.cfg.RetentionWindow)
	if err != nil {
		s.logRecoverable("evict_old_positions", err)
		return
	}
	if n > 0 {
		s.log.WithOperation("cleanup").Info(fmt.Sprintf("evicted %d stale paper positions", n))
	}
	s.evictLeastLiquidMarketState()
}

// evictLeastLiquidMarketState drops tracked per-market state for markets
// beyond MaxMarkets, skipping halted markets. marketState carries no
// liquidity figure, so liquidity plays no part in which markets are
// dropped. Belief history for an evicted market is lost; its paper
// positions are untouched (tracked independently in the paper store).
func (s *Scheduler) evictLeastLiquidMarketState() {
	if s.cfg.MaxMarkets <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.marketStates) <= s.cfg.MaxMarkets {
		return
	}
	// The markets dropped are whichever come first in Go's map iteration
	// order, which is unspecified. pollOnce re-creates state lazily for any
	// dropped market it still lists.
	excess := len(s.marketStates) - s.cfg.MaxMarkets
	for id, st := range s.marketStates {
		if excess <= 0 {
			break
		}
		if st.machine.Current() == statemachine.StateHalt {
			continue // leave halted markets for operator inspection
		}
		delete(s.marketStates, id)
		excess--
	}
}

// handleMemoryPressure is the ShrinkCallback registered with the memory
// monitor (§5). Aggressive pressure tightens paper-position retention;
// emergency pressure additionally evicts excess tracked-market state.
func (s *Scheduler) handleMemoryPressure(level memory.Level) {
	ctx := context.Background()
	switch level {
	case memory.LevelAggressive:
		if _, err := s.paperTracker.EvictOld(ctx, s.clock.Now(), s.cfg.RetentionWindow/4); err != nil {
			s.logRecoverable("memory_pressure_evict", err)
		}
	case memory.LevelEmergency:
		if _, err := s.paperTracker.EvictOld(ctx, s.clock.Now(), s.cfg.RetentionWindow/10); err != nil {
			s.logRecoverable("memory_pressure_evict", err)
		}
		s.evictLeastLiquidMarketState()
	}
}

// forceHaltAll forces every tracked market's machine into HALT, e.g. on a
// calibration halt condition or a global persistence failure.
func (s *Scheduler) forceHaltAll(ctx context.Context, cause domain.HaltReason, reason string) {
	s.mu.RLock()
	states := make([]*marketState, 0, len(s.marketStates))
	for _, st := range s.marketStates {
		states = append(states, st)
	}
	s.mu.RUnlock()

	for _, st := range states {
		st.machine.ForceHalt(cause, reason)
	}

	s.log.WithOperation("force_halt").Error(reason)
	s.emit(ctx, ports.AuditEvent{Event: ports.EventSystemHalt, Action: string(cause), Detail: reason})
	s.eventBus.Publish(bus.TopicHalt, reason)
}

// onHalt is invoked whenever a single market's machine lands in HALT
// (illegally, or by ForceHalt) during ordinary tick processing.
func (s *Scheduler) onHalt(ctx context.Context, market domain.Market, ev statemachine.TransitionEvent) {
	s.log.WithOperation("halt").Error(fmt.Sprintf("market %s halted: %s (cause=%s)", market.ID, ev.Reason, ev.HaltCause))
	s.emit(ctx, ports.AuditEvent{
		Event: ports.EventSystemHalt, MarketID: market.ID, Question: market.Question,
		Action: string(ev.HaltCause), Detail: ev.Reason,
	})
	s.eventBus.Publish(bus.TopicHalt, ev)
}

// logRecoverable applies the §7 policy for ConnectorUnavailable,
// ConnectorTimeout, and ParseRejected: logged locally, never surfaced.
func (s *Scheduler) logRecoverable(op string, err error) {
	kind, _ := domain.KindOf(err)
	s.log.WithOperation(op).Warn(fmt.Sprintf("recovered: %v (kind=%s)", err, kind))
}

// emit stamps and forwards an audit event to both sinks; AuditSink
// failures are logged, NotificationSink is best-effort by contract.
func (s *Scheduler) emit(ctx context.Context, ev ports.AuditEvent) {
	ev.Timestamp = s.clock.Now()
	if s.auditSink != nil {
		if err := s.auditSink.Emit(ctx, ev); err != nil {
			s.log.WithOperation("audit_emit").Warn(err.Error())
		}
	}
	if s.notifySink != nil {
		_ = s.notifySink.Emit(ctx, ev)
	}
}

func sizeFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
