// Package decision implements C4: the ordered eight-gate trade-eligibility
// pipeline. Every rejection returns NO_TRADE(reason) from the closed set in
// domain.NoTradeReason; nothing here returns a Go error for an ordinary
// rejection, per §4.4's "no exceptions cross the component boundary".
package decision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/domain"
)

// MinEdgeByCategory is the fixed table of §4.4, in percentage points.
var MinEdgeByCategory = map[domain.Category]float64{
	domain.CategoryPolitics:      12,
	domain.CategoryCrypto:        15,
	domain.CategorySports:        10,
	domain.CategoryEconomics:     12,
	domain.CategoryEntertainment: 18,
	domain.CategoryWeather:       8,
	domain.CategoryTechnology:    15,
	domain.CategoryWorld:         20,
	domain.CategoryOther:         25,
}

// AutoAdjustCeiling bounds the auto-adjust rule of §4.4: MIN_EDGE may rise
// at most this many percentage points over the category baseline.
const AutoAdjustCeiling = 5.0

// Config carries the global thresholds and per-category liquidity floor.
type Config struct {
	MinConfidence float64
	MaxWidth      float64
	MinLiquidity  map[domain.Category]float64
	DefaultMinLiquidity float64

	// MinEdgeByCategory overrides the package-level fixed table when set,
	// letting a deployment-level config carry the same §4.4 values through
	// to the engine instead of duplicating them. Nil falls back to
	// MinEdgeByCategory.
	MinEdgeByCategory map[domain.Category]float64
}

// DefaultConfig returns the global confidence and width thresholds named in
// §4.4/§6 and the fixed edge table. DefaultMinLiquidity is a package-level
// fallback of 1000, lower than internal/config's default; cmd/core replaces
// it with cfg.Trading.MinLiquidity.
func DefaultConfig() Config {
	return Config{
		MinConfidence:       65,
		MaxWidth:            25,
		DefaultMinLiquidity: 1000,
		MinEdgeByCategory:   MinEdgeByCategory,
	}
}

func (c Config) minLiquidityFor(category domain.Category) float64 {
	if v, ok := c.MinLiquidity[category]; ok {
		return v
	}
	return c.DefaultMinLiquidity
}

// SizingPolicy is the external, pure sizing function named in §4.4: it is
// never allowed to turn NONE into a trade, and the engine never calls it
// unless every other gate has already passed.
type SizingPolicy func(edge, confidence, capitalUSD float64) float64

// Result is either a trade (Side != NONE) or a typed rejection. Edge is
// populated whenever a side was chosen, even if a later gate rejected the
// trade, so callers can log the near-miss edge without recomputing gate 7.
type Result struct {
	Decision *domain.TradeDecision
	Reason   domain.NoTradeReason // meaningful only when Decision == nil
	Edge     float64
}

// Engine runs the ordered gate pipeline.
type Engine struct {
	cfg       Config
	sizing    SizingPolicy
	adjustments map[domain.Category]float64 // auto-adjust state, §4.4
}

// New constructs an Engine.
func New(cfg Config, sizing SizingPolicy) *Engine {
	return &Engine{
		cfg:         cfg,
		sizing:      sizing,
		adjustments: make(map[domain.Category]float64),
	}
}

// Evaluate runs the eight gates of §4.4 in order, fail-fast.
func (e *Engine) Evaluate(belief domain.BeliefState, market domain.Market, capitalUSD float64) Result {
	// Gate 1
	if !market.ResolutionAuthorityClear {
		return Result{Reason: domain.ReasonAuthorityUnclear}
	}
	// Gate 2
	if !market.OutcomeObjective {
		return Result{Reason: domain.ReasonOutcomeSubjective}
	}
	// Gate 3
	if market.Liquidity < e.cfg.minLiquidityFor(market.Category) {
		return Result{Reason: domain.ReasonIlliquid}
	}
	// Gate 4
	width := belief.BeliefHigh - belief.BeliefLow
	if width > e.cfg.MaxWidth {
		return Result{Reason: domain.ReasonBeliefTooWide}
	}
	// Gate 5
	if belief.Confidence < e.cfg.MinConfidence {
		return Result{Reason: domain.ReasonConfidenceTooLow}
	}
	// Gate 6: price outside range. Equality is inside.
	var side domain.Side
	switch {
	case market.CurrentPrice < belief.BeliefLow:
		side = domain.SideYes
	case market.CurrentPrice > belief.BeliefHigh:
		side = domain.SideNo
	default:
		return Result{Reason: domain.ReasonPriceInsideBelief}
	}
	// Gate 7: edge.
	var edge float64
	if side == domain.SideYes {
		edge = belief.BeliefLow - market.CurrentPrice
	} else {
		edge = market.CurrentPrice - belief.BeliefHigh
	}
	minEdge := e.effectiveMinEdge(market.Category)
	if edge < minEdge {
		return Result{Reason: domain.ReasonInsufficientEdge, Edge: edge}
	}
	// Gate 8: exit plan (always generable given the non-empty rule set).
	exits := e.buildExitPlan(belief, side, market)

	sizeUSD := 0.0
	if e.sizing != nil {
		sizeUSD = e.sizing(edge, belief.Confidence, capitalUSD)
	}
	if sizeUSD <= 0 {
		// The sizing policy may itself veto the trade; it is never allowed
		// to turn NONE into a trade, but it may turn a trade into NONE.
		return Result{Reason: domain.ReasonInsufficientEdge, Edge: edge}
	}

	entryPrice := market.CurrentPrice
	decision := &domain.TradeDecision{
		MarketID:       market.ID,
		Side:           side,
		SizeUSD:        decimal.NewFromFloat(sizeUSD),
		EntryPrice:     entryPrice,
		ExitConditions: exits,
		Rationale:      rationale(side, edge, belief),
	}
	return Result{Decision: decision, Edge: edge}
}

func rationale(side domain.Side, edge float64, belief domain.BeliefState) string {
	return fmt.Sprintf("side=%s edge=%.2f belief=[%.2f,%.2f] confidence=%.2f", side, edge, belief.BeliefLow, belief.BeliefHigh, belief.Confidence)
}

// buildExitPlan constructs at least one of each exit-condition type, per
// §4.4's exit plan rules.
func (e *Engine) buildExitPlan(belief domain.BeliefState, side domain.Side, market domain.Market) []domain.ExitCondition {
	invalidation := domain.ExitCondition{Kind: domain.ExitInvalidation, BeliefShiftPct: 50}

	mid := (belief.BeliefLow + belief.BeliefHigh) / 2
	var profitTarget float64
	if side == domain.SideYes {
		profitTarget = mid + (belief.BeliefHigh-mid)/2
	} else {
		profitTarget = mid - (mid-belief.BeliefLow)/2
	}
	profit := domain.ExitCondition{Kind: domain.ExitProfit, PriceTarget: profitTarget}

	emergency := domain.ExitCondition{Kind: domain.ExitEmergency, LiquidityFloor: e.cfg.minLiquidityFor(market.Category) / 2}

	return []domain.ExitCondition{invalidation, profit, emergency}
}

// effectiveMinEdge applies the category baseline plus any accumulated
// auto-adjust.
func (e *Engine) effectiveMinEdge(category domain.Category) float64 {
	table := e.cfg.MinEdgeByCategory
	if table == nil {
		table = MinEdgeByCategory
	}
	base, ok := table[category]
	if !ok {
		base = table[domain.CategoryOther]
	}
	return base + e.adjustments[category]
}

// ApplyAutoAdjust implements the §4.4 auto-adjust rule: if the calibration
// monitor reports coverage below target-0.05, raise the category's MIN_EDGE
// by +1pp, up to AutoAdjustCeiling over baseline. This is the only in-band
// parameter change permitted by the spec.
func (e *Engine) ApplyAutoAdjust(category domain.Category, rangeCoverage, target float64) {
	if rangeCoverage >= target-0.05 {
		return
	}
	current := e.adjustments[category]
	if current >= AutoAdjustCeiling {
		return
	}
	e.adjustments[category] = current + 1
}

// ResetAutoAdjust clears accumulated auto-adjust state for every category.
// Invoked only by the operator-gated reset() control action.
func (e *Engine) ResetAutoAdjust() {
	e.adjustments = make(map[domain.Category]float64)
}
