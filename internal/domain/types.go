// Package domain holds the data model shared by every decision-pipeline
// component: markets, signals, beliefs, trade decisions, and the persisted
// paper-trading and calibration records.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the closed set of market subjects carrying their own minimum
// edge requirement in the trade decision engine.
type Category string

const (
	CategoryPolitics      Category = "politics"
	CategoryCrypto        Category = "crypto"
	CategorySports        Category = "sports"
	CategoryEconomics     Category = "economics"
	CategoryEntertainment Category = "entertainment"
	CategoryWeather       Category = "weather"
	CategoryTechnology    Category = "technology"
	CategoryWorld         Category = "world"
	CategoryOther         Category = "other"
)

// Outcome is the resolved side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Market is the external, connector-owned identity of a prediction market.
// The core only ever holds a read-only snapshot.
type Market struct {
	ID                      string
	Question                string
	Category                Category
	CurrentPrice            float64 // in [0,100]
	Liquidity               float64
	ClosesAt                *time.Time
	ResolvedAt              *time.Time
	ResolutionOutcome       *Outcome
	ResolutionAuthorityClear bool
	OutcomeObjective        bool
}

// SignalType is the closed set of signal classes, ordered highest-to-lowest
// credibility for C1's classification lexicon.
type SignalType string

const (
	SignalAuthoritative SignalType = "authoritative"
	SignalProcedural    SignalType = "procedural"
	SignalQuantitative  SignalType = "quantitative"
	SignalInterpretive  SignalType = "interpretive"
	SignalSpeculative   SignalType = "speculative"
)

// Direction is the signed lean of a classified signal.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Signal is a classified observation produced by C1 and consumed once by C2.
type Signal struct {
	Type                SignalType
	Direction           Direction
	Strength            int // 1..5
	ConflictsWithExisting bool
	Timestamp           time.Time
	Source              string
	Description         string
}

// Unknown is an unresolved question whose presence penalizes confidence.
type Unknown struct {
	ID          string
	Description string
	AddedAt     time.Time
	ResolvedAt  *time.Time
}

// BeliefState is the per-market calibrated probability range maintained by
// C2. It is never a point estimate (GI1).
type BeliefState struct {
	MarketID      string
	BeliefLow     float64
	BeliefHigh    float64
	Confidence    float64
	Unknowns      []Unknown
	SignalHistory []Signal
	LastUpdated   time.Time
	LastSignal    *Signal
}

// Width returns high - low.
func (b BeliefState) Width() float64 {
	return b.BeliefHigh - b.BeliefLow
}

// Side is the candidate side of a trade, or NONE when no trade is eligible.
type Side string

const (
	SideYes  Side = "YES"
	SideNo   Side = "NO"
	SideNone Side = "NONE"
)

// ExitConditionKind is the closed set of exit-condition variants.
type ExitConditionKind string

const (
	ExitInvalidation ExitConditionKind = "invalidation"
	ExitProfit       ExitConditionKind = "profit"
	ExitEmergency    ExitConditionKind = "emergency"
)

// ExitCondition is a tagged variant describing one reason a position should
// be closed. Exactly one numeric field is meaningful per Kind.
type ExitCondition struct {
	Kind             ExitConditionKind
	BeliefShiftPct   float64 // invalidation
	PriceTarget      float64 // profit
	LiquidityFloor   float64 // emergency
}

// TradeDecision is the fully-formed output of C4 when every gate passes.
type TradeDecision struct {
	MarketID       string
	Side           Side
	SizeUSD        decimal.Decimal
	EntryPrice     float64
	ExitConditions []ExitCondition
	Rationale      string
	RationaleHash  string
	Timestamp      time.Time
}

// PositionStatus is the lifecycle state of a paper position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionWin     PositionStatus = "WIN"
	PositionLoss    PositionStatus = "LOSS"
	PositionExpired PositionStatus = "EXPIRED"
)

// PaperPosition is a virtual trade tracked for calibration without external
// order submission.
type PaperPosition struct {
	ID            string
	MarketID      string
	Side          Side
	EntryPrice    float64
	BeliefLow     float64
	BeliefHigh    float64
	EdgeAtEntry   float64
	ConfidenceAtEntry float64
	UnknownsAtEntry   int
	SizeUSD       decimal.Decimal
	EntryTS       time.Time
	Status        PositionStatus
	ExitPrice     *float64
	ResolvedTS    *time.Time
	PnL           *decimal.Decimal
	ActualOutcome *Outcome
}

// CalibrationRecord is emitted by C6 for every resolved position and
// consumed by C7.
type CalibrationRecord struct {
	MarketID          string
	Category          Category
	BeliefAtEntryLow  float64
	BeliefAtEntryHigh float64
	ConfidenceAtEntry float64
	UnknownsCount     int
	ActualOutcome     Outcome
	ResolvedTS        time.Time
	EdgeAtEntry       float64
	InvalidatedExit   bool
}

// NoTradeReason is the closed set of trade-eligibility rejection reasons.
type NoTradeReason string

const (
	ReasonAuthorityUnclear  NoTradeReason = "authority_unclear"
	ReasonOutcomeSubjective NoTradeReason = "outcome_subjective"
	ReasonIlliquid          NoTradeReason = "illiquid"
	ReasonBeliefTooWide     NoTradeReason = "belief_too_wide"
	ReasonConfidenceTooLow  NoTradeReason = "confidence_too_low"
	ReasonPriceInsideBelief NoTradeReason = "price_inside_belief"
	ReasonInsufficientEdge  NoTradeReason = "insufficient_edge"
)

// OrderStatus is the closed set of execution lifecycle states for a single
// limit order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is the single limit order C5 ever places for a TradeDecision.
type Order struct {
	ID         string
	MarketID   string
	TokenID    string
	Side       Side
	Price      float64
	SizeUSD    decimal.Decimal
	FilledSize decimal.Decimal
	Status     OrderStatus
}

// HaltReason is the closed set of causes that can force the state machine
// into its terminal HALT state.
type HaltReason string

const (
	HaltIllegalTransition   HaltReason = "illegal_transition"
	HaltInvariantViolation  HaltReason = "invariant_violation"
	HaltCalibrationFailure  HaltReason = "calibration_failure"
	HaltPersistenceFailure  HaltReason = "persistence_failure"
	HaltOperator            HaltReason = "operator_requested"
)
