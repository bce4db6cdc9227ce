// Package execution implements C5: a thin, belief-bound execution layer.
// It places exactly one limit order per TradeDecision, refuses duplicate
// positions, and can never mutate BeliefState. Adapted from the order
// lifecycle and CreateOrder/CancelOrder shape of the teacher's CLOB client,
// restricted to limit orders only — no market-order path exists here.
package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/ports"
)

// OpenPositionChecker reports whether a position already exists for a
// market, enforcing the "no averaging down" rule.
type OpenPositionChecker interface {
	HasOpenPosition(ctx context.Context, marketID string) (bool, error)
}

// Layer is the execution component.
type Layer struct {
	connector ports.OrderConnector
	positions OpenPositionChecker

	mu     sync.Mutex
	orders map[string]*domain.Order // orderID -> order
}

// New constructs a Layer.
func New(connector ports.OrderConnector, positions OpenPositionChecker) *Layer {
	return &Layer{
		connector: connector,
		positions: positions,
		orders:    make(map[string]*domain.Order),
	}
}

// Outcome is returned by Execute.
type Outcome struct {
	OK    bool
	Order *domain.Order
	Err   *domain.Error
}

// Execute implements the §4.5 contract: execute(decision, marketID, tokenID?)
// -> {ok, order | error}.
func (l *Layer) Execute(ctx context.Context, decision domain.TradeDecision, marketID, tokenID string) Outcome {
	if decision.Side == domain.SideNone {
		return Outcome{OK: false, Err: domain.NewError(domain.ErrOrderRejected, "execution.Execute", fmt.Errorf("side is NONE"))}
	}

	if l.positions != nil {
		hasOpen, err := l.positions.HasOpenPosition(ctx, marketID)
		if err != nil {
			return Outcome{OK: false, Err: domain.NewError(domain.ErrConnectorUnavailable, "execution.Execute", err)}
		}
		if hasOpen {
			return Outcome{OK: false, Err: domain.NewError(domain.ErrDuplicatePosition, "execution.Execute", fmt.Errorf("position already open for market %s", marketID))}
		}
	}

	sizeUSD, _ := decision.SizeUSD.Float64()
	orderID, err := l.connector.PlaceLimit(ctx, tokenID, decision.Side, decision.EntryPrice, sizeUSD)
	if err != nil {
		return Outcome{OK: false, Err: domain.NewError(domain.ErrOrderRejected, "execution.Execute", err)}
	}

	order := &domain.Order{
		ID:       orderID,
		MarketID: marketID,
		TokenID:  tokenID,
		Side:     decision.Side,
		Price:    decision.EntryPrice,
		SizeUSD:  decision.SizeUSD,
		Status:   domain.OrderPending,
	}

	l.mu.Lock()
	l.orders[orderID] = order
	l.mu.Unlock()

	return Outcome{OK: true, Order: order}
}

// RefreshStatus polls the connector and updates the locally tracked order.
func (l *Layer) RefreshStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	status, filled, err := l.connector.Status(ctx, orderID)
	if err != nil {
		return nil, domain.NewError(domain.ErrConnectorUnavailable, "execution.RefreshStatus", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	order.Status = status
	order.FilledSize = decimal.NewFromFloat(filled)
	return order, nil
}

// Cancel refuses when the order is already filled, matching
// cancelOrder(id) semantics in §4.5.
func (l *Layer) Cancel(ctx context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	order, ok := l.orders[orderID]
	l.mu.Unlock()
	if ok && order.Status == domain.OrderFilled {
		return false, nil
	}

	ok2, err := l.connector.Cancel(ctx, orderID)
	if err != nil {
		return false, domain.NewError(domain.ErrOrderRejected, "execution.Cancel", err)
	}
	if ok2 {
		l.mu.Lock()
		if order != nil {
			order.Status = domain.OrderCancelled
		}
		l.mu.Unlock()
	}
	return ok2, nil
}

// NewOrderID is a helper for connector adapters needing a locally-unique
// fallback identifier.
func NewOrderID() string {
	return uuid.NewString()
}

// SimulatedConnector implements ports.OrderConnector by filling every limit
// order immediately at its requested price and submitting nothing
// externally. It is what Config.Trading.Mode == "paper" wires the
// execution Layer against, matching the GLOSSARY's "virtual trade tracked
// for calibration without external order submission."
type SimulatedConnector struct {
	mu     sync.Mutex
	orders map[string]float64 // orderID -> filled size USD
}

// NewSimulatedConnector constructs a SimulatedConnector.
func NewSimulatedConnector() *SimulatedConnector {
	return &SimulatedConnector{orders: make(map[string]float64)}
}

func (c *SimulatedConnector) PlaceLimit(ctx context.Context, tokenID string, side domain.Side, price float64, sizeUSD float64) (string, error) {
	id := NewOrderID()
	c.mu.Lock()
	c.orders[id] = sizeUSD
	c.mu.Unlock()
	return id, nil
}

func (c *SimulatedConnector) Status(ctx context.Context, orderID string) (domain.OrderStatus, float64, error) {
	c.mu.Lock()
	filled, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return "", 0, fmt.Errorf("unknown simulated order %s", orderID)
	}
	return domain.OrderFilled, filled, nil
}

func (c *SimulatedConnector) Cancel(ctx context.Context, orderID string) (bool, error) {
	c.mu.Lock()
	_, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown simulated order %s", orderID)
	}
	return false, nil // already filled at placement, matching a real GTC taker fill
}
