package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/domain"
)

type fakeConnector struct {
	placeErr  error
	orderID   string
	status    domain.OrderStatus
	filled    float64
	statusErr error
	cancelOK  bool
	cancelErr error
}

func (f *fakeConnector) PlaceLimit(ctx context.Context, tokenID string, side domain.Side, price, sizeUSD float64) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return f.orderID, nil
}

func (f *fakeConnector) Status(ctx context.Context, orderID string) (domain.OrderStatus, float64, error) {
	return f.status, f.filled, f.statusErr
}

func (f *fakeConnector) Cancel(ctx context.Context, orderID string) (bool, error) {
	return f.cancelOK, f.cancelErr
}

type fakePositions struct {
	hasOpen bool
	err     error
}

func (f *fakePositions) HasOpenPosition(ctx context.Context, marketID string) (bool, error) {
	return f.hasOpen, f.err
}

func decisionFor(side domain.Side) domain.TradeDecision {
	return domain.TradeDecision{MarketID: "m1", Side: side, EntryPrice: 40, SizeUSD: decimal.NewFromInt(10)}
}

func TestExecuteRejectsSideNone(t *testing.T) {
	l := New(&fakeConnector{}, &fakePositions{})
	out := l.Execute(context.Background(), decisionFor(domain.SideNone), "m1", "tok")
	if out.OK {
		t.Fatal("Execute() OK = true, want false for SideNone")
	}
	if out.Err.Kind != domain.ErrOrderRejected {
		t.Errorf("Err.Kind = %s, want OrderRejected", out.Err.Kind)
	}
}

func TestExecuteRefusesDuplicatePosition(t *testing.T) {
	l := New(&fakeConnector{orderID: "o1"}, &fakePositions{hasOpen: true})
	out := l.Execute(context.Background(), decisionFor(domain.SideYes), "m1", "tok")
	if out.OK {
		t.Fatal("Execute() OK = true, want false for a duplicate position")
	}
	if out.Err.Kind != domain.ErrDuplicatePosition {
		t.Errorf("Err.Kind = %s, want DuplicatePosition", out.Err.Kind)
	}
}

func TestExecutePlacesOneLimitOrder(t *testing.T) {
	l := New(&fakeConnector{orderID: "o1"}, &fakePositions{hasOpen: false})
	out := l.Execute(context.Background(), decisionFor(domain.SideYes), "m1", "tok")

	if !out.OK {
		t.Fatalf("Execute() OK = false, err = %v, want success", out.Err)
	}
	if out.Order.ID != "o1" || out.Order.Status != domain.OrderPending {
		t.Errorf("Order = %+v, want ID=o1 Status=pending", out.Order)
	}
}

func TestExecutePropagatesConnectorError(t *testing.T) {
	l := New(&fakeConnector{placeErr: errors.New("connector down")}, &fakePositions{})
	out := l.Execute(context.Background(), decisionFor(domain.SideYes), "m1", "tok")

	if out.OK {
		t.Fatal("Execute() OK = true, want false on connector error")
	}
	if out.Err.Kind != domain.ErrOrderRejected {
		t.Errorf("Err.Kind = %s, want OrderRejected", out.Err.Kind)
	}
}

func TestCancelRefusesAlreadyFilledOrder(t *testing.T) {
	conn := &fakeConnector{orderID: "o1"}
	l := New(conn, &fakePositions{})
	l.Execute(context.Background(), decisionFor(domain.SideYes), "m1", "tok")

	conn.status, conn.filled = domain.OrderFilled, 10
	if _, err := l.RefreshStatus(context.Background(), "o1"); err != nil {
		t.Fatalf("RefreshStatus() error = %v", err)
	}

	ok, err := l.Cancel(context.Background(), "o1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if ok {
		t.Error("Cancel() = true, want false for an already-filled order")
	}
}

func TestCancelDelegatesToConnectorWhenNotFilled(t *testing.T) {
	conn := &fakeConnector{orderID: "o1", cancelOK: true}
	l := New(conn, &fakePositions{})
	l.Execute(context.Background(), decisionFor(domain.SideYes), "m1", "tok")

	ok, err := l.Cancel(context.Background(), "o1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !ok {
		t.Error("Cancel() = false, want true when the connector confirms cancellation")
	}
}

func TestSimulatedConnectorFillsImmediately(t *testing.T) {
	c := NewSimulatedConnector()
	orderID, err := c.PlaceLimit(context.Background(), "tok", domain.SideYes, 40, 10)
	if err != nil {
		t.Fatalf("PlaceLimit() error = %v", err)
	}

	status, filled, err := c.Status(context.Background(), orderID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != domain.OrderFilled {
		t.Errorf("Status = %s, want filled", status)
	}
	if filled != 10 {
		t.Errorf("filled = %v, want 10", filled)
	}
}

func TestSimulatedConnectorCancelIsAlwaysNoOp(t *testing.T) {
	c := NewSimulatedConnector()
	orderID, _ := c.PlaceLimit(context.Background(), "tok", domain.SideYes, 40, 10)

	ok, err := c.Cancel(context.Background(), orderID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if ok {
		t.Error("Cancel() = true, want false since the order already filled at placement")
	}
}

func TestSimulatedConnectorStatusErrorsOnUnknownOrder(t *testing.T) {
	c := NewSimulatedConnector()
	if _, _, err := c.Status(context.Background(), "nope"); err == nil {
		t.Error("Status() error = nil, want an error for an unknown order id")
	}
}
