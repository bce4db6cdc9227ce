package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// A unique in-memory database per test avoids cross-test leakage while
	// still exercising the real driver and schema migration.
	store, err := NewSQLiteStore("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func samplePosition() domain.PaperPosition {
	return domain.PaperPosition{
		ID: "p1", MarketID: "m1", Side: domain.SideYes, EntryPrice: 40,
		BeliefLow: 45, BeliefHigh: 60, EdgeAtEntry: 5,
		SizeUSD: decimal.NewFromInt(10), EntryTS: time.Now().Truncate(time.Second),
		Status: domain.PositionOpen,
	}
}

func TestUpsertThenLoadRoundTripsAnOpenPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := samplePosition()

	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len(Load()) = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.ID != p.ID || got.MarketID != p.MarketID || got.Side != p.Side {
		t.Errorf("loaded = %+v, want matching %+v", got, p)
	}
	if !got.SizeUSD.Equal(p.SizeUSD) {
		t.Errorf("SizeUSD = %s, want %s", got.SizeUSD, p.SizeUSD)
	}
	if got.ExitPrice != nil || got.PnL != nil || got.ResolvedTS != nil {
		t.Errorf("got = %+v, want nil optional fields on an open position", got)
	}
}

func TestUpsertOverwritesExistingRowOnConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := samplePosition()
	store.Upsert(ctx, p)

	exit := 100.0
	resolved := time.Now().Truncate(time.Second)
	pnl := decimal.NewFromInt(6)
	outcome := domain.OutcomeYes
	p.Status = domain.PositionWin
	p.ExitPrice = &exit
	p.ResolvedTS = &resolved
	p.PnL = &pnl
	p.ActualOutcome = &outcome

	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len(Load()) = %d, want 1 row after upsert-on-conflict, not an inserted duplicate", len(loaded))
	}
	got := loaded[0]
	if got.Status != domain.PositionWin || got.PnL == nil || !got.PnL.Equal(pnl) {
		t.Errorf("got = %+v, want the updated resolved fields", got)
	}
	if got.ExitPrice == nil || *got.ExitPrice != exit {
		t.Errorf("ExitPrice = %v, want %v", got.ExitPrice, exit)
	}
}

func TestDeleteRemovesPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.Upsert(ctx, samplePosition())

	if err := store.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("len(Load()) = %d, want 0 after Delete", len(loaded))
	}
}

func TestInsertAndLoadCalibrationRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := domain.CalibrationRecord{
		MarketID: "m1", Category: domain.CategorySports, BeliefAtEntryLow: 40, BeliefAtEntryHigh: 60,
		ConfidenceAtEntry: 70, UnknownsCount: 2, ActualOutcome: domain.OutcomeYes,
		ResolvedTS: time.Now().Truncate(time.Second), EdgeAtEntry: 15, InvalidatedExit: true,
	}
	if err := store.InsertCalibrationRecord(ctx, r); err != nil {
		t.Fatalf("InsertCalibrationRecord() error = %v", err)
	}

	loaded, err := store.LoadCalibrationRecords(ctx)
	if err != nil {
		t.Fatalf("LoadCalibrationRecords() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len(LoadCalibrationRecords()) = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.MarketID != r.MarketID || got.Category != r.Category || !got.InvalidatedExit {
		t.Errorf("got = %+v, want matching %+v", got, r)
	}
	if got.ActualOutcome != domain.OutcomeYes {
		t.Errorf("ActualOutcome = %s, want YES", got.ActualOutcome)
	}
}

func TestHealthCheckSucceedsOnOpenConnection(t *testing.T) {
	store := newTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestNewSQLiteStoreRejectsEmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("NewSQLiteStore(\"\") error = nil, want an error")
	}
}
