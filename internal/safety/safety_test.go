package safety

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skip("miniredis cannot bind in this environment; skipping Redis-backed tests")
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestNilClientDegradesEveryCheckToAllowed(t *testing.T) {
	l := New(nil, DefaultConfig())
	ctx := context.Background()

	if err := l.RecordLoss(ctx, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("RecordLoss() error = %v, want nil when degraded", err)
	}
	if reason, err := l.Allow(ctx); err != nil || reason != "" {
		t.Errorf("Allow() = (%q, %v), want (\"\", nil) when degraded", reason, err)
	}
}

func TestDailyLossExceededAtCap(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.DailyLossLimitUSD = decimal.NewFromInt(50)
	l := New(client, cfg)
	ctx := context.Background()

	if err := l.RecordLoss(ctx, decimal.NewFromInt(30)); err != nil {
		t.Fatalf("RecordLoss() error = %v", err)
	}
	if exceeded, _ := l.DailyLossExceeded(ctx); exceeded {
		t.Error("DailyLossExceeded() = true after 30 of 50, want false")
	}

	if err := l.RecordLoss(ctx, decimal.NewFromInt(25)); err != nil {
		t.Fatalf("RecordLoss() error = %v", err)
	}
	if exceeded, _ := l.DailyLossExceeded(ctx); !exceeded {
		t.Error("DailyLossExceeded() = false after 55 of 50, want true")
	}
}

func TestConsecutiveLossPauseActivatesAtThreshold(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.ConsecutiveLossPause = 3
	l := New(client, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		l.RecordLoss(ctx, decimal.NewFromInt(1))
	}
	if paused, _ := l.Paused(ctx); paused {
		t.Error("Paused() = true after 2 losses, want false")
	}

	l.RecordLoss(ctx, decimal.NewFromInt(1))
	if paused, _ := l.Paused(ctx); !paused {
		t.Error("Paused() = false after 3 losses, want true")
	}
}

func TestRecordWinClearsConsecutiveLossCounter(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.ConsecutiveLossPause = 2
	l := New(client, cfg)
	ctx := context.Background()

	l.RecordLoss(ctx, decimal.NewFromInt(1))
	l.RecordLoss(ctx, decimal.NewFromInt(1))
	if paused, _ := l.Paused(ctx); !paused {
		t.Fatal("Paused() = false after 2 losses with pause=2, want true")
	}

	if err := l.RecordWin(ctx); err != nil {
		t.Fatalf("RecordWin() error = %v", err)
	}
	if paused, _ := l.Paused(ctx); paused {
		t.Error("Paused() = true after RecordWin(), want false")
	}
}

func TestOpenPositionsAtCapacity(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 2
	l := New(client, cfg)
	ctx := context.Background()

	l.IncrementOpenPositions(ctx)
	if atCap, _ := l.OpenPositionsAtCapacity(ctx); atCap {
		t.Error("OpenPositionsAtCapacity() = true after 1 of 2, want false")
	}
	l.IncrementOpenPositions(ctx)
	if atCap, _ := l.OpenPositionsAtCapacity(ctx); !atCap {
		t.Error("OpenPositionsAtCapacity() = false after 2 of 2, want true")
	}
	l.DecrementOpenPositions(ctx)
	if atCap, _ := l.OpenPositionsAtCapacity(ctx); atCap {
		t.Error("OpenPositionsAtCapacity() = true after decrement, want false")
	}
}

func TestThrottledSizeHalvesPerLevel(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.MaxPositionSizeUSD = decimal.NewFromInt(100)
	l := New(client, cfg)
	ctx := context.Background()

	size, err := l.ThrottledSize(ctx, decimal.NewFromInt(80))
	if err != nil {
		t.Fatalf("ThrottledSize() error = %v", err)
	}
	if !size.Equal(decimal.NewFromInt(80)) {
		t.Errorf("ThrottledSize() = %s, want 80 with no throttle active", size)
	}

	l.RaiseThrottle(ctx)
	size, _ = l.ThrottledSize(ctx, decimal.NewFromInt(80))
	if !size.Equal(decimal.NewFromInt(40)) {
		t.Errorf("ThrottledSize() = %s, want 40 after one throttle level", size)
	}

	l.ResetThrottle(ctx)
	size, _ = l.ThrottledSize(ctx, decimal.NewFromInt(80))
	if !size.Equal(decimal.NewFromInt(80)) {
		t.Errorf("ThrottledSize() = %s, want 80 after reset", size)
	}
}

func TestThrottledSizeCapsAtMaxPositionSize(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.MaxPositionSizeUSD = decimal.NewFromInt(50)
	l := New(client, cfg)

	size, err := l.ThrottledSize(context.Background(), decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("ThrottledSize() error = %v", err)
	}
	if !size.Equal(decimal.NewFromInt(50)) {
		t.Errorf("ThrottledSize() = %s, want capped at 50", size)
	}
}

func TestAllowReportsPauseBeforeOtherReasons(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.ConsecutiveLossPause = 1
	cfg.DailyLossLimitUSD = decimal.NewFromInt(1)
	l := New(client, cfg)
	ctx := context.Background()

	l.RecordLoss(ctx, decimal.NewFromInt(100)) // trips both daily loss and pause

	reason, err := l.Allow(ctx)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if reason != "consecutive loss pause active" {
		t.Fatalf("Allow() = %q, want the consecutive loss pause reason ahead of the daily loss reason", reason)
	}
}
