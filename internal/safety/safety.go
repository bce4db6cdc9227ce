// Package safety implements the live-mode Safety Controls ledger named in
// §4.5: a daily-loss cap, a consecutive-loss pause, and a position-size
// throttle. Adapted from the teacher's per-user Redis-backed risk trackers,
// collapsed to a single-system ledger since this repo runs one trading
// system rather than many user accounts.
package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const ledgerKey = "beliefcore:safety"

// Config carries the safety thresholds named in §6.
type Config struct {
	MaxPositionSizeUSD   decimal.Decimal
	DailyLossLimitUSD    decimal.Decimal
	MaxOpenPositions     int
	ConsecutiveLossPause int // pause after this many losses in a row
}

// DefaultConfig returns the defaults named in §6.
func DefaultConfig() Config {
	return Config{
		MaxPositionSizeUSD:   decimal.NewFromInt(100),
		DailyLossLimitUSD:    decimal.NewFromInt(50),
		MaxOpenPositions:     5,
		ConsecutiveLossPause: 3,
	}
}

// Ledger tracks live-mode risk state in Redis. A nil client degrades every
// check to "allowed". cmd/core/main.go does not construct a Ledger at all
// when Redis is unset or unreachable.
type Ledger struct {
	redis  *redis.Client
	config Config
}

// New constructs a Ledger.
func New(client *redis.Client, cfg Config) *Ledger {
	return &Ledger{redis: client, config: cfg}
}

func (l *Ledger) dailyLossKey() string       { return ledgerKey + ":daily_loss" }
func (l *Ledger) consecutiveLossKey() string { return ledgerKey + ":consecutive_losses" }
func (l *Ledger) openPositionsKey() string   { return ledgerKey + ":open_positions" }
func (l *Ledger) throttleKey() string        { return ledgerKey + ":size_throttle" }

// RecordLoss adds to today's realized loss and increments the consecutive
// loss counter.
func (l *Ledger) RecordLoss(ctx context.Context, loss decimal.Decimal) error {
	if l.redis == nil {
		return nil
	}
	if err := l.redis.IncrByFloat(ctx, l.dailyLossKey(), loss.InexactFloat64()).Err(); err != nil {
		return err
	}
	if err := l.redis.Expire(ctx, l.dailyLossKey(), 24*time.Hour).Err(); err != nil {
		return err
	}
	return l.redis.Incr(ctx, l.consecutiveLossKey()).Err()
}

// RecordWin clears the consecutive-loss counter.
func (l *Ledger) RecordWin(ctx context.Context) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Del(ctx, l.consecutiveLossKey()).Err()
}

// DailyLossExceeded reports whether the configured daily cap has been hit.
func (l *Ledger) DailyLossExceeded(ctx context.Context) (bool, error) {
	if l.redis == nil {
		return false, nil
	}
	loss, err := l.redis.Get(ctx, l.dailyLossKey()).Float64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return decimal.NewFromFloat(loss).GreaterThanOrEqual(l.config.DailyLossLimitUSD), nil
}

// Paused reports whether the consecutive-loss pause is active.
func (l *Ledger) Paused(ctx context.Context) (bool, error) {
	if l.redis == nil {
		return false, nil
	}
	n, err := l.redis.Get(ctx, l.consecutiveLossKey()).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= l.config.ConsecutiveLossPause, nil
}

// IncrementOpenPositions and DecrementOpenPositions track the live-mode
// open-position count against MaxOpenPositions.
func (l *Ledger) IncrementOpenPositions(ctx context.Context) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Incr(ctx, l.openPositionsKey()).Err()
}

func (l *Ledger) DecrementOpenPositions(ctx context.Context) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Decr(ctx, l.openPositionsKey()).Err()
}

// OpenPositionsAtCapacity reports whether MaxOpenPositions has been reached.
func (l *Ledger) OpenPositionsAtCapacity(ctx context.Context) (bool, error) {
	if l.redis == nil {
		return false, nil
	}
	n, err := l.redis.Get(ctx, l.openPositionsKey()).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= l.config.MaxOpenPositions, nil
}

// ThrottledSize applies an exponential size reduction while a throttle
// level is active, floored at zero. Adapted from the teacher's position
// size throttle, simplified to a single escalating level keyed on
// consecutive over-cap attempts rather than per-user state.
func (l *Ledger) ThrottledSize(ctx context.Context, requestedUSD decimal.Decimal) (decimal.Decimal, error) {
	capped := requestedUSD
	if capped.GreaterThan(l.config.MaxPositionSizeUSD) {
		capped = l.config.MaxPositionSizeUSD
	}
	if l.redis == nil {
		return capped, nil
	}

	level, err := l.redis.Get(ctx, l.throttleKey()).Int()
	if err == redis.Nil {
		level = 0
	} else if err != nil {
		return capped, err
	}
	if level <= 0 {
		return capped, nil
	}

	factor := decimal.NewFromFloat(1.0)
	half := decimal.NewFromFloat(0.5)
	for i := 0; i < level; i++ {
		factor = factor.Mul(half)
	}
	return capped.Mul(factor), nil
}

// RaiseThrottle escalates the throttle level, e.g. after a rejected order
// that exceeded available risk budget.
func (l *Ledger) RaiseThrottle(ctx context.Context) error {
	if l.redis == nil {
		return nil
	}
	if err := l.redis.Incr(ctx, l.throttleKey()).Err(); err != nil {
		return err
	}
	return l.redis.Expire(ctx, l.throttleKey(), time.Hour).Err()
}

// ResetThrottle clears the throttle level, e.g. after a winning trade.
func (l *Ledger) ResetThrottle(ctx context.Context) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Del(ctx, l.throttleKey()).Err()
}

// Allow runs every live-mode gate and returns a human-readable refusal
// reason, or "" if the trade is allowed.
func (l *Ledger) Allow(ctx context.Context) (string, error) {
	if paused, err := l.Paused(ctx); err != nil {
		return "", err
	} else if paused {
		return "consecutive loss pause active", nil
	}
	if exceeded, err := l.DailyLossExceeded(ctx); err != nil {
		return "", err
	} else if exceeded {
		return "daily loss limit reached", nil
	}
	if atCap, err := l.OpenPositionsAtCapacity(ctx); err != nil {
		return "", err
	} else if atCap {
		return fmt.Sprintf("max open positions (%d) reached", l.config.MaxOpenPositions), nil
	}
	return "", nil
}
