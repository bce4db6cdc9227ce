// Package audit implements the default AuditSink and NotificationSink
// adapters: a line-delimited file writer for the durable record, and a
// rate-limited forwarder for human-facing notifications. The notification
// rate limiter's local fixed-window counter is adapted from the teacher's
// internal/middleware/ratelimit.go Redis-optional limiter, generalized from
// per-client-IP HTTP throttling to per-event-type notification throttling.
package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/beliefcore/core/internal/ports"
)

// FileSink writes every AuditEvent as a line-delimited record with the
// fixed column set named in §6: ts, event, market_id, question, action,
// detail, belief_low, belief_high, edge, size_usd, pnl.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewFileSink opens path for append, writing a header if the file is new.
func NewFileSink(path string) (*FileSink, error) {
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	w := csv.NewWriter(f)
	s := &FileSink{file: f, writer: w}

	if statErr != nil || info.Size() == 0 {
		if err := w.Write([]string{"ts", "event", "market_id", "question", "action", "detail",
			"belief_low", "belief_high", "edge", "size_usd", "pnl"}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		w.Flush()
	}
	return s, nil
}

// Emit implements ports.AuditSink. It never returns an error that should
// reach the caller except persistence failure, per §7.
func (s *FileSink) Emit(ctx context.Context, event ports.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := []string{
		event.Timestamp.Format(time.RFC3339Nano),
		string(event.Event),
		event.MarketID,
		event.Question,
		event.Action,
		event.Detail,
		strconv.FormatFloat(event.BeliefLow, 'f', 4, 64),
		strconv.FormatFloat(event.BeliefHigh, 'f', 4, 64),
		strconv.FormatFloat(event.Edge, 'f', 4, 64),
		strconv.FormatFloat(event.SizeUSD, 'f', 4, 64),
		strconv.FormatFloat(event.PnL, 'f', 4, 64),
	}
	if err := s.writer.Write(record); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	return s.file.Close()
}

// NotificationConfig bounds the best-effort notification throughput.
type NotificationConfig struct {
	MaxPerWindow int
	Window       time.Duration
}

// DefaultNotificationConfig matches §6's 10/min default.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{MaxPerWindow: 10, Window: time.Minute}
}

// NotificationSink is a best-effort, rate-limited forwarder. Every error
// and system_halt event is additionally forwarded to Sentry, regardless of
// the local rate limit, since those are the events an operator must never
// miss.
type NotificationSink struct {
	cfg     NotificationConfig
	deliver Deliverer

	mu    sync.Mutex
	count int
	reset time.Time
}

// Deliverer sends a rendered notification to a human-facing channel
// (Slack, Logtail, etc). Implementations are best-effort; errors are
// logged by the caller, never propagated further.
type Deliverer func(ctx context.Context, event ports.AuditEvent) error

// NewNotificationSink constructs a sink that calls deliver for every event
// admitted by the rate limiter.
func NewNotificationSink(cfg NotificationConfig, deliver Deliverer) *NotificationSink {
	return &NotificationSink{cfg: cfg, deliver: deliver, reset: time.Now().Add(cfg.Window)}
}

// Emit implements ports.NotificationSink. It never returns an error: every
// failure (rate-limited, delivery failure) is swallowed, per §6.
func (s *NotificationSink) Emit(ctx context.Context, event ports.AuditEvent) error {
	if event.Event == ports.EventError || event.Event == ports.EventSystemHalt {
		sentry.CaptureMessage(fmt.Sprintf("%s: %s", event.Event, event.Detail))
	}

	if !s.admit() {
		return nil
	}
	if s.deliver == nil {
		return nil
	}
	if err := s.deliver(ctx, event); err != nil {
		return nil
	}
	return nil
}

func (s *NotificationSink) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.After(s.reset) {
		s.count = 0
		s.reset = now.Add(s.cfg.Window)
	}
	if s.count >= s.cfg.MaxPerWindow {
		return false
	}
	s.count++
	return true
}
