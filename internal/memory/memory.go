// Package memory implements the §5 memory-pressure policy: RSS sampling
// against two thresholds and externalized shrink callbacks. The scheduler's
// callback trims tracked-market count and paper-position retention without
// changing any algorithm; per-market history is not shrunk. Adapted from the teacher's
// ticker+stopCh+WaitGroup cooperative-loop idiom in workerpool/pool.go,
// generalized from task draining to periodic RSS sampling.
package memory

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Level is the closed set of memory-pressure levels.
type Level string

const (
	LevelNormal    Level = "normal"
	LevelAggressive Level = "aggressive"
	LevelEmergency Level = "emergency"
)

// Config carries the two RSS thresholds (in MB) and the sampling interval.
type Config struct {
	CriticalMB  float64
	EmergencyMB float64
	Interval    time.Duration
}

// DefaultConfig returns conservative thresholds for a single-process
// deployment.
func DefaultConfig() Config {
	return Config{
		CriticalMB:  512,
		EmergencyMB: 768,
		Interval:    30 * time.Second,
	}
}

// ShrinkCallback is invoked whenever the pressure level changes to
// aggressive or emergency. Implementations perform one policy action
// (trim history, evict markets, tighten retention) and must not block.
type ShrinkCallback func(level Level)

// Monitor periodically samples process RSS and notifies registered
// callbacks on level transitions.
type Monitor struct {
	cfg Config

	mu        sync.Mutex
	callbacks []ShrinkCallback
	level     Level

	stopCh chan struct{}
	wg     sync.WaitGroup
	proc   *process.Process
}

// New constructs a Monitor for the current process.
func New(cfg Config) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{
		cfg:    cfg,
		level:  LevelNormal,
		stopCh: make(chan struct{}),
		proc:   proc,
	}, nil
}

// Register adds a shrink callback. It takes the monitor's lock, so it may be
// called while the sampling loop runs; a callback registered after a level
// change is not notified of that change.
func (m *Monitor) Register(cb ShrinkCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Start begins the periodic sampling loop. It runs until ctx is cancelled
// or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sample(ctx)
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) sample(ctx context.Context) {
	info, err := m.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return
	}
	rssMB := float64(info.RSS) / (1024 * 1024)

	var next Level
	switch {
	case rssMB >= m.cfg.EmergencyMB:
		next = LevelEmergency
	case rssMB >= m.cfg.CriticalMB:
		next = LevelAggressive
	default:
		next = LevelNormal
	}

	m.mu.Lock()
	changed := next != m.level
	m.level = next
	cbs := make([]ShrinkCallback, len(m.callbacks))
	copy(cbs, m.callbacks)
	m.mu.Unlock()

	if !changed || next == LevelNormal {
		return
	}
	for _, cb := range cbs {
		go func(cb ShrinkCallback) {
			defer func() { recover() }()
			cb(next)
		}(cb)
	}
}

// Level returns the most recently observed pressure level.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}
