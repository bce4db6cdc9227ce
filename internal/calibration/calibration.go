// Package calibration implements C7: the append-only calibration window
// and the halt conditions derived from it. The bounded, mutex-guarded
// history slice follows the same shape as the teacher's phase-transition
// history in phase_detector.go, generalized from portfolio phases to
// resolved trading outcomes.
package calibration

import (
	"context"
	"sync"

	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/ports"
)

// Config bounds the window and carries the auto-adjust target referenced
// by §4.4's bounded parameter change.
type Config struct {
	MaxWindow            int
	RangeCoverageTarget  float64
	MinRecordsForHC1     int
	MinBucketRecordsHC2  int
	HC4WindowSize        int
}

// DefaultConfig returns the baseline monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxWindow:           500,
		RangeCoverageTarget: 0.75,
		MinRecordsForHC1:    20,
		MinBucketRecordsHC2: 10,
		HC4WindowSize:       10,
	}
}

// HaltCondition is the closed set of halt triggers this monitor can raise.
type HaltCondition string

const (
	HC1RangeCoverageDeviation HaltCondition = "HC1_range_coverage_deviation"
	HC2BucketInversion        HaltCondition = "HC2_bucket_inversion"
	HC3InvalidationStreak     HaltCondition = "HC3_invalidation_streak"
	HC4UnknownDensityRising   HaltCondition = "HC4_unknown_density_rising"
)

// Metrics is the on-demand snapshot described in §4.7.
type Metrics struct {
	RangeCoverage    float64
	EdgeEffectiveness float64
	UnknownDensity   float64
	BucketWinRates   map[int]bucketStat // decile index -> stat
	N                int
}

type bucketStat struct {
	wins  int
	total int
}

// WinRate returns wins/total, or 0 if the bucket is empty.
func (b bucketStat) WinRate() float64 {
	if b.total == 0 {
		return 0
	}
	return float64(b.wins) / float64(b.total)
}

// Monitor is C7.
type Monitor struct {
	cfg   Config
	store ports.CalibrationStore

	mu      sync.RWMutex
	window  []domain.CalibrationRecord
	invalidationStreak map[domain.Category]int
	densityHistory     []float64
}

// New constructs a Monitor and recovers the window from store, if present.
func New(ctx context.Context, store ports.CalibrationStore, cfg Config) (*Monitor, error) {
	m := &Monitor{
		cfg:                cfg,
		store:              store,
		invalidationStreak: make(map[domain.Category]int),
	}
	if store != nil {
		recs, err := store.LoadCalibrationRecords(ctx)
		if err != nil {
			return nil, domain.NewError(domain.ErrPersistenceFailure, "calibration.New", err)
		}
		for _, r := range recs {
			m.appendLocked(r)
		}
	}
	return m, nil
}

// Record appends a CalibrationRecord, persists it, and returns any halt
// condition it triggers. The check runs after the append, so it always
// observes the new record.
func (m *Monitor) Record(ctx context.Context, r domain.CalibrationRecord) (HaltCondition, bool, error) {
	if m.store != nil {
		if err := m.store.InsertCalibrationRecord(ctx, r); err != nil {
			return "", false, domain.NewError(domain.ErrPersistenceFailure, "calibration.Record", err)
		}
	}

	m.mu.Lock()
	m.appendLocked(r)
	cond, halted := m.checkHaltsLocked(r)
	m.mu.Unlock()

	return cond, halted, nil
}

func (m *Monitor) appendLocked(r domain.CalibrationRecord) {
	m.window = append(m.window, r)
	if len(m.window) > m.cfg.MaxWindow {
		m.window = m.window[len(m.window)-m.cfg.MaxWindow:]
	}
}

// checkHaltsLocked evaluates HC1-HC4 against the window as it stands after
// appending r. Callers hold m.mu.
func (m *Monitor) checkHaltsLocked(r domain.CalibrationRecord) (HaltCondition, bool) {
	// HC3: three consecutive invalidation exits on the same category.
	if r.InvalidatedExit {
		m.invalidationStreak[r.Category]++
	} else {
		m.invalidationStreak[r.Category] = 0
	}
	if m.invalidationStreak[r.Category] >= 3 {
		return HC3InvalidationStreak, true
	}

	metrics := m.computeLocked()

	// HC1: range coverage off target by >15pp over a window of >= 20.
	if metrics.N >= m.cfg.MinRecordsForHC1 {
		deviation := metrics.RangeCoverage - m.cfg.RangeCoverageTarget
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > 0.15 {
			return HC1RangeCoverageDeviation, true
		}
	}

	// HC2: a >=85 bucket with a strictly lower win rate than a <=60 bucket,
	// both with >= MinBucketRecordsHC2 records.
	var highRate, lowRate float64
	var haveHigh, haveLow bool
	for decile, stat := range metrics.BucketWinRates {
		if stat.total < m.cfg.MinBucketRecordsHC2 {
			continue
		}
		midpoint := float64(decile)*10 + 5
		if midpoint >= 85 {
			if !haveHigh || stat.WinRate() < highRate {
				highRate = stat.WinRate()
				haveHigh = true
			}
		}
		if midpoint <= 60 {
			if !haveLow || stat.WinRate() > lowRate {
				lowRate = stat.WinRate()
				haveLow = true
			}
		}
	}
	if haveHigh && haveLow && highRate < lowRate {
		return HC2BucketInversion, true
	}

	// HC4: unknown density strictly increases across three consecutive
	// equal-size windows.
	m.densityHistory = append(m.densityHistory, unknownDensity(m.window, m.cfg.HC4WindowSize))
	if len(m.densityHistory) > 3 {
		m.densityHistory = m.densityHistory[len(m.densityHistory)-3:]
	}
	if len(m.densityHistory) == 3 &&
		m.densityHistory[0] < m.densityHistory[1] && m.densityHistory[1] < m.densityHistory[2] {
		return HC4UnknownDensityRising, true
	}

	return "", false
}

// unknownDensity computes the mean unknowns-count over the last windowSize
// records of window (or fewer, if the window is shorter).
func unknownDensity(window []domain.CalibrationRecord, windowSize int) float64 {
	if len(window) == 0 {
		return 0
	}
	start := len(window) - windowSize
	if start < 0 {
		start = 0
	}
	slice := window[start:]
	var sum int
	for _, r := range slice {
		sum += r.UnknownsCount
	}
	return float64(sum) / float64(len(slice))
}

// Snapshot computes Metrics over the current window. Readers never observe
// a partially-appended record, per the append-only/snapshot policy.
func (m *Monitor) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.computeLocked()
}

func (m *Monitor) computeLocked() Metrics {
	n := len(m.window)
	metrics := Metrics{BucketWinRates: make(map[int]bucketStat), N: n}
	if n == 0 {
		return metrics
	}

	var withinCount int
	var realizedEdgeSum, predictedEdgeSum float64
	var unknownsSum int

	for _, r := range m.window {
		actualProb := 0.0
		if r.ActualOutcome == domain.OutcomeYes {
			actualProb = 100
		}
		if actualProb >= r.BeliefAtEntryLow && actualProb <= r.BeliefAtEntryHigh {
			withinCount++
		}

		realizedEdge := actualProb - r.BeliefAtEntryLow // proxy for realized directional edge
		realizedEdgeSum += realizedEdge
		predictedEdgeSum += r.EdgeAtEntry
		unknownsSum += r.UnknownsCount

		decile := int(r.ConfidenceAtEntry) / 10
		if decile > 9 {
			decile = 9
		}
		stat := metrics.BucketWinRates[decile]
		stat.total++
		// A bucket "wins" a record when the stated belief range actually
		// bracketed the outcome, same bracketing test as RangeCoverage.
		if actualProb >= r.BeliefAtEntryLow && actualProb <= r.BeliefAtEntryHigh {
			stat.wins++
		}
		metrics.BucketWinRates[decile] = stat
	}

	metrics.RangeCoverage = float64(withinCount) / float64(n)
	metrics.UnknownDensity = float64(unknownsSum) / float64(n)
	if predictedEdgeSum != 0 {
		metrics.EdgeEffectiveness = realizedEdgeSum / predictedEdgeSum
	}
	return metrics
}

// Window returns a copy of the current append-only window.
func (m *Monitor) Window() []domain.CalibrationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CalibrationRecord, len(m.window))
	copy(out, m.window)
	return out
}

// ToHaltReason maps a HaltCondition to the closed domain.HaltReason set.
func ToHaltReason(HaltCondition) domain.HaltReason {
	return domain.HaltCalibrationFailure
}
