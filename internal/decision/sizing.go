package decision

import "math"

// KellyConfig bounds a Kelly-fraction-style sizing policy, adapted from the
// clamped weighted-scoring pattern used for multi-signal risk sizing: a raw
// fraction of capital is computed from edge and confidence, then capped at a
// configured ceiling; a stake below the configured floor becomes zero.
type KellyConfig struct {
	KellyFraction float64 // fraction of full Kelly to actually risk, e.g. 0.25
	MaxPositionUSD float64
	MinPositionUSD float64
}

// DefaultKellyConfig returns a conservative default.
func DefaultKellyConfig() KellyConfig {
	return KellyConfig{
		KellyFraction:  0.25,
		MaxPositionUSD: 100,
		MinPositionUSD: 5,
	}
}

// NewKellySizingPolicy returns a SizingPolicy implementing a fractional
// Kelly stake bounded by configured maxima, as named in §4.4. It never
// turns NONE into a trade (a zero or negative edge yields zero size, which
// the engine treats as a veto).
func NewKellySizingPolicy(cfg KellyConfig) SizingPolicy {
	return func(edge, confidence, capitalUSD float64) float64 {
		if edge <= 0 || capitalUSD <= 0 {
			return 0
		}

		// Treat confidence (30..95) as a crude win-probability proxy in
		// (0,1) and edge (percentage points) as the payoff odds proxy.
		p := confidence / 100
		q := 1 - p
		b := edge / 100
		if b <= 0 {
			return 0
		}

		kelly := (p*b - q) / b
		if kelly <= 0 {
			return 0
		}

		stake := kelly * cfg.KellyFraction * capitalUSD
		stake = math.Min(stake, cfg.MaxPositionUSD)
		if stake < cfg.MinPositionUSD {
			return 0
		}
		return stake
	}
}
