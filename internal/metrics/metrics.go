// Package metrics computes risk-adjusted performance statistics for
// simulated and live trading results.
package metrics

import "math"

// SharpeRatio returns (mean - riskFreeRate) / stddev over per-trade returns,
// using the Bessel-corrected sample standard deviation. It returns 0 when
// fewer than two returns exist or the returns have zero variance.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}

	mean := Mean(returns)
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / float64(n-1))
	if stddev == 0 {
		return 0
	}
	return (mean - riskFreeRate) / stddev
}

// MaxDrawdown returns the largest fractional decline from a running peak
// over the equity curve. An empty curve has no drawdown. Points observed
// while the peak is not positive contribute nothing.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// TotalReturn returns (final - initial) / initial, or 0 for a non-positive
// initial balance.
func TotalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial
}

// WinRate returns the fraction of returns that are strictly positive.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
