// Package builtins provides built-in strategy implementations that ship with
// the buffet platform.
package builtins

import (
	"fmt"

	"buffet/internal/domain"
	"buffet/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Logic = (*SMACross)(nil)

// SMACrossParams is the parameter document of a rule-based strategy.
type SMACrossParams struct {
	FastPeriod int `json:"fast_period"`
	SlowPeriod int `json:"slow_period"`
}

// SMACross compares a fast and a slow simple moving average of closing
// prices. It signals Buy whenever the fast average is above the slow one and
// Sell otherwise. This is a level comparison, so a trending series repeats
// the same signal on every bar.
type SMACross struct {
	fastPeriod int
	slowPeriod int
	prices     []float64
}

// NewSMACross creates a new SMACross strategy with the specified fast and
// slow moving average periods.
func NewSMACross(fast, slow int) (*SMACross, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("%w: sma periods must be positive (fast=%d, slow=%d)", domain.ErrInvalidInput, fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast_period %d must be less than slow_period %d", domain.ErrInvalidInput, fast, slow)
	}
	return &SMACross{
		fastPeriod: fast,
		slowPeriod: slow,
		prices:     make([]float64, 0, slow+1),
	}, nil
}

// newSMACrossFromParams is the registry factory for rule-based strategies.
func newSMACrossFromParams(raw []byte) (strategy.Logic, error) {
	p := SMACrossParams{FastPeriod: 10, SlowPeriod: 20}
	if err := strategy.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	return NewSMACross(p.FastPeriod, p.SlowPeriod)
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Update appends the bar's close to the trailing window and compares the
// two averages once the slow window is full.
func (s *SMACross) Update(bar domain.Bar) (domain.SignalType, bool) {
	s.prices = append(s.prices, bar.Close)
	if len(s.prices) > s.slowPeriod {
		s.prices = s.prices[len(s.prices)-s.slowPeriod:]
	}
	if len(s.prices) < s.slowPeriod {
		return "", false
	}

	fast := sma(s.prices, s.fastPeriod)
	slow := sma(s.prices, s.slowPeriod)
	if fast > slow {
		return domain.SignalTypeBuy, true
	}
	return domain.SignalTypeSell, true
}

// sma averages the last period values of prices.
func sma(prices []float64, period int) float64 {
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}
