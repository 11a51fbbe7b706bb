package builtins

import (
	"fmt"

	"buffet/internal/domain"
	"buffet/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Logic = (*MeanReversion)(nil)

// MeanReversionParams is the parameter document of a statistical strategy.
type MeanReversionParams struct {
	Window       int     `json:"window"`
	DeviationPct float64 `json:"deviation_pct"`
}

// MeanReversion trades deviations of the close from its moving average. A
// close more than DeviationPct percent below the average signals Buy, more
// than DeviationPct above signals Sell, anything in between is Hold.
type MeanReversion struct {
	window    int
	threshold float64
	prices    []float64
}

// NewMeanReversion creates a MeanReversion strategy over window bars.
func NewMeanReversion(window int, deviationPct float64) (*MeanReversion, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", domain.ErrInvalidInput, window)
	}
	if deviationPct <= 0 {
		return nil, fmt.Errorf("%w: deviation_pct must be positive, got %v", domain.ErrInvalidInput, deviationPct)
	}
	return &MeanReversion{
		window:    window,
		threshold: deviationPct,
		prices:    make([]float64, 0, window+1),
	}, nil
}

func newMeanReversionFromParams(raw []byte) (strategy.Logic, error) {
	p := MeanReversionParams{Window: 20, DeviationPct: 1.0}
	if err := strategy.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	return NewMeanReversion(p.Window, p.DeviationPct)
}

// Name returns "mean-reversion".
func (s *MeanReversion) Name() string {
	return "mean-reversion"
}

// Update appends the close and measures its deviation from the window mean.
func (s *MeanReversion) Update(bar domain.Bar) (domain.SignalType, bool) {
	s.prices = append(s.prices, bar.Close)
	if len(s.prices) > s.window {
		s.prices = s.prices[len(s.prices)-s.window:]
	}
	if len(s.prices) < s.window {
		return "", false
	}

	avg := sma(s.prices, s.window)
	if avg == 0 {
		return domain.SignalTypeHold, true
	}
	deviation := (bar.Close - avg) / avg * 100

	switch {
	case deviation < -s.threshold:
		return domain.SignalTypeBuy, true
	case deviation > s.threshold:
		return domain.SignalTypeSell, true
	default:
		return domain.SignalTypeHold, true
	}
}
