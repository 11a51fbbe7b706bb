package builtins

import (
	"buffet/internal/domain"
	"buffet/internal/strategy"
)

// Register installs every built-in strategy type into reg. Model-based
// strategies have no built-in implementation and stay unsupported.
func Register(reg *strategy.Registry) {
	reg.Register(domain.StrategyTypeRuleBased, newSMACrossFromParams)
	reg.Register(domain.StrategyTypeStatistical, newMeanReversionFromParams)
}

// NewRegistry returns a registry with the built-in strategies installed.
func NewRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	Register(reg)
	return reg
}
