// Package broker defines the Broker interface and provides implementations
// that turn order intents into fills.
package broker

import (
	"context"
	"fmt"

	"buffet/internal/domain"
)

// Broker abstracts order execution. Implementations return a FillResult for
// any outcome the venue accepted, and a *RejectionError when the order was
// refused.
type Broker interface {
	// Name returns the broker identifier (e.g. "paper").
	Name() string

	// SubmitMarketOrder executes qty units of symbol at the venue's
	// reference price.
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty float64) (*FillResult, error)

	// SubmitLimitOrder executes qty units of symbol with limitPrice as the
	// reference price.
	SubmitLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, qty, limitPrice float64) (*FillResult, error)
}

// FillResult is a broker's report of an executed order.
type FillResult struct {
	FillPrice    float64
	FillQuantity float64
	// Filled is true when the whole requested quantity was executed.
	Filled bool
	// RejectionReason may be set on partial outcomes.
	RejectionReason string
}

// RejectionError is returned when a broker refuses an order. It is a normal
// business outcome, not a system fault.
type RejectionError struct {
	Symbol string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order for %s rejected: %s", e.Symbol, e.Reason)
}
