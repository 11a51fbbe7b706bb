package engine

import (
	"context"
	"fmt"

	"buffet/internal/domain"
)

// RiskManager enforces pre-trade rules. An order that violates them is
// rejected before it reaches the broker.
type RiskManager struct {
	maxOrderQty float64
}

// NewRiskManager creates a RiskManager. A maxOrderQty of 0 disables the
// per-order quantity cap.
func NewRiskManager(maxOrderQty float64) *RiskManager {
	return &RiskManager{maxOrderQty: maxOrderQty}
}

// CheckOrder evaluates whether req is well formed and within limits.
func (rm *RiskManager) CheckOrder(_ context.Context, req OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: order symbol is required", domain.ErrInvalidInput)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return fmt.Errorf("%w: invalid order side %q", domain.ErrInvalidInput, req.Side)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: order quantity must be positive, got %v", domain.ErrInvalidInput, req.Quantity)
	}
	if req.LimitPrice != nil && *req.LimitPrice <= 0 {
		return fmt.Errorf("%w: limit price must be positive, got %v", domain.ErrInvalidInput, *req.LimitPrice)
	}
	if rm.maxOrderQty > 0 && req.Quantity > rm.maxOrderQty {
		return fmt.Errorf("%w: order quantity %v exceeds limit %v", domain.ErrInvalidInput, req.Quantity, rm.maxOrderQty)
	}
	return nil
}
