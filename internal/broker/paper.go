package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"buffet/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*PaperBroker)(nil)

const (
	// DefaultSlippageBps is the slippage applied when none is configured.
	DefaultSlippageBps = 10
	// DefaultPrice is the reference price for market orders.
	DefaultPrice = 100.0
)

var bpsDivisor = decimal.NewFromInt(10_000)

// PaperBroker implements the Broker interface for paper trading. Every
// accepted order fills completely at the reference price adjusted by
// slippage: buys fill higher, sells fill lower. No external calls are made.
type PaperBroker struct {
	slippage     decimal.Decimal // fraction, e.g. 0.001 for 10 bps
	defaultPrice decimal.Decimal

	mu    sync.Mutex
	fills int
}

// PaperOption configures a PaperBroker.
type PaperOption func(*PaperBroker)

// WithSlippageBps sets the slippage in basis points.
func WithSlippageBps(bps float64) PaperOption {
	return func(b *PaperBroker) {
		b.slippage = decimal.NewFromFloat(bps).Div(bpsDivisor)
	}
}

// WithDefaultPrice sets the reference price used for market orders.
func WithDefaultPrice(price float64) PaperOption {
	return func(b *PaperBroker) {
		b.defaultPrice = decimal.NewFromFloat(price)
	}
}

// NewPaperBroker creates a PaperBroker with 10 bps slippage and a reference
// price of 100 unless overridden.
func NewPaperBroker(opts ...PaperOption) *PaperBroker {
	b := &PaperBroker{
		slippage:     decimal.NewFromInt(DefaultSlippageBps).Div(bpsDivisor),
		defaultPrice: decimal.NewFromFloat(DefaultPrice),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "paper".
func (b *PaperBroker) Name() string {
	return "paper"
}

// SubmitMarketOrder fills qty at the default reference price.
func (b *PaperBroker) SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty float64) (*FillResult, error) {
	return b.fill(ctx, symbol, side, qty, b.defaultPrice)
}

// SubmitLimitOrder fills qty at the limit price.
func (b *PaperBroker) SubmitLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, qty, limitPrice float64) (*FillResult, error) {
	if limitPrice <= 0 {
		return nil, &RejectionError{Symbol: symbol, Reason: fmt.Sprintf("invalid limit price %v", limitPrice)}
	}
	return b.fill(ctx, symbol, side, qty, decimal.NewFromFloat(limitPrice))
}

// Fills returns the number of orders filled so far.
func (b *PaperBroker) Fills() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fills
}

func (b *PaperBroker) fill(ctx context.Context, symbol string, side domain.OrderSide, qty float64, ref decimal.Decimal) (*FillResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, &RejectionError{Symbol: symbol, Reason: fmt.Sprintf("invalid quantity %v", qty)}
	}

	price, err := b.slipped(side, ref)
	if err != nil {
		return nil, &RejectionError{Symbol: symbol, Reason: err.Error()}
	}

	b.mu.Lock()
	b.fills++
	b.mu.Unlock()

	return &FillResult{
		FillPrice:    price.InexactFloat64(),
		FillQuantity: qty,
		Filled:       true,
	}, nil
}

// slipped applies price * (1 ± slippage) against the order's side.
func (b *PaperBroker) slipped(side domain.OrderSide, ref decimal.Decimal) (decimal.Decimal, error) {
	switch side {
	case domain.OrderSideBuy:
		return ref.Mul(decimal.NewFromInt(1).Add(b.slippage)), nil
	case domain.OrderSideSell:
		return ref.Mul(decimal.NewFromInt(1).Sub(b.slippage)), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown side %q", side)
	}
}
