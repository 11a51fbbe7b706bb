// Package engine coordinates strategy evaluation, order execution, position
// tracking and backtests across the trading system.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"buffet/internal/actor"
	"buffet/internal/broker"
	"buffet/internal/domain"
	"buffet/internal/store"
	"buffet/internal/strategy"
)

// Options configures an Engine.
type Options struct {
	Actor         actor.Options
	OrderQuantity float64 // units per signal-driven order
	MaxOrderQty   float64 // 0 disables the cap
	RiskFreeRate  float64
}

// Engine wires the live pipeline (strategies -> orders -> ledger) and the
// backtester onto shared stores.
type Engine struct {
	Strategies *StrategyExecutor
	Orders     *OrderExecutor
	Ledger     *PositionLedger
	Backtests  *strategy.Backtester

	meta     store.MetadataStore
	registry *strategy.Registry
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	meta store.MetadataStore,
	bars store.BarStore,
	b broker.Broker,
	registry *strategy.Registry,
	opts Options,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	ledger := NewPositionLedger(meta, opts.Actor, log)
	orders := NewOrderExecutor(meta, b, ledger, NewRiskManager(opts.MaxOrderQty), opts.Actor, log)
	return &Engine{
		Strategies: NewStrategyExecutor(meta, meta, registry, orders, opts.OrderQuantity, opts.Actor, log),
		Orders:     orders,
		Ledger:     ledger,
		Backtests:  strategy.NewBacktester(meta, bars, registry, opts.RiskFreeRate, opts.Actor, log),
		meta:       meta,
		registry:   registry,
	}
}

// Start launches every component, downstream first.
func (e *Engine) Start(ctx context.Context) {
	e.Ledger.Start(ctx)
	e.Orders.Start(ctx)
	e.Strategies.Start(ctx)
	e.Backtests.Start(ctx)
}

// Stop halts every component, upstream first.
func (e *Engine) Stop() {
	e.Backtests.Stop()
	e.Strategies.Stop()
	e.Orders.Stop()
	e.Ledger.Stop()
}

// SubmitOrder executes an order request and returns the resulting order.
func (e *Engine) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	return e.Orders.Execute(ctx, req)
}

// CancelOrder cancels an open order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return e.Orders.Cancel(ctx, orderID)
}

// GetPositions returns positions newest first, optionally only Open ones.
func (e *Engine) GetPositions(ctx context.Context, openOnly bool) ([]domain.Position, error) {
	return e.Ledger.Positions(ctx, openOnly)
}

// CreateStrategy persists a strategy definition and activates it when its
// type has a built-in implementation. Parameters of supported types are
// validated before anything is written.
func (e *Engine) CreateStrategy(ctx context.Context, s *domain.Strategy) error {
	var logic strategy.Logic
	if _, ok := e.registry.Get(s.Type); ok {
		l, err := e.registry.New(s.Type, s.Parameters)
		if err != nil {
			return err
		}
		logic = l
	}
	if err := e.meta.CreateStrategy(ctx, s); err != nil {
		return err
	}
	if logic == nil {
		return nil
	}
	return e.Strategies.Register(ctx, s.ID, logic)
}

// CreateBacktest persists a Pending backtest and queues its run.
func (e *Engine) CreateBacktest(ctx context.Context, b *domain.Backtest) error {
	switch {
	case b.StrategyID == "":
		return fmt.Errorf("%w: backtest strategy id is required", domain.ErrInvalidInput)
	case b.Symbol == "":
		return fmt.Errorf("%w: backtest symbol is required", domain.ErrInvalidInput)
	case b.InitialBalance <= 0:
		return fmt.Errorf("%w: initial balance must be positive, got %v", domain.ErrInvalidInput, b.InitialBalance)
	case b.EndTime.Before(b.StartTime):
		return fmt.Errorf("%w: backtest end precedes start", domain.ErrInvalidInput)
	}
	if _, err := e.meta.GetStrategy(ctx, b.StrategyID); err != nil {
		return err
	}
	if err := e.meta.CreateBacktest(ctx, b); err != nil {
		return err
	}
	return e.Backtests.Submit(ctx, b.ID)
}

// Meta exposes the metadata store for read paths.
func (e *Engine) Meta() store.MetadataStore { return e.meta }
