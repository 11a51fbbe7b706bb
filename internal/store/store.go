// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, strategies, signals, orders, positions, and
// backtests.
package store

import (
	"context"
	"encoding/json"
	"time"

	"buffet/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for symbol. Bars with a timestamp
	// already stored replace the existing row.
	WriteBars(ctx context.Context, symbol string, assetType domain.AssetType, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], ascending by
	// timestamp. No data is an empty result, not an error.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// StrategyUpdate carries the mutable strategy fields. Nil fields are left
// unchanged.
type StrategyUpdate struct {
	Name       *string
	Parameters json.RawMessage
}

// StrategyStore persists strategy definitions.
type StrategyStore interface {
	// CreateStrategy inserts s, assigning its ID and timestamps.
	CreateStrategy(ctx context.Context, s *domain.Strategy) error

	// GetStrategy retrieves a strategy by ID.
	GetStrategy(ctx context.Context, id string) (*domain.Strategy, error)

	// ListStrategies returns all strategies, newest first.
	ListStrategies(ctx context.Context) ([]domain.Strategy, error)

	// UpdateStrategy applies upd to the strategy. The type never changes.
	UpdateStrategy(ctx context.Context, id string, upd StrategyUpdate) (*domain.Strategy, error)

	// DeleteStrategy removes a strategy.
	DeleteStrategy(ctx context.Context, id string) error
}

// SignalStore persists and retrieves trading signals.
type SignalStore interface {
	// SaveSignal inserts a new signal, assigning its ID and creation time.
	SaveSignal(ctx context.Context, signal *domain.Signal) error

	// GetSignal retrieves a single signal by ID.
	GetSignal(ctx context.Context, id string) (*domain.Signal, error)

	// ListSignals returns the most recent signals for a strategy, up to
	// limit. An empty strategyID lists all strategies.
	ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error)
}

// OrderStore persists and retrieves order records.
type OrderStore interface {
	// SaveOrder inserts a new order, assigning its ID and timestamps.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns orders newest first. An empty status lists all.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// UpdateOrderStatus moves an Open order to status and returns the
	// updated row. Orders already in a terminal state are left untouched and
	// domain.ErrInvalidTransition is returned.
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
}

// PositionStore persists and retrieves position records.
type PositionStore interface {
	// SavePosition inserts a new position, assigning its ID and timestamps.
	SavePosition(ctx context.Context, pos *domain.Position) error

	// GetPosition retrieves a position by ID.
	GetPosition(ctx context.Context, id string) (*domain.Position, error)

	// FindOpenPosition returns the Open position for (symbol, side), or
	// domain.ErrNotFound.
	FindOpenPosition(ctx context.Context, symbol string, side domain.OrderSide) (*domain.Position, error)

	// UpdatePositionFill writes a merged quantity and average entry price to
	// an Open position.
	UpdatePositionFill(ctx context.Context, id string, qty, avgPrice float64) (*domain.Position, error)

	// ClosePosition transitions an Open position to Closed.
	ClosePosition(ctx context.Context, id string, realizedPnL float64) (*domain.Position, error)

	// ListPositions returns positions newest first, optionally only Open ones.
	ListPositions(ctx context.Context, openOnly bool) ([]domain.Position, error)
}

// BacktestStore persists backtests and their simulated trades.
type BacktestStore interface {
	// CreateBacktest inserts b as Pending, assigning its ID and creation time.
	CreateBacktest(ctx context.Context, b *domain.Backtest) error

	// GetBacktest retrieves a backtest by ID.
	GetBacktest(ctx context.Context, id string) (*domain.Backtest, error)

	// ListBacktests returns all backtests, newest first.
	ListBacktests(ctx context.Context) ([]domain.Backtest, error)

	// UpdateBacktestStatus moves a backtest forward to status, recording
	// errMsg. Backward moves return domain.ErrInvalidTransition.
	UpdateBacktestStatus(ctx context.Context, id string, status domain.BacktestStatus, errMsg string) error

	// CompleteBacktest persists the result metrics and marks the backtest
	// Completed.
	CompleteBacktest(ctx context.Context, id string, res domain.BacktestResult) error

	// CreateBacktestTrade inserts an open simulated trade.
	CreateBacktestTrade(ctx context.Context, t *domain.BacktestTrade) error

	// CloseBacktestTrade populates the exit fields of a trade.
	CloseBacktestTrade(ctx context.Context, id string, exitPrice float64, exitTime time.Time, pnl, pctReturn float64) error

	// ListBacktestTrades returns a backtest's trades ordered by entry time.
	ListBacktestTrades(ctx context.Context, backtestID string) ([]domain.BacktestTrade, error)
}

// MetadataStore is the full relational surface the core depends on.
type MetadataStore interface {
	StrategyStore
	SignalStore
	OrderStore
	PositionStore
	BacktestStore
}
