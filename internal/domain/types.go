// Package domain defines the core types shared across the buffet trading
// system: bars, strategies, signals, orders, positions, and backtests.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// AssetType classifies the instrument a bar series belongs to.
type AssetType string

const (
	AssetTypeStock     AssetType = "stock"
	AssetTypeCrypto    AssetType = "crypto"
	AssetTypeForex     AssetType = "forex"
	AssetTypeCommodity AssetType = "commodity"
	AssetTypeIndex     AssetType = "index"
)

// Valid reports whether a is a known asset type.
func (a AssetType) Valid() bool {
	switch a {
	case AssetTypeStock, AssetTypeCrypto, AssetTypeForex, AssetTypeCommodity, AssetTypeIndex:
		return true
	}
	return false
}

// Bar is one OHLCV observation for a symbol. Bars are immutable once built.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ---------------------------------------------------------------------------
// Strategies and signals
// ---------------------------------------------------------------------------

// StrategyType selects the Strategy Logic variant that interprets a
// strategy's parameter document.
type StrategyType string

const (
	StrategyTypeRuleBased   StrategyType = "rule_based"
	StrategyTypeStatistical StrategyType = "statistical"
	StrategyTypeModelBased  StrategyType = "model_based"
)

// ParseStrategyType normalises s into a StrategyType. The legacy names
// "classical" and "ml_based" are accepted as aliases.
func ParseStrategyType(s string) (StrategyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rule_based", "classical":
		return StrategyTypeRuleBased, nil
	case "statistical":
		return StrategyTypeStatistical, nil
	case "model_based", "ml_based":
		return StrategyTypeModelBased, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy type %q", ErrInvalidInput, s)
	}
}

// Strategy is the persisted description of a trading strategy. Type is fixed
// at creation; Name and Parameters may be updated.
type Strategy struct {
	ID         string
	Name       string
	Type       StrategyType
	Parameters json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SignalType is a strategy's directional recommendation.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
	SignalTypeHold SignalType = "hold"
)

// OrderSide maps an actionable signal to an order side. Hold has no side.
func (t SignalType) OrderSide() (OrderSide, bool) {
	switch t {
	case SignalTypeBuy:
		return OrderSideBuy, true
	case SignalTypeSell:
		return OrderSideSell, true
	default:
		return "", false
	}
}

// Signal is one persisted, non-Hold strategy evaluation. Signals are
// append-only.
type Signal struct {
	ID         string
	StrategyID string
	Symbol     string
	Type       SignalType
	Timestamp  time.Time
	Metadata   map[string]string
	CreatedAt  time.Time
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ParseOrderSide normalises s into an OrderSide.
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return OrderSideBuy, nil
	case "sell":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("%w: invalid order side %q", ErrInvalidInput, s)
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move from s to next. Only Open
// orders move, and only into a terminal state.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderStatusOpen && next.Terminal()
}

// Order is a persisted order. Exactly one order exists per order request.
type Order struct {
	ID         string
	SignalID   string // empty when the order did not originate from a signal
	Symbol     string
	Side       OrderSide
	Quantity   float64
	LimitPrice *float64
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position aggregates fills for one (symbol, side). At most one Open
// position exists per pair; closed positions are never reopened.
type Position struct {
	ID            string
	Symbol        string
	Side          OrderSide
	Quantity      float64
	AvgEntryPrice float64
	UnrealizedPnL float64
	RealizedPnL   float64
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      *time.Time
	UpdatedAt     time.Time
}

// MergeFill returns the quantity and volume-weighted average price that
// result from adding a fill of qty at price to p.
func (p Position) MergeFill(qty, price float64) (float64, float64, error) {
	if qty <= 0 {
		return 0, 0, fmt.Errorf("%w: fill quantity must be positive, got %v", ErrInvalidInput, qty)
	}
	total := p.Quantity + qty
	if total <= 0 {
		return 0, 0, fmt.Errorf("%w: merged quantity must be positive, got %v", ErrInvalidInput, total)
	}
	avg := (p.AvgEntryPrice*p.Quantity + price*qty) / total
	return total, avg, nil
}

// ---------------------------------------------------------------------------
// Backtests
// ---------------------------------------------------------------------------

// BacktestStatus is the lifecycle state of a backtest.
type BacktestStatus string

const (
	BacktestStatusPending   BacktestStatus = "pending"
	BacktestStatusRunning   BacktestStatus = "running"
	BacktestStatusCompleted BacktestStatus = "completed"
	BacktestStatusFailed    BacktestStatus = "failed"
)

func (s BacktestStatus) rank() int {
	switch s {
	case BacktestStatusPending:
		return 0
	case BacktestStatusRunning:
		return 1
	case BacktestStatusCompleted, BacktestStatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether s is Completed or Failed.
func (s BacktestStatus) Terminal() bool {
	return s.rank() == 2
}

// CanTransition reports whether a backtest may move from s to next. Status
// only moves forward; terminal states never change.
func (s BacktestStatus) CanTransition(next BacktestStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to >= 0 && to > from
}

// Backtest is a persisted historical simulation request and its results.
type Backtest struct {
	ID             string
	StrategyID     string
	Symbol         string
	StartTime      time.Time
	EndTime        time.Time
	InitialBalance float64
	FinalBalance   *float64
	TotalReturn    *float64
	SharpeRatio    *float64
	MaxDrawdown    *float64
	TotalTrades    *int
	WinRate        *float64
	Status         BacktestStatus
	ErrorMessage   string
	CreatedAt      time.Time
}

// BacktestResult holds the summary metrics produced by a completed run.
type BacktestResult struct {
	FinalBalance float64
	TotalReturn  float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalTrades  int
	WinRate      float64
}

// BacktestTrade is one simulated round trip. Exit fields are nil until the
// trade closes.
type BacktestTrade struct {
	ID               string
	BacktestID       string
	Symbol           string
	Side             OrderSide
	Quantity         float64
	EntryPrice       float64
	EntryTime        time.Time
	ExitPrice        *float64
	ExitTime         *time.Time
	PnL              *float64
	PercentageReturn *float64
}

// Closed reports whether the trade has exit fields populated.
func (t BacktestTrade) Closed() bool {
	return t.ExitTime != nil
}
