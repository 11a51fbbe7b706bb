package buffet

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "buffet.v1.Trading"

// Method names of the Trading service.
const (
	MethodCreateStrategy     = "CreateStrategy"
	MethodCreateBacktest     = "CreateBacktest"
	MethodRunBacktest        = "RunBacktest"
	MethodGetBacktest        = "GetBacktest"
	MethodListBacktestTrades = "ListBacktestTrades"
	MethodMarketDataUpdate   = "MarketDataUpdate"
	MethodSubmitOrder        = "SubmitOrder"
	MethodCancelOrder        = "CancelOrder"
	MethodListPositions      = "ListPositions"
)

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// CreateStrategyRequest defines a new strategy. Parameters is a JSON object
// interpreted by the strategy type.
type CreateStrategyRequest struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// CreateBacktestRequest defines a backtest run.
type CreateBacktestRequest struct {
	StrategyID     string    `json:"strategy_id"`
	Symbol         string    `json:"symbol"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	InitialBalance float64   `json:"initial_balance"`
}

// IDRequest addresses a single record.
type IDRequest struct {
	ID string `json:"id"`
}

// ListBacktestTradesRequest selects the trades of one backtest.
type ListBacktestTradesRequest struct {
	BacktestID string `json:"backtest_id"`
}

// MarketDataRequest carries one bar. A zero Timestamp means "now".
type MarketDataRequest struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SubmitOrderRequest places an order. A nil LimitPrice means a market order.
type SubmitOrderRequest struct {
	SignalID   string   `json:"signal_id,omitempty"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Quantity   float64  `json:"quantity"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
}

// ListPositionsRequest filters positions.
type ListPositionsRequest struct {
	OpenOnly bool `json:"open_only"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// Strategy is a persisted strategy definition.
type Strategy struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Signal is a persisted strategy decision.
type Signal struct {
	ID         string            `json:"id"`
	StrategyID string            `json:"strategy_id"`
	Symbol     string            `json:"symbol"`
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SignalList wraps the signals produced by one market-data update.
type SignalList struct {
	Signals []Signal `json:"signals"`
}

// Order is a persisted order.
type Order struct {
	ID         string    `json:"id"`
	SignalID   string    `json:"signal_id,omitempty"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	LimitPrice *float64  `json:"limit_price,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Position is an aggregated holding.
type Position struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	Quantity      float64    `json:"quantity"`
	AvgEntryPrice float64    `json:"avg_entry_price"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	RealizedPnL   float64    `json:"realized_pnl"`
	Status        string     `json:"status"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// PositionList wraps a list of positions.
type PositionList struct {
	Positions []Position `json:"positions"`
}

// Backtest is a backtest record. Result fields are nil until the run
// completes.
type Backtest struct {
	ID             string    `json:"id"`
	StrategyID     string    `json:"strategy_id"`
	Symbol         string    `json:"symbol"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	InitialBalance float64   `json:"initial_balance"`
	FinalBalance   *float64  `json:"final_balance,omitempty"`
	TotalReturn    *float64  `json:"total_return,omitempty"`
	SharpeRatio    *float64  `json:"sharpe_ratio,omitempty"`
	MaxDrawdown    *float64  `json:"max_drawdown,omitempty"`
	TotalTrades    *int      `json:"total_trades,omitempty"`
	WinRate        *float64  `json:"win_rate,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BacktestTrade is one simulated round trip.
type BacktestTrade struct {
	ID               string     `json:"id"`
	BacktestID       string     `json:"backtest_id"`
	Symbol           string     `json:"symbol"`
	Side             string     `json:"side"`
	Quantity         float64    `json:"quantity"`
	EntryPrice       float64    `json:"entry_price"`
	EntryTime        time.Time  `json:"entry_time"`
	ExitPrice        *float64   `json:"exit_price,omitempty"`
	ExitTime         *time.Time `json:"exit_time,omitempty"`
	PnL              *float64   `json:"pnl,omitempty"`
	PercentageReturn *float64   `json:"percentage_return,omitempty"`
}

// TradeList wraps the trades of one backtest.
type TradeList struct {
	Trades []BacktestTrade `json:"trades"`
}

// Accepted acknowledges a request whose work continues in the background.
type Accepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ---------------------------------------------------------------------------
// Struct codec
// ---------------------------------------------------------------------------

// Encode converts v into a structpb.Struct through its JSON form. v must
// encode as a JSON object.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from s through its JSON form. A nil s leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}
