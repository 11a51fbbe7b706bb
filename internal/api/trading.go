package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"buffet/internal/domain"
	"buffet/internal/engine"
	"buffet/pkg/buffet"
)

var _ TradingServer = (*TradingService)(nil)

// TradingService implements the buffet.v1.Trading endpoints on top of an
// Engine.
type TradingService struct {
	engine *engine.Engine
	now    func() time.Time
	log    *slog.Logger
}

// NewTradingService creates a TradingService backed by the given engine.
func NewTradingService(e *engine.Engine, log *slog.Logger) *TradingService {
	if log == nil {
		log = slog.Default()
	}
	return &TradingService{engine: e, now: time.Now, log: log}
}

func decode(in *structpb.Struct, v any) error {
	if err := buffet.Decode(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := buffet.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func requireID(id, field string) error {
	if strings.TrimSpace(id) == "" {
		return status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return nil
}

// CreateStrategy persists a strategy and activates it when its type is
// supported.
func (s *TradingService) CreateStrategy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.CreateStrategyRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	typ, err := domain.ParseStrategyType(req.Type)
	if err != nil {
		return nil, toStatus(err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	st := &domain.Strategy{
		Name:       req.Name,
		Type:       typ,
		Parameters: []byte(req.Parameters),
	}
	if err := s.engine.CreateStrategy(ctx, st); err != nil {
		return nil, toStatus(err)
	}
	return encode(strategyToWire(st))
}

// CreateBacktest creates a Pending backtest and queues its run.
func (s *TradingService) CreateBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.CreateBacktestRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	b := &domain.Backtest{
		StrategyID:     req.StrategyID,
		Symbol:         strings.ToUpper(strings.TrimSpace(req.Symbol)),
		StartTime:      req.StartTime.UTC(),
		EndTime:        req.EndTime.UTC(),
		InitialBalance: req.InitialBalance,
	}
	if err := s.engine.CreateBacktest(ctx, b); err != nil {
		return nil, toStatus(err)
	}
	return encode(backtestToWire(b))
}

// RunBacktest queues the run of an existing backtest and returns at once.
func (s *TradingService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := requireID(req.ID, "id"); err != nil {
		return nil, err
	}
	b, err := s.engine.Meta().GetBacktest(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if b.Status.Terminal() {
		return nil, toStatus(fmt.Errorf("backtest %s is %s: %w", b.ID, b.Status, domain.ErrInvalidTransition))
	}
	if err := s.engine.Backtests.Submit(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return encode(buffet.Accepted{ID: req.ID, Status: string(b.Status)})
}

// GetBacktest retrieves a backtest by ID.
func (s *TradingService) GetBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := requireID(req.ID, "id"); err != nil {
		return nil, err
	}
	b, err := s.engine.Meta().GetBacktest(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(backtestToWire(b))
}

// ListBacktestTrades returns the simulated trades of a backtest.
func (s *TradingService) ListBacktestTrades(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.ListBacktestTradesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := requireID(req.BacktestID, "backtest_id"); err != nil {
		return nil, err
	}
	if _, err := s.engine.Meta().GetBacktest(ctx, req.BacktestID); err != nil {
		return nil, toStatus(err)
	}
	trades, err := s.engine.Meta().ListBacktestTrades(ctx, req.BacktestID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := buffet.TradeList{Trades: make([]buffet.BacktestTrade, 0, len(trades))}
	for i := range trades {
		out.Trades = append(out.Trades, tradeToWire(&trades[i]))
	}
	return encode(out)
}

// MarketDataUpdate evaluates one bar against the active strategies and
// returns the signals it produced.
func (s *TradingService) MarketDataUpdate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.MarketDataRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	bar := domain.Bar{
		Symbol:    symbol,
		Timestamp: ts.UTC(),
		Open:      req.Open,
		High:      req.High,
		Low:       req.Low,
		Close:     req.Close,
		Volume:    req.Volume,
	}

	signals, err := s.engine.Strategies.OnMarketData(ctx, bar)
	if err != nil {
		return nil, toStatus(err)
	}
	out := buffet.SignalList{Signals: make([]buffet.Signal, 0, len(signals))}
	for i := range signals {
		out.Signals = append(out.Signals, signalToWire(&signals[i]))
	}
	return encode(out)
}

// SubmitOrder executes an order and returns it in its resulting state.
func (s *TradingService) SubmitOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.SubmitOrderRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	side, err := domain.ParseOrderSide(req.Side)
	if err != nil {
		return nil, toStatus(err)
	}
	o, err := s.engine.SubmitOrder(ctx, engine.OrderRequest{
		SignalID:   req.SignalID,
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:       side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(orderToWire(o))
}

// CancelOrder cancels an open order.
func (s *TradingService) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := requireID(req.ID, "id"); err != nil {
		return nil, err
	}
	o, err := s.engine.CancelOrder(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(orderToWire(o))
}

// ListPositions returns positions newest first.
func (s *TradingService) ListPositions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req buffet.ListPositionsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	positions, err := s.engine.GetPositions(ctx, req.OpenOnly)
	if err != nil {
		return nil, toStatus(err)
	}
	out := buffet.PositionList{Positions: make([]buffet.Position, 0, len(positions))}
	for i := range positions {
		out.Positions = append(out.Positions, positionToWire(&positions[i]))
	}
	return encode(out)
}

// ---------------------------------------------------------------------------
// Domain to wire conversion
// ---------------------------------------------------------------------------

func strategyToWire(st *domain.Strategy) buffet.Strategy {
	var params json.RawMessage
	if len(st.Parameters) > 0 {
		params = json.RawMessage(st.Parameters)
	}
	return buffet.Strategy{
		ID:         st.ID,
		Name:       st.Name,
		Type:       string(st.Type),
		Parameters: params,
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.UpdatedAt,
	}
}

func signalToWire(sig *domain.Signal) buffet.Signal {
	return buffet.Signal{
		ID:         sig.ID,
		StrategyID: sig.StrategyID,
		Symbol:     sig.Symbol,
		Type:       string(sig.Type),
		Timestamp:  sig.Timestamp,
		Metadata:   sig.Metadata,
	}
}

func orderToWire(o *domain.Order) buffet.Order {
	return buffet.Order{
		ID:         o.ID,
		SignalID:   o.SignalID,
		Symbol:     o.Symbol,
		Side:       string(o.Side),
		Quantity:   o.Quantity,
		LimitPrice: o.LimitPrice,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func positionToWire(p *domain.Position) buffet.Position {
	return buffet.Position{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL:   p.RealizedPnL,
		Status:        string(p.Status),
		OpenedAt:      p.OpenedAt,
		ClosedAt:      p.ClosedAt,
	}
}

func backtestToWire(b *domain.Backtest) buffet.Backtest {
	return buffet.Backtest{
		ID:             b.ID,
		StrategyID:     b.StrategyID,
		Symbol:         b.Symbol,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		InitialBalance: b.InitialBalance,
		FinalBalance:   b.FinalBalance,
		TotalReturn:    b.TotalReturn,
		SharpeRatio:    b.SharpeRatio,
		MaxDrawdown:    b.MaxDrawdown,
		TotalTrades:    b.TotalTrades,
		WinRate:        b.WinRate,
		Status:         string(b.Status),
		ErrorMessage:   b.ErrorMessage,
		CreatedAt:      b.CreatedAt,
	}
}

func tradeToWire(t *domain.BacktestTrade) buffet.BacktestTrade {
	return buffet.BacktestTrade{
		ID:               t.ID,
		BacktestID:       t.BacktestID,
		Symbol:           t.Symbol,
		Side:             string(t.Side),
		Quantity:         t.Quantity,
		EntryPrice:       t.EntryPrice,
		EntryTime:        t.EntryTime,
		ExitPrice:        t.ExitPrice,
		ExitTime:         t.ExitTime,
		PnL:              t.PnL,
		PercentageReturn: t.PercentageReturn,
	}
}
