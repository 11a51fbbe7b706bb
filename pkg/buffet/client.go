// Package buffet is the Go SDK for the buffet-server gRPC API.
package buffet

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client provides a Go SDK for interacting with the buffet-server API.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every call that has no earlier deadline. Zero disables
// the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to a buffet-server at addr without transport security.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewClient(conn, opts...)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection. Closing the client does not close
// conn.
func NewClient(conn grpc.ClientConnInterface, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return err
	}
	return Decode(out, resp)
}

// CreateStrategy persists a strategy definition.
func (c *Client) CreateStrategy(ctx context.Context, req CreateStrategyRequest) (*Strategy, error) {
	var s Strategy
	if err := c.call(ctx, MethodCreateStrategy, req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateBacktest creates a Pending backtest and queues its run.
func (c *Client) CreateBacktest(ctx context.Context, req CreateBacktestRequest) (*Backtest, error) {
	var b Backtest
	if err := c.call(ctx, MethodCreateBacktest, req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// RunBacktest queues the run of an existing backtest.
func (c *Client) RunBacktest(ctx context.Context, id string) (*Accepted, error) {
	var a Accepted
	if err := c.call(ctx, MethodRunBacktest, IDRequest{ID: id}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetBacktest retrieves a backtest by ID.
func (c *Client) GetBacktest(ctx context.Context, id string) (*Backtest, error) {
	var b Backtest
	if err := c.call(ctx, MethodGetBacktest, IDRequest{ID: id}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBacktestTrades returns the simulated trades of a backtest.
func (c *Client) ListBacktestTrades(ctx context.Context, backtestID string) ([]BacktestTrade, error) {
	var l TradeList
	if err := c.call(ctx, MethodListBacktestTrades, ListBacktestTradesRequest{BacktestID: backtestID}, &l); err != nil {
		return nil, err
	}
	return l.Trades, nil
}

// MarketDataUpdate feeds one bar to the live strategies and returns the
// signals it produced.
func (c *Client) MarketDataUpdate(ctx context.Context, req MarketDataRequest) ([]Signal, error) {
	var l SignalList
	if err := c.call(ctx, MethodMarketDataUpdate, req, &l); err != nil {
		return nil, err
	}
	return l.Signals, nil
}

// SubmitOrder submits a new order and returns it in its resulting state.
func (c *Client) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*Order, error) {
	var o Order
	if err := c.call(ctx, MethodSubmitOrder, req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.call(ctx, MethodCancelOrder, IDRequest{ID: id}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListPositions retrieves positions, optionally only open ones.
func (c *Client) ListPositions(ctx context.Context, openOnly bool) ([]Position, error) {
	var l PositionList
	if err := c.call(ctx, MethodListPositions, ListPositionsRequest{OpenOnly: openOnly}, &l); err != nil {
		return nil, err
	}
	return l.Positions, nil
}
