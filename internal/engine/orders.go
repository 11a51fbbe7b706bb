package engine

import (
	"context"
	"errors"
	"log/slog"

	"buffet/internal/actor"
	"buffet/internal/broker"
	"buffet/internal/domain"
	"buffet/internal/store"
)

var errNoFill = errors.New("broker returned no fill")

// OrderRequest is an intent to trade. A nil LimitPrice means a market order.
type OrderRequest struct {
	SignalID   string
	Symbol     string
	Side       domain.OrderSide
	Quantity   float64
	LimitPrice *float64
}

// FillRecorder receives completed fills. *PositionLedger implements it.
type FillRecorder interface {
	OpenOrUpdate(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64) (*domain.Position, error)
}

// OrderExecutor turns order requests into persisted orders, routes them to a
// broker and reconciles the outcome. Requests are processed one at a time on
// its mailbox.
type OrderExecutor struct {
	orders  store.OrderStore
	broker  broker.Broker
	fills   FillRecorder
	risk    *RiskManager
	mailbox *actor.Mailbox
	log     *slog.Logger
}

// NewOrderExecutor creates an OrderExecutor. A nil risk manager applies the
// default checks without a quantity cap.
func NewOrderExecutor(orders store.OrderStore, b broker.Broker, fills FillRecorder, risk *RiskManager, opts actor.Options, log *slog.Logger) *OrderExecutor {
	if log == nil {
		log = slog.Default()
	}
	if risk == nil {
		risk = NewRiskManager(0)
	}
	log = log.With("component", "order_executor", "broker", b.Name())
	return &OrderExecutor{
		orders:  orders,
		broker:  b,
		fills:   fills,
		risk:    risk,
		mailbox: actor.New("order_executor", opts, log),
		log:     log,
	}
}

// Start launches the executor's mailbox.
func (e *OrderExecutor) Start(ctx context.Context) { e.mailbox.Start(ctx) }

// Stop halts the executor's mailbox.
func (e *OrderExecutor) Stop() { e.mailbox.Stop() }

// Execute processes req and returns the resulting order. Every request
// persists exactly one order. Risk violations and broker rejections are a
// normal outcome: the order comes back Rejected with a nil error.
func (e *OrderExecutor) Execute(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	return actor.Ask(ctx, e.mailbox, func(jctx context.Context) (*domain.Order, error) {
		return e.execute(jctx, req)
	})
}

// Submit enqueues req without waiting for the outcome.
func (e *OrderExecutor) Submit(ctx context.Context, req OrderRequest) error {
	return e.mailbox.Tell(ctx, func(jctx context.Context) {
		if _, err := e.execute(jctx, req); err != nil {
			e.log.Error("order request failed", "symbol", req.Symbol, "side", req.Side, "signal_id", req.SignalID, "error", err)
		}
	})
}

// Cancel moves an Open order to Cancelled.
func (e *OrderExecutor) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	return actor.Ask(ctx, e.mailbox, func(jctx context.Context) (*domain.Order, error) {
		o, err := e.orders.UpdateOrderStatus(jctx, orderID, domain.OrderStatusCancelled)
		if err != nil {
			return nil, err
		}
		e.log.Info("order cancelled", "order_id", orderID)
		return o, nil
	})
}

func (e *OrderExecutor) execute(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	order := &domain.Order{
		SignalID:   req.SignalID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     domain.OrderStatusOpen,
	}
	if err := e.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	log := e.log.With("order_id", order.ID, "symbol", order.Symbol, "side", order.Side)

	if err := e.risk.CheckOrder(ctx, req); err != nil {
		log.Warn("order failed risk checks", "reason", err)
		return e.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusRejected)
	}

	fill, err := e.submit(ctx, req)
	if err != nil {
		var rej *broker.RejectionError
		if errors.As(err, &rej) {
			log.Warn("order rejected", "reason", rej.Reason)
		} else {
			log.Error("broker error", "error", err)
		}
		return e.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusRejected)
	}

	if !fill.Filled {
		log.Info("order partially filled, leaving open",
			"filled_qty", fill.FillQuantity, "price", fill.FillPrice, "reason", fill.RejectionReason)
		return order, nil
	}

	filled, err := e.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusFilled)
	if err != nil {
		return nil, err
	}
	log.Info("order filled", "qty", fill.FillQuantity, "price", fill.FillPrice)

	if e.fills != nil {
		if _, err := e.fills.OpenOrUpdate(ctx, order.Symbol, order.Side, fill.FillQuantity, fill.FillPrice); err != nil {
			log.Error("recording fill in position ledger", "error", err)
		}
	}
	return filled, nil
}

func (e *OrderExecutor) submit(ctx context.Context, req OrderRequest) (*broker.FillResult, error) {
	var (
		fill *broker.FillResult
		err  error
	)
	if req.LimitPrice == nil {
		fill, err = e.broker.SubmitMarketOrder(ctx, req.Symbol, req.Side, req.Quantity)
	} else {
		fill, err = e.broker.SubmitLimitOrder(ctx, req.Symbol, req.Side, req.Quantity, *req.LimitPrice)
	}
	if err == nil && fill == nil {
		err = errNoFill
	}
	return fill, err
}
