package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"buffet/internal/actor"
	"buffet/internal/domain"
	"buffet/internal/store"
	"buffet/internal/strategy"
)

// OrderSink accepts order requests without waiting for their outcome.
// *OrderExecutor implements it.
type OrderSink interface {
	Submit(ctx context.Context, req OrderRequest) error
}

// StrategyExecutor fans market data out to every active strategy instance,
// persists the resulting signals and forwards actionable ones as orders. The
// active set is owned by the executor's mailbox goroutine.
type StrategyExecutor struct {
	signals    store.SignalStore
	strategies store.StrategyStore
	registry   *strategy.Registry
	orders     OrderSink
	quantity   float64
	mailbox    *actor.Mailbox
	log        *slog.Logger

	active map[string]strategy.Logic
}

// NewStrategyExecutor creates a StrategyExecutor that sends orders of
// orderQty units to orders.
func NewStrategyExecutor(signals store.SignalStore, strategies store.StrategyStore, registry *strategy.Registry, orders OrderSink, orderQty float64, opts actor.Options, log *slog.Logger) *StrategyExecutor {
	if log == nil {
		log = slog.Default()
	}
	if orderQty <= 0 {
		orderQty = 1
	}
	log = log.With("component", "strategy_executor")
	return &StrategyExecutor{
		signals:    signals,
		strategies: strategies,
		registry:   registry,
		orders:     orders,
		quantity:   orderQty,
		mailbox:    actor.New("strategy_executor", opts, log),
		log:        log,
		active:     make(map[string]strategy.Logic),
	}
}

// Start launches the executor's mailbox.
func (x *StrategyExecutor) Start(ctx context.Context) { x.mailbox.Start(ctx) }

// Stop halts the executor's mailbox.
func (x *StrategyExecutor) Stop() { x.mailbox.Stop() }

// Register installs logic under id, replacing any instance already there.
func (x *StrategyExecutor) Register(ctx context.Context, id string, logic strategy.Logic) error {
	_, err := actor.Ask(ctx, x.mailbox, func(context.Context) (struct{}, error) {
		x.active[id] = logic
		x.log.Info("strategy registered", "strategy_id", id, "logic", logic.Name())
		return struct{}{}, nil
	})
	return err
}

// Unregister removes the instance registered under id.
func (x *StrategyExecutor) Unregister(ctx context.Context, id string) error {
	_, err := actor.Ask(ctx, x.mailbox, func(context.Context) (struct{}, error) {
		if _, ok := x.active[id]; !ok {
			return struct{}{}, fmt.Errorf("active strategy %q: %w", id, domain.ErrNotFound)
		}
		delete(x.active, id)
		x.log.Info("strategy unregistered", "strategy_id", id)
		return struct{}{}, nil
	})
	return err
}

// Activate loads the persisted strategy and registers a fresh instance
// built from its type and parameters.
func (x *StrategyExecutor) Activate(ctx context.Context, strategyID string) error {
	st, err := x.strategies.GetStrategy(ctx, strategyID)
	if err != nil {
		return err
	}
	logic, err := x.registry.Build(st)
	if err != nil {
		return err
	}
	return x.Register(ctx, st.ID, logic)
}

// ActivateAll registers every persisted strategy with a supported type and
// returns how many were activated. Unsupported or misconfigured strategies
// are logged and skipped.
func (x *StrategyExecutor) ActivateAll(ctx context.Context) (int, error) {
	all, err := x.strategies.ListStrategies(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range all {
		st := &all[i]
		logic, err := x.registry.Build(st)
		if err != nil {
			x.log.Warn("skipping strategy", "strategy_id", st.ID, "type", st.Type, "error", err)
			continue
		}
		if err := x.Register(ctx, st.ID, logic); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Strategies returns the ids of active strategies in ascending order.
func (x *StrategyExecutor) Strategies(ctx context.Context) ([]string, error) {
	return actor.Ask(ctx, x.mailbox, func(context.Context) ([]string, error) {
		return x.sortedIDs(), nil
	})
}

// OnMarketData evaluates bar against every active strategy and returns the
// signals that were persisted.
func (x *StrategyExecutor) OnMarketData(ctx context.Context, bar domain.Bar) ([]domain.Signal, error) {
	return actor.Ask(ctx, x.mailbox, func(jctx context.Context) ([]domain.Signal, error) {
		return x.handleBar(jctx, bar), nil
	})
}

// PublishMarketData enqueues bar for evaluation without waiting.
func (x *StrategyExecutor) PublishMarketData(ctx context.Context, bar domain.Bar) error {
	return x.mailbox.Tell(ctx, func(jctx context.Context) {
		x.handleBar(jctx, bar)
	})
}

func (x *StrategyExecutor) sortedIDs() []string {
	ids := make([]string, 0, len(x.active))
	for id := range x.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (x *StrategyExecutor) handleBar(ctx context.Context, bar domain.Bar) []domain.Signal {
	var out []domain.Signal
	for _, id := range x.sortedIDs() {
		sig, err := x.evaluate(ctx, id, x.active[id], bar)
		if err != nil {
			x.log.Error("dropping strategy result", "strategy_id", id, "symbol", bar.Symbol, "error", err)
			continue
		}
		if sig == nil {
			continue
		}
		out = append(out, *sig)

		side, _ := sig.Type.OrderSide()
		req := OrderRequest{
			SignalID: sig.ID,
			Symbol:   sig.Symbol,
			Side:     side,
			Quantity: x.quantity,
		}
		if err := x.orders.Submit(ctx, req); err != nil {
			x.log.Error("forwarding order request", "strategy_id", id, "signal_id", sig.ID, "error", err)
		}
	}
	return out
}

var errStrategyPanic = errors.New("strategy panicked")

// evaluate feeds bar to one strategy and persists a non-Hold result. A nil
// signal with a nil error means nothing to act on. The signal is stamped with
// the bar time, not the evaluation time; CreatedAt carries the latter.
func (x *StrategyExecutor) evaluate(ctx context.Context, id string, logic strategy.Logic, bar domain.Bar) (sig *domain.Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			sig, err = nil, fmt.Errorf("%w: %v", errStrategyPanic, p)
		}
	}()

	typ, ok := logic.Update(bar)
	if !ok || typ == domain.SignalTypeHold {
		return nil, nil
	}
	if _, actionable := typ.OrderSide(); !actionable {
		return nil, fmt.Errorf("%w: unknown signal type %q", domain.ErrInvalidInput, typ)
	}

	s := &domain.Signal{
		StrategyID: id,
		Symbol:     bar.Symbol,
		Type:       typ,
		Timestamp:  bar.Timestamp,
		Metadata: map[string]string{
			"logic": logic.Name(),
			"close": strconv.FormatFloat(bar.Close, 'f', -1, 64),
		},
	}
	if err := x.signals.SaveSignal(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
