package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"buffet/internal/actor"
	"buffet/internal/domain"
	"buffet/internal/metrics"
	"buffet/internal/store"
)

// BacktestMetaStore is the slice of the metadata store a Backtester needs.
type BacktestMetaStore interface {
	store.StrategyStore
	store.BacktestStore
}

// Backtester replays historical bar data through a private strategy instance
// and computes performance metrics. Runs are processed one at a time on the
// Backtester's mailbox.
type Backtester struct {
	meta         BacktestMetaStore
	bars         store.BarStore
	registry     *Registry
	riskFreeRate float64
	mailbox      *actor.Mailbox
	log          *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from barStore, records
// results in meta, and builds strategies through registry.
func NewBacktester(meta BacktestMetaStore, barStore store.BarStore, registry *Registry, riskFreeRate float64, opts actor.Options, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "backtester")
	return &Backtester{
		meta:         meta,
		bars:         barStore,
		registry:     registry,
		riskFreeRate: riskFreeRate,
		mailbox:      actor.New("backtester", opts, log),
		log:          log,
	}
}

// Start launches the Backtester's mailbox.
func (bt *Backtester) Start(ctx context.Context) { bt.mailbox.Start(ctx) }

// Stop halts the mailbox after the in-flight run.
func (bt *Backtester) Stop() { bt.mailbox.Stop() }

// Submit enqueues a run of backtest id without waiting for it. Failures are
// recorded on the backtest row and logged.
func (bt *Backtester) Submit(ctx context.Context, id string) error {
	return bt.mailbox.Tell(ctx, func(jctx context.Context) {
		if _, err := bt.run(jctx, id); err != nil {
			bt.log.Error("backtest failed", "backtest_id", id, "error", err)
		}
	})
}

// Run executes backtest id and returns the final record. The wait is bounded
// by the mailbox timeout; on expiry the run still completes in the
// background.
func (bt *Backtester) Run(ctx context.Context, id string) (*domain.Backtest, error) {
	return actor.Ask(ctx, bt.mailbox, func(jctx context.Context) (*domain.Backtest, error) {
		return bt.run(jctx, id)
	})
}

func (bt *Backtester) run(ctx context.Context, id string) (*domain.Backtest, error) {
	b, err := bt.meta.GetBacktest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading backtest %s: %w", id, err)
	}
	if b.Status.Terminal() {
		return nil, fmt.Errorf("backtest %s is already %s: %w", id, b.Status, domain.ErrInvalidTransition)
	}

	log := bt.log.With("backtest_id", id, "symbol", b.Symbol)
	if b.Status != domain.BacktestStatusRunning {
		if err := bt.meta.UpdateBacktestStatus(ctx, id, domain.BacktestStatusRunning, ""); err != nil {
			log.Warn("marking backtest running", "error", err)
		}
	}

	res, err := bt.execute(ctx, b, log)
	if err != nil {
		return nil, bt.fail(ctx, id, err, log)
	}
	if err := bt.meta.CompleteBacktest(ctx, id, *res); err != nil {
		return nil, bt.fail(ctx, id, fmt.Errorf("persisting results: %w", err), log)
	}

	log.Info("backtest completed",
		"final_balance", res.FinalBalance,
		"total_return", res.TotalReturn,
		"sharpe", res.SharpeRatio,
		"max_drawdown", res.MaxDrawdown,
		"trades", res.TotalTrades,
	)
	return bt.meta.GetBacktest(ctx, id)
}

// failWriteTimeout bounds the Failed write once the run's context is gone.
const failWriteTimeout = 5 * time.Second

// fail records cause on the backtest and returns it. The write detaches from
// ctx so a run interrupted by shutdown does not stay Running.
func (bt *Backtester) fail(ctx context.Context, id string, cause error, log *slog.Logger) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	if err := bt.meta.UpdateBacktestStatus(wctx, id, domain.BacktestStatusFailed, cause.Error()); err != nil {
		log.Error("marking backtest failed", "error", err, "cause", cause)
	}
	return cause
}

func (bt *Backtester) execute(ctx context.Context, b *domain.Backtest, log *slog.Logger) (*domain.BacktestResult, error) {
	st, err := bt.meta.GetStrategy(ctx, b.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("loading strategy %s: %w", b.StrategyID, err)
	}
	logic, err := bt.registry.Build(st)
	if err != nil {
		return nil, err
	}

	bars, err := bt.bars.ReadBars(ctx, b.Symbol, b.StartTime, b.EndTime)
	if err != nil {
		return nil, fmt.Errorf("reading bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data found for %s between %s and %s",
			domain.ErrInvalidInput, b.Symbol, b.StartTime.Format("2006-01-02"), b.EndTime.Format("2006-01-02"))
	}

	sim := &simulation{
		backtest: b,
		trades:   bt.meta,
		log:      log,
		balance:  b.InitialBalance,
		equity:   make([]float64, 0, len(bars)+1),
	}
	sim.equity = append(sim.equity, b.InitialBalance)

	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest interrupted: %w", err)
		}
		if sig, ok := logic.Update(bar); ok {
			sim.apply(ctx, sig, bar)
		}
		sim.mark(bar)
	}

	final := sim.equity[len(sim.equity)-1]
	return &domain.BacktestResult{
		FinalBalance: final,
		TotalReturn:  metrics.TotalReturn(b.InitialBalance, final),
		SharpeRatio:  metrics.SharpeRatio(sim.returns, bt.riskFreeRate),
		MaxDrawdown:  metrics.MaxDrawdown(sim.equity),
		TotalTrades:  len(sim.returns),
		WinRate:      metrics.WinRate(sim.returns),
	}, nil
}

// simulation is the single-position, all-in bookkeeping of one run.
type simulation struct {
	backtest *domain.Backtest
	trades   store.BacktestStore
	log      *slog.Logger

	balance    float64
	qty        float64
	entryPrice float64
	open       *domain.BacktestTrade // nil when flat or when the entry was not persisted
	equity     []float64
	returns    []float64
}

func (s *simulation) apply(ctx context.Context, sig domain.SignalType, bar domain.Bar) {
	switch {
	case sig == domain.SignalTypeBuy && s.qty == 0:
		if bar.Close <= 0 {
			s.log.Warn("skipping buy on non-positive close", "time", bar.Timestamp, "close", bar.Close)
			return
		}
		s.qty = s.balance / bar.Close
		s.balance = 0
		s.entryPrice = bar.Close

		trade := &domain.BacktestTrade{
			BacktestID: s.backtest.ID,
			Symbol:     s.backtest.Symbol,
			Side:       domain.OrderSideBuy,
			Quantity:   s.qty,
			EntryPrice: bar.Close,
			EntryTime:  bar.Timestamp,
		}
		if err := s.trades.CreateBacktestTrade(ctx, trade); err != nil {
			s.log.Error("recording backtest entry", "error", err, "time", bar.Timestamp)
			s.open = nil
			return
		}
		s.open = trade

	case sig == domain.SignalTypeSell && s.qty > 0:
		qty := s.qty
		s.balance = qty * bar.Close
		s.qty = 0

		// An entry that was never persisted is not a tracked trade.
		if s.open == nil {
			return
		}
		pnl := (bar.Close - s.entryPrice) * qty
		pct := (bar.Close - s.entryPrice) / s.entryPrice
		s.returns = append(s.returns, pct)

		if err := s.trades.CloseBacktestTrade(ctx, s.open.ID, bar.Close, bar.Timestamp, pnl, pct); err != nil {
			s.log.Error("recording backtest exit", "error", err, "trade_id", s.open.ID)
		}
		s.open = nil
	}
}

// mark appends the mark-to-market equity after bar.
func (s *simulation) mark(bar domain.Bar) {
	s.equity = append(s.equity, s.balance+s.qty*bar.Close)
}
