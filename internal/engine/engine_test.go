package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"buffet/internal/actor"
	"buffet/internal/broker"
	"buffet/internal/domain"
	"buffet/internal/store"
	"buffet/internal/strategy/builtins"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "buffet.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startLedger(t *testing.T, s store.PositionStore) *PositionLedger {
	t.Helper()
	l := NewPositionLedger(s, actor.DefaultOptions(), quietLogger())
	l.Start(context.Background())
	t.Cleanup(l.Stop)
	return l
}

func startOrders(t *testing.T, s store.OrderStore, b broker.Broker, fills FillRecorder, risk *RiskManager) *OrderExecutor {
	t.Helper()
	e := NewOrderExecutor(s, b, fills, risk, actor.DefaultOptions(), quietLogger())
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// ---------------------------------------------------------------------------
// Risk
// ---------------------------------------------------------------------------

func TestRiskManagerCheckOrder(t *testing.T) {
	rm := NewRiskManager(100)
	neg := -1.0
	ok := 10.0

	tests := []struct {
		name    string
		req     OrderRequest
		wantErr bool
	}{
		{"market", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 10}, false},
		{"limit", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideSell, Quantity: 1, LimitPrice: &ok}, false},
		{"no symbol", OrderRequest{Side: domain.OrderSideBuy, Quantity: 1}, true},
		{"bad side", OrderRequest{Symbol: "AAPL", Side: "hold", Quantity: 1}, true},
		{"zero qty", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy}, true},
		{"negative limit", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 1, LimitPrice: &neg}, true},
		{"over cap", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 101}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rm.CheckOrder(context.Background(), tt.req)
			if tt.wantErr != (err != nil) {
				t.Fatalf("CheckOrder err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if err := NewRiskManager(0).CheckOrder(context.Background(), OrderRequest{Symbol: "A", Side: domain.OrderSideBuy, Quantity: 1e9}); err != nil {
		t.Errorf("uncapped CheckOrder err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Position ledger
// ---------------------------------------------------------------------------

func TestLedgerOpenOnEmpty(t *testing.T) {
	l := startLedger(t, newTestStore(t))

	p, err := l.OpenOrUpdate(context.Background(), "AAPL", domain.OrderSideBuy, 5, 123.45)
	if err != nil {
		t.Fatalf("OpenOrUpdate: %v", err)
	}
	if p.Quantity != 5 || p.AvgEntryPrice != 123.45 || p.Status != domain.PositionStatusOpen {
		t.Errorf("position = %+v, want 5 @ 123.45 open", p)
	}
}

func TestLedgerWeightedAverage(t *testing.T) {
	fills := [][2]float64{{10, 100}, {5, 110}}
	want := (100.0*10 + 110.0*5) / 15

	for name, order := range map[string][]int{"forward": {0, 1}, "reverse": {1, 0}} {
		t.Run(name, func(t *testing.T) {
			l := startLedger(t, newTestStore(t))
			ctx := context.Background()

			var p *domain.Position
			var err error
			for i, idx := range order {
				p, err = l.OpenOrUpdate(ctx, "AAPL", domain.OrderSideBuy, fills[idx][0], fills[idx][1])
				if err != nil {
					t.Fatalf("OpenOrUpdate #%d: %v", i, err)
				}
				if i == 0 && p.AvgEntryPrice != fills[idx][1] {
					t.Errorf("intermediate avg = %v, want %v", p.AvgEntryPrice, fills[idx][1])
				}
			}
			if p.Quantity != 15 || !approx(p.AvgEntryPrice, want) {
				t.Errorf("aggregate = %v @ %v, want 15 @ %v", p.Quantity, p.AvgEntryPrice, want)
			}
		})
	}
}

func TestLedgerConcurrentFillsSinglePosition(t *testing.T) {
	s := newTestStore(t)
	l := startLedger(t, s)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.OpenOrUpdate(ctx, "AAPL", domain.OrderSideBuy, 1, 100); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("OpenOrUpdate: %v", err)
	}

	open, err := l.Positions(ctx, true)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(open) != 1 || open[0].Quantity != n {
		t.Errorf("open positions = %+v, want one with qty %d", open, n)
	}
}

func TestLedgerSidesAreSeparate(t *testing.T) {
	l := startLedger(t, newTestStore(t))
	ctx := context.Background()

	if _, err := l.OpenOrUpdate(ctx, "AAPL", domain.OrderSideBuy, 1, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := l.OpenOrUpdate(ctx, "AAPL", domain.OrderSideSell, 2, 99); err != nil {
		t.Fatal(err)
	}
	open, _ := l.Positions(ctx, true)
	if len(open) != 2 {
		t.Errorf("got %d open positions, want 2", len(open))
	}
}

func TestLedgerCloseNeverReopens(t *testing.T) {
	l := startLedger(t, newTestStore(t))
	ctx := context.Background()

	first, err := l.OpenOrUpdate(ctx, "AAPL", domain.OrderSideBuy, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	closed, err := l.Close(ctx, first.ID, 12.5)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != domain.PositionStatusClosed || closed.ClosedAt == nil {
		t.Errorf("closed = %+v", closed)
	}
	if _, err := l.Close(ctx, first.ID, 0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second Close err = %v, want ErrInvalidTransition", err)
	}

	second, err := l.OpenOrUpdate(ctx, "AAPL", domain.OrderSideBuy, 2, 90)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID || second.Quantity != 2 {
		t.Errorf("fill after close = %+v, want a new position", second)
	}
}

func TestLedgerRejectsNonPositiveFill(t *testing.T) {
	l := startLedger(t, newTestStore(t))
	if _, err := l.OpenOrUpdate(context.Background(), "AAPL", domain.OrderSideBuy, 0, 100); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zero fill err = %v, want ErrInvalidInput", err)
	}
}

// ---------------------------------------------------------------------------
// Order execution
// ---------------------------------------------------------------------------

// stubBroker returns a canned outcome for every order.
type stubBroker struct {
	fill *broker.FillResult
	err  error
}

func (b *stubBroker) Name() string { return "stub" }

func (b *stubBroker) SubmitMarketOrder(context.Context, string, domain.OrderSide, float64) (*broker.FillResult, error) {
	return b.fill, b.err
}

func (b *stubBroker) SubmitLimitOrder(context.Context, string, domain.OrderSide, float64, float64) (*broker.FillResult, error) {
	return b.fill, b.err
}

// spyLedger counts fills it receives.
type spyLedger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *spyLedger) OpenOrUpdate(_ context.Context, symbol string, side domain.OrderSide, qty, price float64) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Position{Symbol: symbol, Side: side, Quantity: qty, AvgEntryPrice: price}, nil
}

func (s *spyLedger) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestOrderFilledUpdatesLedger(t *testing.T) {
	s := newTestStore(t)
	ledger := startLedger(t, s)
	e := startOrders(t, s, broker.NewPaperBroker(), ledger, nil)
	ctx := context.Background()

	o, err := e.Execute(ctx, OrderRequest{SignalID: "sig-1", Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if o.Status != domain.OrderStatusFilled || o.SignalID != "sig-1" {
		t.Errorf("order = %+v, want filled", o)
	}

	open, err := s.ListPositions(ctx, true)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(open) != 1 || open[0].Quantity != 2 || !approx(open[0].AvgEntryPrice, 100.1) {
		t.Errorf("positions = %+v, want 2 @ 100.1", open)
	}
}

func TestOrderBrokerRejection(t *testing.T) {
	s := newTestStore(t)
	spy := &spyLedger{}
	e := startOrders(t, s, &stubBroker{err: &broker.RejectionError{Symbol: "AAPL", Reason: "no liquidity"}}, spy, nil)

	o, err := e.Execute(context.Background(), OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if o.Status != domain.OrderStatusRejected {
		t.Errorf("status = %s, want rejected", o.Status)
	}
	if spy.count() != 0 {
		t.Errorf("ledger called %d times, want 0", spy.count())
	}

	stored, err := s.GetOrder(context.Background(), o.ID)
	if err != nil || stored.Status != domain.OrderStatusRejected {
		t.Errorf("stored order = %+v, %v", stored, err)
	}
}

func TestOrderBrokerErrorRejects(t *testing.T) {
	s := newTestStore(t)
	spy := &spyLedger{}
	e := startOrders(t, s, &stubBroker{err: errors.New("connection reset")}, spy, nil)

	o, err := e.Execute(context.Background(), OrderRequest{Symbol: "AAPL", Side: domain.OrderSideSell, Quantity: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if o.Status != domain.OrderStatusRejected || spy.count() != 0 {
		t.Errorf("order = %s, ledger calls %d; want rejected, 0", o.Status, spy.count())
	}
}

func TestOrderPartialFillStaysOpen(t *testing.T) {
	s := newTestStore(t)
	spy := &spyLedger{}
	partial := &broker.FillResult{FillPrice: 100, FillQuantity: 0.5, Filled: false, RejectionReason: "thin book"}
	e := startOrders(t, s, &stubBroker{fill: partial}, spy, nil)

	o, err := e.Execute(context.Background(), OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if o.Status != domain.OrderStatusOpen || spy.count() != 0 {
		t.Errorf("order = %s, ledger calls %d; want open, 0", o.Status, spy.count())
	}
}

func TestOrderLedgerFailureKeepsFill(t *testing.T) {
	s := newTestStore(t)
	spy := &spyLedger{err: errors.New("ledger down")}
	e := startOrders(t, s, broker.NewPaperBroker(), spy, nil)

	o, err := e.Execute(context.Background(), OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if o.Status != domain.OrderStatusFilled || spy.count() != 1 {
		t.Errorf("order = %s, ledger calls %d; want filled, 1", o.Status, spy.count())
	}
}

func TestOrderRiskFailureRejects(t *testing.T) {
	s := newTestStore(t)
	spy := &spyLedger{}
	full := &broker.FillResult{FillPrice: 100, FillQuantity: 10, Filled: true}
	e := startOrders(t, s, &stubBroker{fill: full}, spy, NewRiskManager(5))
	ctx := context.Background()

	tests := []struct {
		name string
		req  OrderRequest
	}{
		{"over cap", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 10}},
		{"zero qty", OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 0}},
	}
	for _, tt := range tests {
		o, err := e.Execute(ctx, tt.req)
		if err != nil {
			t.Fatalf("%s: Execute: %v", tt.name, err)
		}
		if o.Status != domain.OrderStatusRejected {
			t.Errorf("%s: status = %s, want rejected", tt.name, o.Status)
		}
	}

	orders, err := s.ListOrders(ctx, "")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != len(tests) {
		t.Fatalf("got %d orders, want %d", len(orders), len(tests))
	}
	for _, o := range orders {
		if o.Status != domain.OrderStatusRejected {
			t.Errorf("stored order %s status = %s, want rejected", o.ID, o.Status)
		}
	}
	if spy.count() != 0 {
		t.Errorf("ledger called %d times for rejected orders", spy.count())
	}
}

// failingOrderStore cannot persist status changes.
type failingOrderStore struct {
	*store.SQLiteStore
}

func (failingOrderStore) UpdateOrderStatus(context.Context, string, domain.OrderStatus) (*domain.Order, error) {
	return nil, domain.NewStoreError("updating order status", errors.New("disk I/O error"))
}

func TestOrderStatusPersistenceFailureSurfaces(t *testing.T) {
	s := newTestStore(t)
	spy := &spyLedger{}
	e := startOrders(t, failingOrderStore{s}, broker.NewPaperBroker(), spy, nil)

	_, err := e.Execute(context.Background(), OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 1})
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Execute err = %v, want StoreError", err)
	}
	if spy.count() != 0 {
		t.Errorf("ledger called %d times after failed status write", spy.count())
	}
}

func TestOrderCancel(t *testing.T) {
	s := newTestStore(t)
	partial := &broker.FillResult{FillPrice: 1, FillQuantity: 0, Filled: false}
	e := startOrders(t, s, &stubBroker{fill: partial}, &spyLedger{}, nil)
	ctx := context.Background()

	o, err := e.Execute(ctx, OrderRequest{Symbol: "AAPL", Side: domain.OrderSideBuy, Quantity: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	cancelled, err := e.Cancel(ctx, o.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if _, err := e.Cancel(ctx, o.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second Cancel err = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.Cancel(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Cancel(missing) err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Strategy execution
// ---------------------------------------------------------------------------

// scriptedLogic emits a fixed signal on every bar.
type scriptedLogic struct {
	signal domain.SignalType
	warm   bool
}

func (s *scriptedLogic) Name() string { return "scripted" }

func (s *scriptedLogic) Update(domain.Bar) (domain.SignalType, bool) {
	return s.signal, s.warm
}

type panickingLogic struct{}

func (panickingLogic) Name() string { return "panicking" }

func (panickingLogic) Update(domain.Bar) (domain.SignalType, bool) { panic("boom") }

// recordingSink captures forwarded order requests.
type recordingSink struct {
	mu   sync.Mutex
	reqs []OrderRequest
}

func (r *recordingSink) Submit(_ context.Context, req OrderRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *recordingSink) requests() []OrderRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OrderRequest(nil), r.reqs...)
}

// selectiveSignalStore fails to persist signals for one strategy.
type selectiveSignalStore struct {
	*store.SQLiteStore
	failFor string
}

func (s selectiveSignalStore) SaveSignal(ctx context.Context, sig *domain.Signal) error {
	if sig.StrategyID == s.failFor {
		return domain.NewStoreError("inserting signal", errors.New("constraint failed"))
	}
	return s.SQLiteStore.SaveSignal(ctx, sig)
}

func startExecutor(t *testing.T, signals store.SignalStore, strategies store.StrategyStore, sink OrderSink) *StrategyExecutor {
	t.Helper()
	x := NewStrategyExecutor(signals, strategies, builtins.NewRegistry(), sink, 1, actor.DefaultOptions(), quietLogger())
	x.Start(context.Background())
	t.Cleanup(x.Stop)
	return x
}

var testBar = domain.Bar{Symbol: "AAPL", Timestamp: time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC), Close: 101.5}

func TestExecutorFansOutAndForwards(t *testing.T) {
	s := newTestStore(t)
	sink := &recordingSink{}
	x := startExecutor(t, s, s, sink)
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(x.Register(ctx, "b-sell", &scriptedLogic{signal: domain.SignalTypeSell, warm: true}))
	must(x.Register(ctx, "a-buy", &scriptedLogic{signal: domain.SignalTypeBuy, warm: true}))
	must(x.Register(ctx, "c-hold", &scriptedLogic{signal: domain.SignalTypeHold, warm: true}))
	must(x.Register(ctx, "d-cold", &scriptedLogic{signal: domain.SignalTypeBuy, warm: false}))

	sigs, err := x.OnMarketData(ctx, testBar)
	if err != nil {
		t.Fatalf("OnMarketData: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("got %d signals, want 2", len(sigs))
	}
	if sigs[0].StrategyID != "a-buy" || sigs[1].StrategyID != "b-sell" {
		t.Errorf("signals not in id order: %s, %s", sigs[0].StrategyID, sigs[1].StrategyID)
	}
	// Signals are stamped with the bar time so replaying a bar reproduces them.
	if !sigs[0].Timestamp.Equal(testBar.Timestamp) || sigs[0].Metadata["close"] != "101.5" {
		t.Errorf("signal = %+v", sigs[0])
	}

	reqs := sink.requests()
	if len(reqs) != 2 {
		t.Fatalf("forwarded %d orders, want 2", len(reqs))
	}
	if reqs[0].Side != domain.OrderSideBuy || reqs[0].SignalID != sigs[0].ID || reqs[0].Quantity != 1 || reqs[0].LimitPrice != nil {
		t.Errorf("first request = %+v", reqs[0])
	}
	if reqs[1].Side != domain.OrderSideSell {
		t.Errorf("second request side = %s, want sell", reqs[1].Side)
	}

	stored, err := s.ListSignals(ctx, "", 0)
	if err != nil || len(stored) != 2 {
		t.Errorf("stored signals = %d, %v; want 2", len(stored), err)
	}
}

func TestExecutorSignalFailureDoesNotAbortOthers(t *testing.T) {
	s := newTestStore(t)
	sink := &recordingSink{}
	x := startExecutor(t, selectiveSignalStore{SQLiteStore: s, failFor: "a"}, s, sink)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := x.Register(ctx, id, &scriptedLogic{signal: domain.SignalTypeBuy, warm: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := x.Register(ctx, "0-panics", panickingLogic{}); err != nil {
		t.Fatal(err)
	}

	sigs, err := x.OnMarketData(ctx, testBar)
	if err != nil {
		t.Fatalf("OnMarketData: %v", err)
	}
	if len(sigs) != 2 || sigs[0].StrategyID != "b" || sigs[1].StrategyID != "c" {
		t.Errorf("signals = %+v, want b and c", sigs)
	}
	if n := len(sink.requests()); n != 2 {
		t.Errorf("forwarded %d orders, want 2", n)
	}
}

func TestExecutorRegistryLifecycle(t *testing.T) {
	s := newTestStore(t)
	x := startExecutor(t, s, s, &recordingSink{})
	ctx := context.Background()

	for _, st := range []*domain.Strategy{
		{Name: "sma", Type: domain.StrategyTypeRuleBased, Parameters: []byte(`{"fast_period":2,"slow_period":3}`)},
		{Name: "mr", Type: domain.StrategyTypeStatistical},
		{Name: "ml", Type: domain.StrategyTypeModelBased},
	} {
		if err := s.CreateStrategy(ctx, st); err != nil {
			t.Fatal(err)
		}
	}

	n, err := x.ActivateAll(ctx)
	if err != nil {
		t.Fatalf("ActivateAll: %v", err)
	}
	if n != 2 {
		t.Errorf("activated %d, want 2", n)
	}

	ids, err := x.Strategies(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("Strategies = %v, %v", ids, err)
	}
	if err := x.Unregister(ctx, ids[0]); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := x.Unregister(ctx, ids[0]); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Unregister twice err = %v, want ErrNotFound", err)
	}
	if err := x.Activate(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Activate(missing) err = %v, want ErrNotFound", err)
	}
}

func TestExecutorPublishMarketData(t *testing.T) {
	s := newTestStore(t)
	sink := &recordingSink{}
	x := startExecutor(t, s, s, sink)
	ctx := context.Background()

	if err := x.Register(ctx, "a", &scriptedLogic{signal: domain.SignalTypeBuy, warm: true}); err != nil {
		t.Fatal(err)
	}
	if err := x.PublishMarketData(ctx, testBar); err != nil {
		t.Fatalf("PublishMarketData: %v", err)
	}
	// A request/response call behind the published bar observes its effects.
	if _, err := x.Strategies(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(sink.requests()); n != 1 {
		t.Errorf("forwarded %d orders, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// Engine wiring
// ---------------------------------------------------------------------------

func TestEngineLivePipeline(t *testing.T) {
	meta := newTestStore(t)
	bars := store.NewParquetStore(t.TempDir())
	e := NewEngine(meta, bars, broker.NewPaperBroker(), builtins.NewRegistry(),
		Options{Actor: actor.DefaultOptions(), OrderQuantity: 1}, quietLogger())
	ctx := context.Background()
	e.Start(ctx)
	t.Cleanup(e.Stop)

	st := &domain.Strategy{Name: "sma", Type: domain.StrategyTypeRuleBased, Parameters: []byte(`{"fast_period":1,"slow_period":2}`)}
	if err := e.CreateStrategy(ctx, st); err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	bad := &domain.Strategy{Name: "bad", Type: domain.StrategyTypeRuleBased, Parameters: []byte(`{"fast_period":3,"slow_period":2}`)}
	if err := e.CreateStrategy(ctx, bad); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("CreateStrategy(bad) err = %v, want ErrInvalidInput", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var signals int
	for i, c := range []float64{10, 11, 12} {
		sigs, err := e.Strategies.OnMarketData(ctx, domain.Bar{Symbol: "AAPL", Timestamp: start.AddDate(0, 0, i), Close: c})
		if err != nil {
			t.Fatalf("OnMarketData: %v", err)
		}
		signals += len(sigs)
	}
	if signals != 2 {
		t.Fatalf("got %d signals, want 2", signals)
	}

	// Two buys re-enter the same open position (no live position guard).
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		open, err := e.GetPositions(ctx, true)
		if err != nil {
			t.Fatalf("GetPositions: %v", err)
		}
		if len(open) == 1 && open[0].Quantity == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("positions did not reflect both fills")
}

func TestEngineCreateBacktestValidation(t *testing.T) {
	meta := newTestStore(t)
	e := NewEngine(meta, store.NewParquetStore(t.TempDir()), broker.NewPaperBroker(), builtins.NewRegistry(),
		Options{Actor: actor.DefaultOptions()}, quietLogger())
	ctx := context.Background()
	e.Start(ctx)
	t.Cleanup(e.Stop)

	st := &domain.Strategy{Name: "sma", Type: domain.StrategyTypeRuleBased}
	if err := e.CreateStrategy(ctx, st); err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := domain.Backtest{StrategyID: st.ID, Symbol: "AAPL", StartTime: start, EndTime: start.AddDate(0, 1, 0), InitialBalance: 1000}

	tests := []struct {
		name string
		mut  func(*domain.Backtest)
		want error
	}{
		{"missing strategy id", func(b *domain.Backtest) { b.StrategyID = "" }, domain.ErrInvalidInput},
		{"unknown strategy", func(b *domain.Backtest) { b.StrategyID = "nope" }, domain.ErrNotFound},
		{"missing symbol", func(b *domain.Backtest) { b.Symbol = "" }, domain.ErrInvalidInput},
		{"zero balance", func(b *domain.Backtest) { b.InitialBalance = 0 }, domain.ErrInvalidInput},
		{"reversed range", func(b *domain.Backtest) { b.EndTime = start.AddDate(0, 0, -1) }, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.mut(&b)
			if err := e.CreateBacktest(ctx, &b); !errors.Is(err, tt.want) {
				t.Errorf("CreateBacktest err = %v, want %v", err, tt.want)
			}
		})
	}

	all, err := meta.ListBacktests(ctx)
	if err != nil {
		t.Fatalf("ListBacktests: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("invalid backtests persisted %d rows", len(all))
	}
}
