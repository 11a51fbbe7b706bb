// Package collector fetches OHLCV bars from external market-data sources,
// persists them in the time-series store and forwards them to the live
// strategy pipeline.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"buffet/internal/domain"
	"buffet/internal/store"
	"buffet/internal/util"
)

// Source is a provider of historical bars.
type Source interface {
	// Name returns the source identifier.
	Name() string
	// FetchBars returns bars for symbol within [start, end].
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// MarketDataSink receives every collected bar. *engine.StrategyExecutor
// implements it.
type MarketDataSink interface {
	PublishMarketData(ctx context.Context, bar domain.Bar) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Options configures a Collector.
type Options struct {
	Symbols         []string
	AssetType       domain.AssetType
	Interval        time.Duration // polling period for Run
	Lookback        time.Duration // window fetched on every poll
	RateLimitPerMin int           // 0 disables limiting
	RetryAttempts   int
	RetryDelay      time.Duration
}

func (o *Options) applyDefaults() {
	if o.AssetType == "" {
		o.AssetType = domain.AssetTypeStock
	}
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	if o.Lookback <= 0 {
		o.Lookback = 72 * time.Hour
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

// Collector pulls bars from a Source on demand or on a fixed interval.
type Collector struct {
	source   Source
	bars     store.BarStore
	sink     MarketDataSink
	opts     Options
	limiter  *util.RateLimiter
	calendar *util.TradingCalendar
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Collector. sink may be nil, in which case bars are only
// persisted.
func New(src Source, bars store.BarStore, sink MarketDataSink, opts Options, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	opts.applyDefaults()
	return &Collector{
		source:   src,
		bars:     bars,
		sink:     sink,
		opts:     opts,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		calendar: util.NewTradingCalendar(opts.AssetType),
		now:      time.Now,
		log:      log.With("collector", src.Name()),
	}
}

// Name returns the collector identifier.
func (c *Collector) Name() string { return "collector-" + c.source.Name() }

// Collect fetches bars for symbol within [start, end], writes them to the
// bar store and forwards each one, oldest first, to the sink. It returns the
// number of bars collected.
func (c *Collector) Collect(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("collect: empty symbol: %w", domain.ErrInvalidInput)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("collect %s: end before start: %w", symbol, domain.ErrInvalidInput)
	}

	var bars []domain.Bar
	err := util.Retry(ctx, c.opts.RetryAttempts, c.opts.RetryDelay, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		fetched, err := c.source.FetchBars(ctx, symbol, start, end)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.log.Warn("fetch failed, retrying", "symbol", symbol, "error", err)
			return err
		}
		bars = fetched
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fetch %s from %s: %w", symbol, c.source.Name(), err)
	}
	if len(bars) == 0 {
		c.log.Debug("no bars returned", "symbol", symbol, "start", start, "end", end)
		return 0, nil
	}

	for i := range bars {
		bars[i].Symbol = symbol
		bars[i].Timestamp = bars[i].Timestamp.UTC()
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	if err := c.bars.WriteBars(ctx, symbol, c.opts.AssetType, bars); err != nil {
		return 0, fmt.Errorf("write %s bars: %w", symbol, err)
	}

	if c.sink != nil {
		for _, b := range bars {
			if err := c.sink.PublishMarketData(ctx, b); err != nil {
				c.log.Error("forwarding bar", "symbol", symbol, "timestamp", b.Timestamp, "error", err)
			}
		}
	}

	c.log.Info("collected bars", "symbol", symbol, "count", len(bars))
	return len(bars), nil
}

// Run polls every configured symbol once immediately and then every
// Interval. Polls on days the asset class does not trade are skipped. It
// blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	if len(c.opts.Symbols) == 0 {
		c.log.Info("no symbols configured, collector idle")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		c.poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll collects the lookback window for every symbol. Per-symbol failures
// are logged and do not stop the remaining symbols.
func (c *Collector) poll(ctx context.Context) {
	now := c.now()
	if !c.calendar.IsTradingDay(now) {
		c.log.Debug("skipping poll on non-trading day", "asset_type", c.opts.AssetType)
		return
	}
	r := DateRange{Start: now.Add(-c.opts.Lookback), End: now}

	total := 0
	for _, sym := range c.opts.Symbols {
		if ctx.Err() != nil {
			return
		}
		n, err := c.Collect(ctx, sym, r.Start, r.End)
		if err != nil {
			c.log.Error("collect failed", "symbol", sym, "error", err)
			continue
		}
		total += n
	}
	c.log.Info("poll complete", "symbols", len(c.opts.Symbols), "bars", total)
}
