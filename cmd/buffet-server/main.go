package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sourcegraph/conc"

	"buffet/internal/api"
	"buffet/internal/broker"
	"buffet/internal/collector"
	"buffet/internal/config"
	"buffet/internal/domain"
	"buffet/internal/engine"
	"buffet/internal/store"
	"buffet/internal/strategy/builtins"
	"buffet/internal/util"
)

const defaultConfigPath = "config/buffet.yaml"

func main() {
	cfgPath := flag.String("config", "", fmt.Sprintf("path to configuration file (default: %s)", defaultConfigPath))
	flag.Parse()

	cfg, err := config.Load(resolveConfigPath(*cfgPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("buffet-server exited with error", "error", err)
		os.Exit(1)
	}
}

// resolveConfigPath picks the flag, then BUFFET_CONFIG, then the default
// path if it exists. An empty result runs on defaults and env overrides.
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("BUFFET_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return fmt.Errorf("creating sqlite dir: %w", err)
	}

	meta, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer meta.Close()
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	actorOpts, err := cfg.Actor.Options()
	if err != nil {
		return err
	}

	paper := broker.NewPaperBroker(
		broker.WithSlippageBps(cfg.Broker.SlippageBps),
		broker.WithDefaultPrice(cfg.Broker.DefaultPrice),
	)
	eng := engine.NewEngine(meta, bars, paper, builtins.NewRegistry(), engine.Options{
		Actor:         actorOpts,
		OrderQuantity: cfg.Trading.OrderQuantity,
		MaxOrderQty:   cfg.Trading.MaxOrderQty,
		RiskFreeRate:  cfg.Trading.RiskFreeRate,
	}, logger)
	eng.Start(ctx)
	defer eng.Stop()

	n, err := eng.Strategies.ActivateAll(ctx)
	if err != nil {
		return fmt.Errorf("activating strategies: %w", err)
	}
	logger.Info("strategies activated", "count", n)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var lifecycle conc.WaitGroup
	errCh := make(chan error, 2)

	srv := api.NewServer(cfg.Server.Addr(), api.NewTradingService(eng, logger), logger)
	lifecycle.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	})

	if c := newCollector(cfg, bars, eng, logger); c != nil {
		lifecycle.Go(func() {
			logger.Info("starting collector", "name", c.Name(), "symbols", len(cfg.Collector.Symbols))
			if err := c.Run(ctx); err != nil {
				errCh <- fmt.Errorf("collector: %w", err)
			}
		})
	}

	logger.Info("buffet-server started", "addr", cfg.Server.Addr())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}
	stop()
	lifecycle.Wait()

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// newCollector returns nil when no symbols are configured or Alpaca
// credentials are missing.
func newCollector(cfg *config.Config, bars store.BarStore, eng *engine.Engine, logger *slog.Logger) *collector.Collector {
	cc := cfg.Collector
	if len(cc.Symbols) == 0 {
		return nil
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		logger.Warn("collector symbols configured without alpaca credentials, collector disabled")
		return nil
	}
	assetType := domain.AssetType(cc.AssetType)
	src := collector.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, assetType)
	return collector.New(src, bars, eng.Strategies, collector.Options{
		Symbols:         cc.Symbols,
		AssetType:       assetType,
		Interval:        cc.Interval,
		Lookback:        cc.Lookback,
		RateLimitPerMin: cc.RateLimitPerMin,
		RetryAttempts:   cc.RetryAttempts,
	}, logger)
}
