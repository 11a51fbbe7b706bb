package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"buffet/internal/actor"
	"buffet/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the buffet trading system.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Server    Server          `yaml:"server"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Logging   Logging         `yaml:"logging"`
	Actor     ActorConfig     `yaml:"actor"`
	Broker    BrokerConfig    `yaml:"broker"`
	Trading   TradingConfig   `yaml:"trading"`
	Collector CollectorConfig `yaml:"collector"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns the gRPC listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ActorConfig sizes the mailbox of every engine component.
type ActorConfig struct {
	MailboxSize int    `yaml:"mailbox_size"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	Overflow    string `yaml:"overflow"` // "fail" or "block"
}

// Options converts the section into actor.Options.
func (a ActorConfig) Options() (actor.Options, error) {
	ov, err := actor.ParseOverflow(a.Overflow)
	if err != nil {
		return actor.Options{}, err
	}
	return actor.Options{
		MailboxSize: a.MailboxSize,
		Timeout:     time.Duration(a.TimeoutMS) * time.Millisecond,
		Overflow:    ov,
	}, nil
}

// BrokerConfig configures the paper broker.
type BrokerConfig struct {
	SlippageBps  float64 `yaml:"slippage_bps"`
	DefaultPrice float64 `yaml:"default_price"`
}

// TradingConfig defines risk and execution parameters.
type TradingConfig struct {
	OrderQuantity float64 `yaml:"order_quantity"`
	MaxOrderQty   float64 `yaml:"max_order_qty"` // 0 means unlimited
	RiskFreeRate  float64 `yaml:"risk_free_rate"`
}

// CollectorConfig controls market-data polling. An empty symbol list
// disables polling.
type CollectorConfig struct {
	Symbols         []string      `yaml:"symbols"`
	AssetType       string        `yaml:"asset_type"`
	Interval        time.Duration `yaml:"interval"`
	Lookback        time.Duration `yaml:"lookback"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	RetryAttempts   int           `yaml:"retry_attempts"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	if _, err := actor.ParseOverflow(c.Actor.Overflow); err != nil {
		return fmt.Errorf("actor.overflow: %w", err)
	}
	if !domain.AssetType(c.Collector.AssetType).Valid() {
		return fmt.Errorf("collector.asset_type: unknown asset type %q", c.Collector.AssetType)
	}
	if c.Broker.SlippageBps < 0 {
		return fmt.Errorf("broker.slippage_bps must not be negative")
	}
	if c.Trading.MaxOrderQty < 0 {
		return fmt.Errorf("trading.max_order_qty must not be negative")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence, as the SDK reads them too.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if err := envInt("ACTOR_MAILBOX_SIZE", &cfg.Actor.MailboxSize); err != nil {
		return err
	}
	if err := envInt("ACTOR_TIMEOUT_MS", &cfg.Actor.TimeoutMS); err != nil {
		return err
	}
	if err := envInt("GRPC_PORT", &cfg.Server.GRPCPort); err != nil {
		return err
	}
	if v := os.Getenv("BROKER_SLIPPAGE_BPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BROKER_SLIPPAGE_BPS: %w", err)
		}
		cfg.Broker.SlippageBps = f
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// applyDefaults fills every zero value that has a production default.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = cfg.Storage.DataDir + "/buffet.db"
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 50051
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Actor.MailboxSize <= 0 {
		cfg.Actor.MailboxSize = 1000
	}
	if cfg.Actor.TimeoutMS <= 0 {
		cfg.Actor.TimeoutMS = 5000
	}
	if cfg.Actor.Overflow == "" {
		cfg.Actor.Overflow = "fail"
	}
	if cfg.Broker.SlippageBps == 0 {
		cfg.Broker.SlippageBps = 10
	}
	if cfg.Broker.DefaultPrice <= 0 {
		cfg.Broker.DefaultPrice = 100
	}
	if cfg.Trading.OrderQuantity <= 0 {
		cfg.Trading.OrderQuantity = 1
	}
	if cfg.Collector.AssetType == "" {
		cfg.Collector.AssetType = string(domain.AssetTypeStock)
	}
	if cfg.Collector.Interval <= 0 {
		cfg.Collector.Interval = time.Hour
	}
	if cfg.Collector.Lookback <= 0 {
		cfg.Collector.Lookback = 72 * time.Hour
	}
	if cfg.Collector.RateLimitPerMin <= 0 {
		cfg.Collector.RateLimitPerMin = 200
	}
	if cfg.Collector.RetryAttempts <= 0 {
		cfg.Collector.RetryAttempts = 3
	}
}
