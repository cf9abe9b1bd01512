// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Feed       FeedConfig       `toml:"feed"`
	Detect     DetectConfig     `toml:"detect"`
	Score      ScoreConfig      `toml:"score"`
	Alloc      AllocConfig      `toml:"alloc"`
	Risk       RiskConfig       `toml:"risk"`
	Exec       ExecConfig       `toml:"exec"`
	Engine     EngineConfig     `toml:"engine"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds API endpoints for market data and order placement.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	ApiKey    string `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds market-data ingestion parameters.
type FeedConfig struct {
	CatalogRefresh duration `toml:"catalog_refresh"`
	MaxMarkets     int      `toml:"max_markets"`
}

// DetectConfig holds the shared and per-strategy detection parameters.
// min_profit_pct is the shared floor; each strategy section may override it.
type DetectConfig struct {
	MinProfitPct      float64 `toml:"min_profit_pct"`
	SlippageAllowance float64 `toml:"slippage_allowance"`
	MaxLegs           int     `toml:"max_legs"`
	MinMispricing     float64 `toml:"min_mispricing"`

	Imbalance   StrategyConfig `toml:"imbalance"`
	CrossMarket StrategyConfig `toml:"cross_market"`
	MultiLeg    StrategyConfig `toml:"multi_leg"`
	Correlated  StrategyConfig `toml:"correlated"`
}

// StrategyConfig enables one detector and optionally overrides the shared
// minimum-profit threshold for it.
type StrategyConfig struct {
	Enabled      bool     `toml:"enabled"`
	MinProfitPct *float64 `toml:"min_profit_pct"`
}

// Threshold returns the strategy's minimum-profit threshold, falling back to
// the shared detect-level value when the strategy does not set its own.
func (s StrategyConfig) Threshold(shared float64) float64 {
	if s.MinProfitPct != nil {
		return *s.MinProfitPct
	}
	return shared
}

// ScoreConfig holds the composite-score weights and staleness window.
type ScoreConfig struct {
	WeightProfit              float64  `toml:"weight_profit"`
	WeightCapitalEfficiency   float64  `toml:"weight_capital_efficiency"`
	WeightConfidence          float64  `toml:"weight_confidence"`
	WeightRisk                float64  `toml:"weight_risk"`
	WeightExecutionDifficulty float64  `toml:"weight_execution_difficulty"`
	MaxStale                  duration `toml:"max_stale"`
}

// AllocConfig holds position-sizing parameters.
type AllocConfig struct {
	KellyFraction   float64 `toml:"kelly_fraction"`
	MaxPerTradeUSD  float64 `toml:"max_per_trade_usd"`
	MinSizeUSD      float64 `toml:"min_size_usd"`
	GasPerLegUSD    float64 `toml:"gas_per_leg_usd"`
	FeeSafetyBuffer float64 `toml:"fee_safety_buffer"`
}

// RiskConfig holds portfolio risk parameters.
type RiskConfig struct {
	CapitalBaseUSD float64  `toml:"capital_base_usd"`
	MaxExposurePct float64  `toml:"max_exposure_pct"`
	StopLossPct    float64  `toml:"stop_loss_pct"`
	TakeProfitPct  float64  `toml:"take_profit_pct"`
	MaxPositionAge duration `toml:"max_position_age"`
}

// ExecConfig holds order-submission parameters.
type ExecConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	RetryBase         duration `toml:"retry_base"`
	RetryFactor       float64  `toml:"retry_factor"`
	SubmitTimeout     duration `toml:"submit_timeout"`
	SlippageTolerance float64  `toml:"slippage_tolerance"`
	LockTTL           duration `toml:"lock_ttl"`
}

// EngineConfig holds pipeline cycle timing.
type EngineConfig struct {
	CycleInterval   duration `toml:"cycle_interval"`
	MonitorInterval duration `toml:"monitor_interval"`
	SnapshotMaxAge  duration `toml:"snapshot_max_age"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polyarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			CatalogRefresh: duration{5 * time.Minute},
			MaxMarkets:     500,
		},
		Detect: DetectConfig{
			MinProfitPct:      0.005,
			SlippageAllowance: 0,
			MaxLegs:           5,
			MinMispricing:     0.03,
			Imbalance:         StrategyConfig{Enabled: true},
			CrossMarket:       StrategyConfig{Enabled: true},
			MultiLeg:          StrategyConfig{Enabled: true},
			Correlated:        StrategyConfig{Enabled: true},
		},
		Score: ScoreConfig{
			WeightProfit:              0.35,
			WeightCapitalEfficiency:   0.25,
			WeightConfidence:          0.20,
			WeightRisk:                0.15,
			WeightExecutionDifficulty: 0.05,
			MaxStale:                  duration{30 * time.Second},
		},
		Alloc: AllocConfig{
			KellyFraction:   0.25,
			MaxPerTradeUSD:  1000,
			MinSizeUSD:      10,
			GasPerLegUSD:    0.50,
			FeeSafetyBuffer: 1.25,
		},
		Risk: RiskConfig{
			CapitalBaseUSD: 10000,
			MaxExposurePct: 0.50,
			StopLossPct:    0.15,
			TakeProfitPct:  0,
			MaxPositionAge: duration{24 * time.Hour},
		},
		Exec: ExecConfig{
			MaxAttempts:       3,
			RetryBase:         duration{time.Second},
			RetryFactor:       2,
			SubmitTimeout:     duration{30 * time.Second},
			SlippageTolerance: 0.01,
			LockTTL:           duration{2 * time.Minute},
		},
		Engine: EngineConfig{
			CycleInterval:   duration{5 * time.Second},
			MonitorInterval: duration{15 * time.Second},
			SnapshotMaxAge:  duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_detected", "position_opened", "position_closed", "error"},
		},
		Mode:     "alert",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"alert":   true, // detect, score, and notify only
	"auto":    true, // full pipeline including execution
	"monitor": true, // monitoring loop over existing positions only
	"server":  true, // HTTP API only
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: alert, auto, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Feed
	if c.Feed.CatalogRefresh.Duration <= 0 {
		errs = append(errs, "feed: catalog_refresh must be positive")
	}
	if c.Feed.MaxMarkets < 0 {
		errs = append(errs, "feed: max_markets must be >= 0")
	}

	// Detect
	if c.Detect.MinProfitPct < 0 {
		errs = append(errs, "detect: min_profit_pct must be >= 0")
	}
	for name, s := range map[string]StrategyConfig{
		"imbalance":    c.Detect.Imbalance,
		"cross_market": c.Detect.CrossMarket,
		"multi_leg":    c.Detect.MultiLeg,
		"correlated":   c.Detect.Correlated,
	} {
		if s.MinProfitPct != nil && *s.MinProfitPct < 0 {
			errs = append(errs, fmt.Sprintf("detect: %s.min_profit_pct must be >= 0", name))
		}
	}
	if c.Detect.SlippageAllowance < 0 {
		errs = append(errs, "detect: slippage_allowance must be >= 0")
	}
	if c.Detect.MaxLegs < 3 {
		errs = append(errs, "detect: max_legs must be >= 3")
	}

	// Score
	weightSum := c.Score.WeightProfit + c.Score.WeightCapitalEfficiency +
		c.Score.WeightConfidence + c.Score.WeightRisk + c.Score.WeightExecutionDifficulty
	if weightSum < 0.999 || weightSum > 1.001 {
		errs = append(errs, fmt.Sprintf("score: weights must sum to 1.0, got %v", weightSum))
	}
	if c.Score.MaxStale.Duration <= 0 {
		errs = append(errs, "score: max_stale must be positive")
	}

	// Alloc
	if c.Alloc.KellyFraction <= 0 || c.Alloc.KellyFraction > 1 {
		errs = append(errs, fmt.Sprintf("alloc: kelly_fraction must be in (0,1], got %v", c.Alloc.KellyFraction))
	}
	if c.Alloc.MaxPerTradeUSD <= 0 {
		errs = append(errs, "alloc: max_per_trade_usd must be > 0")
	}
	if c.Alloc.FeeSafetyBuffer < 1 {
		errs = append(errs, "alloc: fee_safety_buffer must be >= 1")
	}

	// Risk
	if c.Risk.CapitalBaseUSD <= 0 {
		errs = append(errs, "risk: capital_base_usd must be > 0")
	}
	if c.Risk.MaxExposurePct <= 0 || c.Risk.MaxExposurePct > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_exposure_pct must be in (0,1], got %v", c.Risk.MaxExposurePct))
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("risk: stop_loss_pct must be in (0,1), got %v", c.Risk.StopLossPct))
	}
	if c.Risk.MaxPositionAge.Duration < 0 {
		errs = append(errs, "risk: max_position_age must be >= 0")
	}

	// Exec
	if c.Exec.MaxAttempts < 1 {
		errs = append(errs, "exec: max_attempts must be >= 1")
	}
	if c.Exec.RetryBase.Duration <= 0 {
		errs = append(errs, "exec: retry_base must be positive")
	}
	if c.Exec.RetryFactor < 1 {
		errs = append(errs, "exec: retry_factor must be >= 1")
	}
	if c.Exec.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "exec: submit_timeout must be positive")
	}

	// Engine
	if c.Engine.CycleInterval.Duration <= 0 {
		errs = append(errs, "engine: cycle_interval must be positive")
	}
	if c.Engine.MonitorInterval.Duration <= 0 {
		errs = append(errs, "engine: monitor_interval must be positive")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
