package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYARB_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.ApiKey, "POLYARB_POLYMARKET_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYARB_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setDuration(&cfg.Feed.CatalogRefresh, "POLYARB_FEED_CATALOG_REFRESH")
	setInt(&cfg.Feed.MaxMarkets, "POLYARB_FEED_MAX_MARKETS")

	// ── Detect ──
	setFloat64(&cfg.Detect.MinProfitPct, "POLYARB_DETECT_MIN_PROFIT_PCT")
	setFloat64(&cfg.Detect.SlippageAllowance, "POLYARB_DETECT_SLIPPAGE_ALLOWANCE")
	setInt(&cfg.Detect.MaxLegs, "POLYARB_DETECT_MAX_LEGS")
	setFloat64(&cfg.Detect.MinMispricing, "POLYARB_DETECT_MIN_MISPRICING")
	setBool(&cfg.Detect.Imbalance.Enabled, "POLYARB_DETECT_IMBALANCE_ENABLED")
	setBool(&cfg.Detect.CrossMarket.Enabled, "POLYARB_DETECT_CROSS_MARKET_ENABLED")
	setBool(&cfg.Detect.MultiLeg.Enabled, "POLYARB_DETECT_MULTI_LEG_ENABLED")
	setBool(&cfg.Detect.Correlated.Enabled, "POLYARB_DETECT_CORRELATED_ENABLED")
	setFloat64Ptr(&cfg.Detect.Imbalance.MinProfitPct, "POLYARB_DETECT_IMBALANCE_MIN_PROFIT_PCT")
	setFloat64Ptr(&cfg.Detect.CrossMarket.MinProfitPct, "POLYARB_DETECT_CROSS_MARKET_MIN_PROFIT_PCT")
	setFloat64Ptr(&cfg.Detect.MultiLeg.MinProfitPct, "POLYARB_DETECT_MULTI_LEG_MIN_PROFIT_PCT")
	setFloat64Ptr(&cfg.Detect.Correlated.MinProfitPct, "POLYARB_DETECT_CORRELATED_MIN_PROFIT_PCT")

	// ── Score ──
	setFloat64(&cfg.Score.WeightProfit, "POLYARB_SCORE_WEIGHT_PROFIT")
	setFloat64(&cfg.Score.WeightCapitalEfficiency, "POLYARB_SCORE_WEIGHT_CAPITAL_EFFICIENCY")
	setFloat64(&cfg.Score.WeightConfidence, "POLYARB_SCORE_WEIGHT_CONFIDENCE")
	setFloat64(&cfg.Score.WeightRisk, "POLYARB_SCORE_WEIGHT_RISK")
	setFloat64(&cfg.Score.WeightExecutionDifficulty, "POLYARB_SCORE_WEIGHT_EXECUTION_DIFFICULTY")
	setDuration(&cfg.Score.MaxStale, "POLYARB_SCORE_MAX_STALE")

	// ── Alloc ──
	setFloat64(&cfg.Alloc.KellyFraction, "POLYARB_ALLOC_KELLY_FRACTION")
	setFloat64(&cfg.Alloc.MaxPerTradeUSD, "POLYARB_ALLOC_MAX_PER_TRADE_USD")
	setFloat64(&cfg.Alloc.MinSizeUSD, "POLYARB_ALLOC_MIN_SIZE_USD")
	setFloat64(&cfg.Alloc.GasPerLegUSD, "POLYARB_ALLOC_GAS_PER_LEG_USD")
	setFloat64(&cfg.Alloc.FeeSafetyBuffer, "POLYARB_ALLOC_FEE_SAFETY_BUFFER")

	// ── Risk ──
	setFloat64(&cfg.Risk.CapitalBaseUSD, "POLYARB_RISK_CAPITAL_BASE_USD")
	setFloat64(&cfg.Risk.MaxExposurePct, "POLYARB_RISK_MAX_EXPOSURE_PCT")
	setFloat64(&cfg.Risk.StopLossPct, "POLYARB_RISK_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.TakeProfitPct, "POLYARB_RISK_TAKE_PROFIT_PCT")
	setDuration(&cfg.Risk.MaxPositionAge, "POLYARB_RISK_MAX_POSITION_AGE")

	// ── Exec ──
	setInt(&cfg.Exec.MaxAttempts, "POLYARB_EXEC_MAX_ATTEMPTS")
	setDuration(&cfg.Exec.RetryBase, "POLYARB_EXEC_RETRY_BASE")
	setFloat64(&cfg.Exec.RetryFactor, "POLYARB_EXEC_RETRY_FACTOR")
	setDuration(&cfg.Exec.SubmitTimeout, "POLYARB_EXEC_SUBMIT_TIMEOUT")
	setFloat64(&cfg.Exec.SlippageTolerance, "POLYARB_EXEC_SLIPPAGE_TOLERANCE")
	setDuration(&cfg.Exec.LockTTL, "POLYARB_EXEC_LOCK_TTL")

	// ── Engine ──
	setDuration(&cfg.Engine.CycleInterval, "POLYARB_ENGINE_CYCLE_INTERVAL")
	setDuration(&cfg.Engine.MonitorInterval, "POLYARB_ENGINE_MONITOR_INTERVAL")
	setDuration(&cfg.Engine.SnapshotMaxAge, "POLYARB_ENGINE_SNAPSHOT_MAX_AGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYARB_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setFloat64Ptr(dst **float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = &f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
