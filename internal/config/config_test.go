package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "auto"
log_level = "debug"

[feed]
catalog_refresh = "90s"
max_markets = 250

[detect]
min_profit_pct = 0.01

[detect.multi_leg]
enabled = false

[exec]
retry_base = "500ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.Feed.CatalogRefresh.Duration)
	assert.Equal(t, 250, cfg.Feed.MaxMarkets)
	assert.Equal(t, 0.01, cfg.Detect.MinProfitPct)
	assert.False(t, cfg.Detect.MultiLeg.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Exec.RetryBase.Duration)

	// Untouched sections keep their defaults.
	assert.True(t, cfg.Detect.Imbalance.Enabled)
	assert.Equal(t, 0.25, cfg.Alloc.KellyFraction)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Risk.MaxPositionAge.Duration)
}

func TestLoad_PerStrategyThresholds(t *testing.T) {
	path := writeConfig(t, `
[detect]
min_profit_pct = 0.01

[detect.multi_leg]
enabled = true
min_profit_pct = 0.02
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	shared := cfg.Detect.MinProfitPct
	assert.Equal(t, 0.02, cfg.Detect.MultiLeg.Threshold(shared))
	// Strategies without their own value fall back to the shared floor.
	assert.Equal(t, 0.01, cfg.Detect.Imbalance.Threshold(shared))
	assert.Equal(t, 0.01, cfg.Detect.Correlated.Threshold(shared))
}

func TestLoad_AppliesEnvOverrides(t *testing.T) {
	t.Setenv("POLYARB_POLYMARKET_API_KEY", "env-key")
	t.Setenv("POLYARB_POSTGRES_PASSWORD", "env-pass")
	t.Setenv("POLYARB_RISK_CAPITAL_BASE_USD", "25000")
	t.Setenv("POLYARB_ENGINE_CYCLE_INTERVAL", "10s")
	t.Setenv("POLYARB_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("POLYARB_DETECT_CORRELATED_ENABLED", "false")
	t.Setenv("POLYARB_DETECT_IMBALANCE_MIN_PROFIT_PCT", "0.008")
	t.Setenv("POLYARB_RISK_MAX_POSITION_AGE", "36h")

	cfg, err := Load(writeConfig(t, "mode = \"alert\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Polymarket.ApiKey)
	assert.Equal(t, "env-pass", cfg.Postgres.Password)
	assert.Equal(t, 25000.0, cfg.Risk.CapitalBaseUSD)
	assert.Equal(t, 10*time.Second, cfg.Engine.CycleInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Detect.Correlated.Enabled)
	assert.Equal(t, 0.008, cfg.Detect.Imbalance.Threshold(cfg.Detect.MinProfitPct))
	assert.Equal(t, 36*time.Hour, cfg.Risk.MaxPositionAge.Duration)
}

func TestLoad_RejectsBadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "mode = [broken"))
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Redis.Addr = ""
	cfg.Alloc.KellyFraction = 2
	cfg.Risk.StopLossPct = 0
	cfg.Risk.MaxPositionAge.Duration = -time.Hour
	cfg.Score.WeightProfit = 0.95
	negative := -0.01
	cfg.Detect.CrossMarket.MinProfitPct = &negative

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "kelly_fraction")
	assert.Contains(t, err.Error(), "stop_loss_pct")
	assert.Contains(t, err.Error(), "max_position_age")
	assert.Contains(t, err.Error(), "cross_market.min_profit_pct")
	assert.Contains(t, err.Error(), "weights must sum to 1.0")
}

func TestValidate_PortChecksOnlyWhenServerEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Polymarket.ApiKey = "key"
	cfg.Postgres.Password = "pass"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.TelegramToken = "token"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Polymarket.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Originals and non-secret fields are untouched.
	assert.Equal(t, "key", cfg.Polymarket.ApiKey)
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
}

func TestDuration_RoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	var parsed duration
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, d.Duration, parsed.Duration)

	assert.Error(t, parsed.UnmarshalText([]byte("not-a-duration")))
}
