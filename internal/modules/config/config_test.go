package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profile = `
PROFILE: TESTBOT
PAIRS: [BTC-EUR, ETH-EUR]
TOTAL_BUDGET: 10000
PORTFOLIO_ALLOCATION:
  BTC-EUR: 50
  ETH-EUR: 25
RSI_BUY_THRESHOLD: 30
RSI_SELL_THRESHOLD: 70
TRADE_FEE_PERCENTAGE: 0.25
MINIMUM_PROFIT_PERCENTAGE: 1
CHECK_INTERVAL: 10
EMA_PROFILE: short
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(profile))
	require.NoError(t, err)

	assert.Equal(t, "TESTBOT", cfg.Profile)
	assert.Equal(t, 14, cfg.RSIPoints)
	assert.Equal(t, "1m", cfg.RSIInterval)
	assert.Equal(t, 21, cfg.EMAPeriod())
	assert.Equal(t, 1.5, cfg.ATRMultiplier)
	assert.Equal(t, -5.0, cfg.StopLossPercentage)
	assert.Equal(t, 1, cfg.MaxTradesPerPair)
	assert.Equal(t, SchedulerPolling, cfg.Scheduler)
	assert.Equal(t, 3, cfg.PersistenceMaxRetries)

	assert.Equal(t, 5000.0, cfg.PairBudget("BTC-EUR"))
	assert.Equal(t, 2500.0, cfg.PairBudget("ETH-EUR"))
	assert.Equal(t, 21, cfg.WarmupLimit())
	assert.Equal(t, "10s", cfg.CheckEvery().String())
	assert.NotEmpty(t, cfg.Summary())
}

func TestParseJSONProfile(t *testing.T) {
	js := `{"PAIRS":["BTC-EUR"],"TOTAL_BUDGET":1000,"PORTFOLIO_ALLOCATION":{"BTC-EUR":100},
"RSI_BUY_THRESHOLD":30,"RSI_SELL_THRESHOLD":70,"TRADE_FEE_PERCENTAGE":0.25,
"MINIMUM_PROFIT_PERCENTAGE":0.5,"CHECK_INTERVAL":5,"RSI_INTERVAL":"5M","SCHEDULER":"STREAM"}`

	cfg, err := Parse([]byte(js))
	require.NoError(t, err)
	assert.Equal(t, "5m", cfg.RSIInterval)
	assert.Equal(t, SchedulerStream, cfg.Scheduler)
	assert.Equal(t, 50, cfg.WarmupLimit())
}

func TestParseMissingRequiredKey(t *testing.T) {
	_, err := Parse([]byte(`PAIRS: [BTC-EUR]`))

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "TOTAL_BUDGET", cerr.Key)
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]struct {
		extra string
		key   string
	}{
		"unknown ema profile": {extra: "EMA_PROFILE: WEEKLY", key: "EMA_PROFILE"},
		"bad scheduler":       {extra: "SCHEDULER: cron", key: "SCHEDULER"},
		"positive stoploss":   {extra: "STOP_LOSS_PERCENTAGE: 5", key: "STOP_LOSS_PERCENTAGE"},
		"unknown notifier":    {extra: "NOTIFY: [pager]", key: "NOTIFY[0]"},
		"unknown interval":    {extra: "RSI_INTERVAL: 3m", key: "RSI_INTERVAL"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := profile + "\n" + tc.extra + "\n"
			if tc.key == "EMA_PROFILE" {
				src = strings.Replace(profile, "EMA_PROFILE: short", tc.extra, 1)
			}
			_, err := Parse([]byte(src))

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tc.key, cerr.Key)
		})
	}
}

func TestNormInterval(t *testing.T) {
	for in, want := range map[string]string{
		"1M":       "1m",
		" 5m ":     "5m",
		"60m":      "1h",
		"candle4H": "4h",
		"1440m":    "1d",
		"12h":      "12h",
	} {
		assert.Equal(t, want, NormInterval(in), in)
	}
}

func TestValidateAllocationPerPair(t *testing.T) {
	src := strings.Replace(profile, "  ETH-EUR: 25", "  XRP-EUR: 25", 1)
	_, err := Parse([]byte(src))

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "PORTFOLIO_ALLOCATION", cerr.Key)
	assert.Contains(t, cerr.Reason, "ETH-EUR")
}

func TestNewConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, dir, cfg.Env.DataDir)
	assert.Equal(t, int64(42), cfg.Env.TelegramChatID)
	assert.Equal(t, ":8080", cfg.Env.HealthAddr)
}

func TestNewConfigRequiresKeysOutsideDemo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DEMO_MODE", "false")
	t.Setenv("BITVAVO_API_KEY", "")
	t.Setenv("BITVAVO_API_SECRET", "")

	_, err := NewConfig()
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "BITVAVO_API_KEY", cerr.Key)
}
