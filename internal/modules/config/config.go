package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "config/scalper.yaml"
)

// requiredKeys must be present in the profile file; everything else has a default.
var requiredKeys = []string{
	"PAIRS",
	"TOTAL_BUDGET",
	"PORTFOLIO_ALLOCATION",
	"RSI_BUY_THRESHOLD",
	"RSI_SELL_THRESHOLD",
	"TRADE_FEE_PERCENTAGE",
	"MINIMUM_PROFIT_PERCENTAGE",
	"CHECK_INTERVAL",
}

const (
	SchedulerPolling = "polling"
	SchedulerStream  = "stream"
)

// Config is the trading profile plus the process environment. It is loaded
// once at startup and never mutated afterwards.
type Config struct {
	Profile string `yaml:"PROFILE"`

	Pairs               []string           `yaml:"PAIRS" validate:"required,min=1,dive,required"`
	TotalBudget         float64            `yaml:"TOTAL_BUDGET" validate:"gt=0"`
	PortfolioAllocation map[string]float64 `yaml:"PORTFOLIO_ALLOCATION" validate:"required"` // pair -> % of TOTAL_BUDGET

	RSIPoints        int     `yaml:"RSI_POINTS" validate:"gte=2"`
	RSIInterval      string  `yaml:"RSI_INTERVAL" validate:"oneof=1m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d"`
	RSIBuyThreshold  float64 `yaml:"RSI_BUY_THRESHOLD" validate:"gte=0,lte=100"`
	RSISellThreshold float64 `yaml:"RSI_SELL_THRESHOLD" validate:"gte=0,lte=100"`

	EMAProfile  string         `yaml:"EMA_PROFILE" validate:"required"`
	EMAProfiles map[string]int `yaml:"EMA_PROFILES"`

	ATRPeriod     int     `yaml:"ATR_PERIOD" validate:"gte=1"`
	ATRMultiplier float64 `yaml:"ATR_MULTIPLIER" validate:"gt=0"`

	// StopLossPercentage is the fallback stop distance, negative (-5 means 5% below entry).
	StopLossPercentage float64 `yaml:"STOP_LOSS_PERCENTAGE" validate:"lt=0"`
	StopLossMaxRetries int     `yaml:"STOP_LOSS_MAX_RETRIES" validate:"gte=1"`
	StopLossWaitTime   float64 `yaml:"STOP_LOSS_WAIT_TIME" validate:"gte=0"` // seconds

	RiskPercentage          float64 `yaml:"RISK_PERCENTAGE" validate:"gt=0,lte=1"`
	MinimumProfitPercentage float64 `yaml:"MINIMUM_PROFIT_PERCENTAGE"`
	MaxTradesPerPair        int     `yaml:"MAX_TRADES_PER_PAIR" validate:"gte=1"`
	TradeFeePercentage      float64 `yaml:"TRADE_FEE_PERCENTAGE" validate:"gte=0,lt=100"`

	CheckInterval float64 `yaml:"CHECK_INTERVAL" validate:"gt=0"` // seconds
	DemoMode      bool    `yaml:"DEMO_MODE"`

	Scheduler             string   `yaml:"SCHEDULER" validate:"oneof=polling stream"`
	Explain               bool     `yaml:"EXPLAIN"`
	PersistenceMaxRetries int      `yaml:"PERSISTENCE_MAX_RETRIES" validate:"gte=1"`
	Notify                []string `yaml:"NOTIFY" validate:"dive,oneof=console slack telegram"`

	Env Env `yaml:"-"`
}

// Env holds secrets, paths and addresses. They come from the environment
// (or .env), never from the profile file.
type Env struct {
	BitvavoAPIKey    string
	BitvavoAPISecret string
	BitvavoRESTURL   string
	BitvavoWSURL     string

	SlackWebhookURL  string
	TelegramBotToken string
	TelegramChatID   int64

	DataDir     string
	DatabaseDSN string
	HealthAddr  string

	JaegerHost string
	JaegerPort int

	LogLevel string
}

// ConfigError is fatal: the process must not start trading.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

func defaults() Config {
	return Config{
		Profile:     "SCALPINGBOT",
		RSIPoints:   14,
		RSIInterval: "1m",
		EMAProfile:  "MEDIUM",
		EMAProfiles: map[string]int{
			"ULTRASHORT": 9,
			"SHORT":      21,
			"MEDIUM":     50,
			"LONG":       200,
		},
		ATRPeriod:             14,
		ATRMultiplier:         1.5,
		StopLossPercentage:    -5,
		StopLossMaxRetries:    3,
		StopLossWaitTime:      5,
		RiskPercentage:        0.01,
		MaxTradesPerPair:      1,
		Scheduler:             SchedulerPolling,
		PersistenceMaxRetries: 3,
		Notify:                []string{"console"},
	}
}

// NewConfig loads .env, resolves the environment and reads the profile named by CONFIG_FILE.
func NewConfig() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(configFilePathENV, defaultConfigFile)

	cfg, err := Load(v.GetString(configFilePathENV))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(v); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a profile file. JSON profiles load as-is.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Key: configFilePathENV, Reason: err.Error()}
	}
	return Parse(b)
}

// Parse decodes a profile onto the defaults, checks required keys and validates ranges.
func Parse(b []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("decode profile: %v", err)}
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, &ConfigError{Key: key, Reason: "missing required parameter"}
		}
	}

	cfg := defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("decode profile: %v", err)}
	}
	cfg.RSIInterval = NormInterval(cfg.RSIInterval)
	cfg.Scheduler = strings.ToLower(cfg.Scheduler)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = func() *validator.Validate {
	v := validator.New()
	// report profile keys, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks field ranges and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Key: fe.Field(), Reason: fmt.Sprintf("failed %q (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigError{Reason: err.Error()}
	}

	for _, pair := range c.Pairs {
		pct, ok := c.PortfolioAllocation[pair]
		if !ok {
			return &ConfigError{Key: "PORTFOLIO_ALLOCATION", Reason: "no allocation for " + pair}
		}
		if pct <= 0 || pct > 100 {
			return &ConfigError{Key: "PORTFOLIO_ALLOCATION", Reason: fmt.Sprintf("%s allocation %.2f%% out of range", pair, pct)}
		}
	}

	if _, ok := c.EMAProfiles[strings.ToUpper(c.EMAProfile)]; !ok {
		return &ConfigError{Key: "EMA_PROFILE", Reason: fmt.Sprintf("unknown profile %q", c.EMAProfile)}
	}
	if c.EMAPeriod() < 1 {
		return &ConfigError{Key: "EMA_PROFILES", Reason: "period must be positive"}
	}
	return nil
}

func (c *Config) applyEnv(v *viper.Viper) error {
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("HEALTH_ADDR", ":8080")
	v.SetDefault("BITVAVO_REST_URL", "https://api.bitvavo.com/v2")
	v.SetDefault("BITVAVO_WS_URL", "wss://ws.bitvavo.com/v2/")
	v.SetDefault("JAEGER_PORT", 6831)
	v.SetDefault("LOG_LEVEL", "info")

	c.Env = Env{
		BitvavoAPIKey:    v.GetString("BITVAVO_API_KEY"),
		BitvavoAPISecret: v.GetString("BITVAVO_API_SECRET"),
		BitvavoRESTURL:   v.GetString("BITVAVO_REST_URL"),
		BitvavoWSURL:     v.GetString("BITVAVO_WS_URL"),
		SlackWebhookURL:  v.GetString("SLACK_WEBHOOK_URL"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   v.GetInt64("TELEGRAM_CHAT_ID"),
		DataDir:          v.GetString("DATA_DIR"),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		HealthAddr:       v.GetString("HEALTH_ADDR"),
		JaegerHost:       v.GetString("JAEGER_HOST"),
		JaegerPort:       v.GetInt("JAEGER_PORT"),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}

	// DEMO_MODE in the environment overrides the profile
	if v.IsSet("DEMO_MODE") {
		c.DemoMode = v.GetBool("DEMO_MODE")
	}

	if !c.DemoMode && (c.Env.BitvavoAPIKey == "" || c.Env.BitvavoAPISecret == "") {
		return &ConfigError{Key: "BITVAVO_API_KEY", Reason: "api key and secret are required outside demo mode"}
	}
	return nil
}

// EMAPeriod resolves EMA_PROFILE through EMA_PROFILES.
func (c *Config) EMAPeriod() int {
	return c.EMAProfiles[strings.ToUpper(c.EMAProfile)]
}

// PairBudget is TOTAL_BUDGET * PORTFOLIO_ALLOCATION[pair] / 100.
func (c *Config) PairBudget(pair string) float64 {
	return c.TotalBudget * c.PortfolioAllocation[pair] / 100
}

func (c *Config) CheckEvery() time.Duration {
	return time.Duration(c.CheckInterval * float64(time.Second))
}

func (c *Config) StopLossWait() time.Duration {
	return time.Duration(c.StopLossWaitTime * float64(time.Second))
}

// WarmupLimit is how many historical prices fill both indicator windows.
func (c *Config) WarmupLimit() int {
	if p := c.EMAPeriod(); p > c.RSIPoints {
		return p
	}
	return c.RSIPoints
}

// Summary lists the effective parameters for the startup log.
func (c *Config) Summary() []string {
	pairs := append([]string(nil), c.Pairs...)
	sort.Strings(pairs)

	lines := []string{
		fmt.Sprintf("pairs: %s", strings.Join(pairs, ", ")),
		fmt.Sprintf("total budget: %.2f", c.TotalBudget),
	}
	for _, p := range pairs {
		lines = append(lines, fmt.Sprintf("  %s: %.2f%% -> %.2f", p, c.PortfolioAllocation[p], c.PairBudget(p)))
	}
	lines = append(lines,
		fmt.Sprintf("RSI: points=%d interval=%s buy<=%.1f sell>=%.1f", c.RSIPoints, c.RSIInterval, c.RSIBuyThreshold, c.RSISellThreshold),
		fmt.Sprintf("EMA: %s (%d)", strings.ToUpper(c.EMAProfile), c.EMAPeriod()),
		fmt.Sprintf("ATR: period=%d multiplier=%.2f", c.ATRPeriod, c.ATRMultiplier),
		fmt.Sprintf("stoploss fallback: %.2f%% retries=%d wait=%.1fs", c.StopLossPercentage, c.StopLossMaxRetries, c.StopLossWaitTime),
		fmt.Sprintf("risk: %.2f%% max trades/pair=%d fee=%.2f%% min profit=%.2f%%", c.RiskPercentage*100, c.MaxTradesPerPair, c.TradeFeePercentage, c.MinimumProfitPercentage),
		fmt.Sprintf("scheduler: %s every %.1fs demo=%t explain=%t", c.Scheduler, c.CheckInterval, c.DemoMode, c.Explain),
	)
	return lines
}
