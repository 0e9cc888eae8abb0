// Package config loads the application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Broker API
	BrokerBaseURL string
	BrokerWSURL   string
	AccountID     string
	SessionToken  string

	// Instrument
	Symbol   string
	Token    string
	Exchange string
	Product  string // broker product code ("I" intraday, "C" delivery)
	Validity string

	// Strategies
	Strategies       []string // strategy kinds to run (ema_crossover, breakout, rsi_reversal)
	EMAFastPeriod    int
	EMASlowPeriod    int
	BreakoutLookback int
	RSIPeriod        int
	RSIOversold      float64
	RSIOverbought    float64

	// Risk
	Capital             float64
	RiskPercentPerTrade float64
	StopLossPercent     float64
	TargetPercent       float64
	MaxDailyLossPercent float64

	// Portfolio / swing
	MaxOpenPositions     int
	MaxPortfolioExposure float64
	MaxSectorExposure    float64
	ATRPeriod            int
	RiskPerTrade         float64
	WatchlistPath        string

	// Candles
	CandleInterval time.Duration
	HistoryCap     int
	WarmupMonths   int

	// Feed connection
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	MaxReconnects     int
	HeartbeatInterval time.Duration

	// Orders
	OrderRatePerSec float64

	// Database
	DBPath string

	// Logging
	LogLevel    string
	LogConsole  bool
	LogFilePath string

	// Telemetry
	MetricsPort int // 0 disables the metrics server
}

// Load reads configuration from the environment (.env file honoured when
// present) and validates it.
func Load() (*Config, error) {
	// Missing .env is fine, plain environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Broker API
	cfg.BrokerBaseURL = getEnv("BROKER_BASE_URL", "https://api.shoonya.com/NorenWClientTP")
	cfg.BrokerWSURL = getEnv("BROKER_WS_URL", "wss://api.shoonya.com/NorenWSTP/")
	cfg.AccountID = getEnv("BROKER_ACCOUNT_ID", "")
	cfg.SessionToken = getEnv("BROKER_SESSION_TOKEN", "")
	if cfg.AccountID == "" {
		errs = append(errs, "BROKER_ACCOUNT_ID must be set")
	}
	if cfg.SessionToken == "" {
		errs = append(errs, "BROKER_SESSION_TOKEN must be set")
	}

	// Instrument
	cfg.Symbol = getEnv("SYMBOL", "")
	cfg.Token = getEnv("TOKEN", "")
	cfg.Exchange = getEnv("EXCHANGE", "NSE")
	cfg.Product = getEnv("PRODUCT", "I")
	cfg.Validity = getEnv("VALIDITY", "DAY")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	if cfg.Token == "" {
		errs = append(errs, "TOKEN must be set")
	}

	// Strategies
	cfg.Strategies = splitList(getEnv("STRATEGIES", "ema_crossover"))
	if len(cfg.Strategies) == 0 {
		errs = append(errs, "STRATEGIES must name at least one strategy")
	}
	cfg.EMAFastPeriod = getEnvAsInt("EMA_FAST_PERIOD", 9)
	cfg.EMASlowPeriod = getEnvAsInt("EMA_SLOW_PERIOD", 21)
	cfg.BreakoutLookback = getEnvAsInt("BREAKOUT_LOOKBACK", 20)
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	cfg.RSIOversold = getEnvAsFloat("RSI_OVERSOLD", 30.0)
	cfg.RSIOverbought = getEnvAsFloat("RSI_OVERBOUGHT", 70.0)
	if cfg.EMAFastPeriod <= 0 || cfg.EMASlowPeriod <= 0 || cfg.BreakoutLookback <= 0 || cfg.RSIPeriod <= 0 {
		errs = append(errs, "strategy periods must be positive")
	}
	if cfg.EMAFastPeriod >= cfg.EMASlowPeriod {
		errs = append(errs, "EMA_FAST_PERIOD must be less than EMA_SLOW_PERIOD")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (RSI_OVERBOUGHT must be > RSI_OVERSOLD, between 0-100)")
	}

	// Risk
	var err error
	cfg.Capital, err = getEnvAsFloatStrict("CAPITAL", 100000)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.Capital <= 0 {
		errs = append(errs, "CAPITAL must be positive")
	}
	cfg.RiskPercentPerTrade, err = getEnvAsFloatStrict("RISK_PERCENT_PER_TRADE", 1)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.RiskPercentPerTrade <= 0 || cfg.RiskPercentPerTrade > 100 {
		errs = append(errs, "RISK_PERCENT_PER_TRADE must be between 0 and 100")
	}
	cfg.StopLossPercent, err = getEnvAsFloatStrict("STOP_LOSS_PERCENT", 2)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 100 {
		errs = append(errs, "STOP_LOSS_PERCENT must be between 0 and 100")
	}
	cfg.TargetPercent, err = getEnvAsFloatStrict("TARGET_PERCENT", 3)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.TargetPercent <= 0 {
		errs = append(errs, "TARGET_PERCENT must be positive")
	}
	cfg.MaxDailyLossPercent, err = getEnvAsFloatStrict("MAX_DAILY_LOSS_PERCENT", 2)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.MaxDailyLossPercent <= 0 || cfg.MaxDailyLossPercent > 100 {
		errs = append(errs, "MAX_DAILY_LOSS_PERCENT must be between 0 and 100")
	}

	// Portfolio / swing
	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 5)
	cfg.MaxPortfolioExposure = getEnvAsFloat("MAX_PORTFOLIO_EXPOSURE", 0.60)
	cfg.MaxSectorExposure = getEnvAsFloat("MAX_SECTOR_EXPOSURE", 0.30)
	cfg.ATRPeriod = getEnvAsInt("ATR_PERIOD", 14)
	cfg.RiskPerTrade = getEnvAsFloat("RISK_PER_TRADE", 0.01)
	cfg.WatchlistPath = getEnv("WATCHLIST_PATH", "./watchlist.yaml")
	if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}
	if cfg.MaxPortfolioExposure <= 0 || cfg.MaxPortfolioExposure > 1 {
		errs = append(errs, "MAX_PORTFOLIO_EXPOSURE must be in (0, 1]")
	}
	if cfg.MaxSectorExposure <= 0 || cfg.MaxSectorExposure > 1 {
		errs = append(errs, "MAX_SECTOR_EXPOSURE must be in (0, 1]")
	}
	if cfg.ATRPeriod <= 0 {
		errs = append(errs, "ATR_PERIOD must be positive")
	}
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade > 1 {
		errs = append(errs, "RISK_PER_TRADE must be in (0, 1]")
	}

	// Candles
	intervalSeconds := getEnvAsInt("CANDLE_INTERVAL_SECONDS", 60)
	if intervalSeconds <= 0 {
		errs = append(errs, "CANDLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CandleInterval = time.Duration(intervalSeconds) * time.Second
	cfg.HistoryCap = getEnvAsInt("HISTORY_CAP", 500)
	if cfg.HistoryCap <= 0 {
		errs = append(errs, "HISTORY_CAP must be positive")
	}
	cfg.WarmupMonths = getEnvAsInt("WARMUP_MONTHS", 3)
	if cfg.WarmupMonths <= 0 {
		errs = append(errs, "WARMUP_MONTHS must be positive")
	}

	// Feed connection
	minDelay := getEnvAsInt("RECONNECT_MIN_DELAY_SECONDS", 2)
	maxDelay := getEnvAsInt("RECONNECT_MAX_DELAY_SECONDS", 60)
	if minDelay <= 0 || maxDelay < minDelay {
		errs = append(errs, "reconnect delays must be positive with min <= max")
	}
	cfg.ReconnectMinDelay = time.Duration(minDelay) * time.Second
	cfg.ReconnectMaxDelay = time.Duration(maxDelay) * time.Second
	cfg.MaxReconnects = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnects < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}
	heartbeat := getEnvAsInt("HEARTBEAT_INTERVAL_SECONDS", 30)
	if heartbeat <= 0 {
		errs = append(errs, "HEARTBEAT_INTERVAL_SECONDS must be positive")
	}
	cfg.HeartbeatInterval = time.Duration(heartbeat) * time.Second

	// Orders
	cfg.OrderRatePerSec = getEnvAsFloat("ORDER_RATE_PER_SEC", 1)
	if cfg.OrderRatePerSec <= 0 {
		errs = append(errs, "ORDER_RATE_PER_SEC must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogConsole = getEnvAsBool("LOG_CONSOLE", true)
	cfg.LogFilePath = getEnv("LOG_FILE", "")

	// Telemetry
	cfg.MetricsPort = getEnvAsInt("METRICS_PORT", 9090)
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		errs = append(errs, "METRICS_PORT must be a valid port or 0 to disable")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloatStrict rejects a set-but-unparsable value instead of
// silently falling back, used for the risk knobs where a typo must not
// trade with defaults.
func getEnvAsFloatStrict(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s", valueStr, key)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
