package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Order sizing modes.
const (
	SizingFixedUSD = "fixed"
	SizingPercent  = "percent"
)

// Config holds environment-driven settings for the signal trader.
type Config struct {
	// HTTP status API
	Port string

	// Telegram
	TelegramToken    string
	TelegramChannels []string // allowlist; empty = accept all

	// Database
	DBPath string

	// Channel parser variants (YAML)
	ChannelConfigPath string

	// LLM collaborator
	LLMBaseURL       string
	LLMAPIKey        string
	LLMModel         string
	UseLLMParser     bool
	UseLLMTakeProfit bool

	// Signal gating
	MinConfidence  int // 0-100; signals below this never reach execution
	MaxDailyTrades int // buy-side, rolling 24h

	// Order sizing
	SizingMode      string // "fixed" or "percent"
	OrderSizeUSD    float64
	OrderSizePct    float64
	DefaultLeverage int
	PreferredQuote  string

	// Execution
	DryRun               bool
	DryRunInitialBalance float64
	ResetWalletOnStart   bool

	// Sell decision thresholds (each independently overridable)
	SellEngineEnabled        bool
	MinProfitPct             float64
	MaxLossPct               float64
	MinHoldMinutes           int
	MaxHoldHours             int
	VolatilityThreshold      float64
	VolumeDropPct            float64
	MaxDrawdownPct           float64
	MinSellConfidence        int
	ConfidenceBoostThreshold float64
	ConfidenceBoostIncrement int

	// Background position monitor
	MonitorIntervalMinutes int

	// Logging
	LogPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8090"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChannels:  splitAndTrim(getEnv("TELEGRAM_CHANNELS", "")),
		DBPath:            getEnv("DB_PATH", "./data/signals.db"),
		ChannelConfigPath: getEnv("CHANNEL_CONFIG_PATH", "./channels.yaml"),

		LLMBaseURL:       getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		UseLLMParser:     getEnv("USE_LLM_PARSER", "true") == "true",
		UseLLMTakeProfit: getEnv("USE_LLM_TAKE_PROFIT", "false") == "true",

		MinConfidence:  getEnvInt("MIN_CONFIDENCE", 70),
		MaxDailyTrades: getEnvInt("MAX_DAILY_TRADES", 10),

		SizingMode:      getEnv("SIZING_MODE", SizingFixedUSD),
		OrderSizeUSD:    getEnvFloat("ORDER_SIZE_USD", 100),
		OrderSizePct:    getEnvFloat("ORDER_SIZE_PCT", 5),
		DefaultLeverage: getEnvInt("DEFAULT_LEVERAGE", 0),
		PreferredQuote:  strings.ToUpper(getEnv("PREFERRED_QUOTE", "USDT")),

		DryRun:               getEnv("DRY_RUN", "true") == "true",
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 10000),
		ResetWalletOnStart:   getEnv("RESET_WALLET_ON_START", "false") == "true",

		SellEngineEnabled:        getEnv("SELL_ENGINE_ENABLED", "true") == "true",
		MinProfitPct:             getEnvFloat("MIN_PROFIT_PCT", 2),
		MaxLossPct:               getEnvFloat("MAX_LOSS_PCT", 10),
		MinHoldMinutes:           getEnvInt("MIN_HOLD_MINUTES", 30),
		MaxHoldHours:             getEnvInt("MAX_HOLD_HOURS", 72),
		VolatilityThreshold:      getEnvFloat("VOLATILITY_THRESHOLD", 5),
		VolumeDropPct:            getEnvFloat("VOLUME_DROP_PCT", 40),
		MaxDrawdownPct:           getEnvFloat("MAX_DRAWDOWN_PCT", 15),
		MinSellConfidence:        getEnvInt("MIN_SELL_CONFIDENCE", 60),
		ConfidenceBoostThreshold: getEnvFloat("CONFIDENCE_BOOST_THRESHOLD", 5),
		ConfidenceBoostIncrement: getEnvInt("CONFIDENCE_BOOST_INCREMENT", 20),

		MonitorIntervalMinutes: getEnvInt("MONITOR_INTERVAL_MINUTES", 5),

		LogPath: getEnv("LOG_PATH", "./logs/signal-trader.log"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
