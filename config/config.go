package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"confluenceBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Trading modes.
const (
	ModePaper = "paper" // entries are journaled only
	ModeLive  = "live"  // entries are sent to the exchange
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Instrument
	Symbol            string
	Interval          string   // primary (chart) timeframe
	HTFInterval       string   // higher timeframe, empty disables HTF streams
	ComparisonSymbols []string // correlated symbols for SMT, at most two
	TickSize          float64
	QuantityStep      float64 // exchange lot step, quantities are truncated to it
	TradingMode       string
	WarmupBars        int

	// Strategy parameter file (YAML). Empty uses built-in defaults.
	StrategyParamsPath string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // json or console

	// Metrics
	MetricsAddr string // empty disables the /metrics endpoint

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.TradingMode = strings.ToLower(getEnv("TRADING_MODE", ModePaper))
	if cfg.TradingMode != ModePaper && cfg.TradingMode != ModeLive {
		errs = append(errs, fmt.Sprintf("TRADING_MODE must be %q or %q", ModePaper, ModeLive))
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Keys are only needed to place orders; market data is public.
	if cfg.TradingMode == ModeLive {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set in live mode")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set in live mode")
		}
	}

	// Instrument
	cfg.Symbol = getEnv("SYMBOL", "BTCUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Interval = getEnv("INTERVAL", "5m")
	if cfg.Interval == "" {
		errs = append(errs, "INTERVAL must be set")
	}
	cfg.HTFInterval = getEnv("HTF_INTERVAL", "1h")
	if cfg.HTFInterval != "" && cfg.HTFInterval == cfg.Interval {
		errs = append(errs, "HTF_INTERVAL must differ from INTERVAL")
	}

	cfg.ComparisonSymbols = getEnvAsList("COMPARISON_SYMBOLS")
	if len(cfg.ComparisonSymbols) > 2 {
		errs = append(errs, "COMPARISON_SYMBOLS accepts at most two symbols")
	}

	cfg.TickSize, err = getEnvAsFloatRequired("TICK_SIZE", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TICK_SIZE: %v", err))
	} else if cfg.TickSize <= 0 {
		errs = append(errs, "TICK_SIZE must be positive")
	}

	cfg.QuantityStep, err = getEnvAsFloatRequired("QUANTITY_STEP", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUANTITY_STEP: %v", err))
	} else if cfg.QuantityStep <= 0 {
		errs = append(errs, "QUANTITY_STEP must be positive")
	}

	cfg.WarmupBars, err = getEnvAsIntRequired("WARMUP_BARS", 500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WARMUP_BARS: %v", err))
	} else if cfg.WarmupBars < 0 || cfg.WarmupBars > 1500 {
		errs = append(errs, "WARMUP_BARS must be between 0 and 1500")
	}

	cfg.StrategyParamsPath = getEnv("STRATEGY_PARAMS_PATH", "")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/confluence_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
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
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
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

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
