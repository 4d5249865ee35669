package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the signal engine.
type Config struct {
	Port string

	// Market data
	Symbols     []string
	UseMockFeed bool
	MockStart   float64 // mock feed starting price
	MockStep    float64 // mock feed max random step per bar
	CSVPath     string  // optional bar history to preload

	// Engine intervals
	TickInterval   time.Duration
	SignalInterval time.Duration
	RiskInterval   time.Duration

	// Capital & execution
	InitialCapital float64
	MinConfidence  float64
	OrdersPerSec   float64
	ExecWorkers    int

	// Paper gateway simulation
	PaperBalance    float64
	PaperFeeRate    float64 // decimal (e.g. 0.0004 = 4 bps)
	PaperSlippageBp float64 // slippage applied on fills (bps)

	// Risk defaults
	MaxPositionSize   float64
	StopLossPercent   float64
	TakeProfitPercent float64
	MaxDailyLoss      float64

	// Aggregation defaults
	AggregationMethod string
	MinimumSignals    int

	// Persistence & strategies
	DBPath        string
	StrategiesYml string
	HistoryWindow int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Symbols:           splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		UseMockFeed:       getEnv("USE_MOCK_FEED", "true") == "true",
		MockStart:         getEnvFloat("MOCK_START_PRICE", 100.0),
		MockStep:          getEnvFloat("MOCK_STEP", 0.5),
		CSVPath:           getEnv("CSV_PATH", ""),
		TickInterval:      getEnvDuration("TICK_INTERVAL", time.Second),
		SignalInterval:    getEnvDuration("SIGNAL_INTERVAL", 5*time.Second),
		RiskInterval:      getEnvDuration("RISK_INTERVAL", 10*time.Second),
		InitialCapital:    getEnvFloat("INITIAL_CAPITAL", 10000.0),
		MinConfidence:     getEnvFloat("MIN_CONFIDENCE", 0.7),
		OrdersPerSec:      getEnvFloat("ORDERS_PER_SEC", 5),
		ExecWorkers:       getEnvInt("EXEC_WORKERS", 4),
		PaperBalance:      getEnvFloat("PAPER_BALANCE", 100000.0),
		PaperFeeRate:      getEnvFloat("PAPER_FEE_RATE", 0.0004),
		PaperSlippageBp:   getEnvFloat("PAPER_SLIPPAGE_BPS", 2),
		MaxPositionSize:   getEnvFloat("MAX_POSITION_SIZE", 10),
		StopLossPercent:   getEnvFloat("STOP_LOSS_PERCENT", 2),
		TakeProfitPercent: getEnvFloat("TAKE_PROFIT_PERCENT", 4),
		MaxDailyLoss:      getEnvFloat("MAX_DAILY_LOSS", 500),
		AggregationMethod: getEnv("AGGREGATION_METHOD", "majority"),
		MinimumSignals:    getEnvInt("MINIMUM_SIGNALS", 1),
		DBPath:            getEnv("DB_PATH", "./data/signal-engine.db"),
		StrategiesYml:     getEnv("STRATEGIES_PATH", "./strategies.yaml"),
		HistoryWindow:     getEnvInt("HISTORY_WINDOW", 500),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
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

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
