// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the full service configuration. Every field has a default that
// yields a working single-node development setup with the in-memory store
// and the price simulator.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL enables the PostgreSQL store when set; empty runs on the
	// in-memory store.
	DatabaseURL string
	// RedisURL enables the leaderboard/position cache when set.
	RedisURL string
	CacheTTL time.Duration

	StartingBalance  decimal.Decimal
	MaxOrderValue    decimal.Decimal
	MaxPositionValue decimal.Decimal
	OracleTimeout    time.Duration

	CandleInterval time.Duration
	CandleHistory  int

	// SimSymbols seeds the price simulator, "SYMBOL:PRICE" comma-separated.
	SimSymbols    map[string]decimal.Decimal
	SimInterval   time.Duration
	SimMaxMovePct float64
	SimSeed       int64

	LeaderboardRefresh time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		SimSeed:            time.Now().UnixNano(),
		CandleHistory:      500,
		SimMaxMovePct:      0.005,
		StartingBalance:    decimal.NewFromInt(100000),
		MaxOrderValue:      decimal.Zero,
		MaxPositionValue:   decimal.Zero,
		OracleTimeout:      2 * time.Second,
		CandleInterval:     time.Minute,
		SimInterval:        time.Second,
		CacheTTL:           5 * time.Second,
		LeaderboardRefresh: 30 * time.Second,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       15 * time.Second,
		ShutdownTimeout:    10 * time.Second,
	}

	var err error
	if cfg.StartingBalance, err = getEnvDecimal("STARTING_BALANCE", cfg.StartingBalance); err != nil {
		return nil, err
	}
	if cfg.MaxOrderValue, err = getEnvDecimal("MAX_ORDER_VALUE", cfg.MaxOrderValue); err != nil {
		return nil, err
	}
	if cfg.MaxPositionValue, err = getEnvDecimal("MAX_POSITION_VALUE", cfg.MaxPositionValue); err != nil {
		return nil, err
	}
	if cfg.OracleTimeout, err = getEnvDuration("ORACLE_TIMEOUT", cfg.OracleTimeout); err != nil {
		return nil, err
	}
	if cfg.CandleInterval, err = getEnvDuration("CANDLE_INTERVAL", cfg.CandleInterval); err != nil {
		return nil, err
	}
	if cfg.CandleHistory, err = getEnvInt("CANDLE_HISTORY", cfg.CandleHistory); err != nil {
		return nil, err
	}
	if cfg.SimInterval, err = getEnvDuration("SIM_INTERVAL", cfg.SimInterval); err != nil {
		return nil, err
	}
	if cfg.SimMaxMovePct, err = getEnvFloat("SIM_MAX_MOVE_PCT", cfg.SimMaxMovePct); err != nil {
		return nil, err
	}
	if cfg.SimSeed, err = getEnvInt64("SIM_SEED", cfg.SimSeed); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.LeaderboardRefresh, err = getEnvDuration("LEADERBOARD_REFRESH", cfg.LeaderboardRefresh); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout, err = getEnvDuration("READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getEnvDuration("WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.SimSymbols, err = parseSymbols(getEnv("SIM_SYMBOLS", "NIFTY 50:22000,BANKNIFTY:48000")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseSymbols parses "SYMBOL:PRICE,SYMBOL:PRICE" seed pairs.
func parseSymbols(raw string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.LastIndex(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return nil, fmt.Errorf("SIM_SYMBOLS: malformed pair %q", pair)
		}
		price, err := decimal.NewFromString(pair[idx+1:])
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("SIM_SYMBOLS: bad price in %q", pair)
		}
		out[pair[:idx]] = price
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("SIM_SYMBOLS: no symbols configured")
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
