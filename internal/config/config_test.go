package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port %s, want 8080", cfg.Port)
	}
	if !cfg.StartingBalance.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("starting balance %s, want 100000", cfg.StartingBalance)
	}
	if cfg.CandleInterval != time.Minute {
		t.Errorf("candle interval %s, want 1m", cfg.CandleInterval)
	}
	if len(cfg.SimSymbols) != 2 {
		t.Errorf("expected 2 default symbols, got %d", len(cfg.SimSymbols))
	}
	if !cfg.SimSymbols["NIFTY 50"].Equal(decimal.NewFromInt(22000)) {
		t.Errorf("NIFTY 50 seed %s, want 22000", cfg.SimSymbols["NIFTY 50"])
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STARTING_BALANCE", "250000.50")
	t.Setenv("CANDLE_INTERVAL", "5m")
	t.Setenv("SIM_SYMBOLS", "FINNIFTY:19500.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("port %s, want 9000", cfg.Port)
	}
	if !cfg.StartingBalance.Equal(decimal.RequireFromString("250000.50")) {
		t.Errorf("starting balance %s, want 250000.50", cfg.StartingBalance)
	}
	if cfg.CandleInterval != 5*time.Minute {
		t.Errorf("candle interval %s, want 5m", cfg.CandleInterval)
	}
	if !cfg.SimSymbols["FINNIFTY"].Equal(decimal.RequireFromString("19500.25")) {
		t.Errorf("FINNIFTY seed %s", cfg.SimSymbols["FINNIFTY"])
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("ORACLE_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestParseSymbols(t *testing.T) {
	syms, err := parseSymbols("NIFTY 50:22000, BANKNIFTY:48000.75")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(syms) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(syms))
	}

	for _, bad := range []string{"", "NIFTY", "NIFTY:", ":100", "NIFTY:-5", "NIFTY:abc"} {
		if _, err := parseSymbols(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
