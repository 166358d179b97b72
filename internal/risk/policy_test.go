package risk_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/risk"
)

func TestCheckOrder_OrderValueLimit(t *testing.T) {
	p := risk.Policy{MaxOrderValue: decimal.NewFromInt(10000)}

	if err := p.CheckOrder(decimal.NewFromInt(10000), decimal.Zero); err != nil {
		t.Errorf("order at the limit must pass, got %v", err)
	}
	err := p.CheckOrder(decimal.NewFromInt(10001), decimal.Zero)
	if !errors.Is(err, model.ErrPositionLimitExceeded) {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckOrder_PositionValueLimit(t *testing.T) {
	p := risk.Policy{MaxPositionValue: decimal.NewFromInt(50000)}

	if err := p.CheckOrder(decimal.NewFromInt(20000), decimal.NewFromInt(30000)); err != nil {
		t.Errorf("combined exposure at the limit must pass, got %v", err)
	}
	err := p.CheckOrder(decimal.NewFromInt(20001), decimal.NewFromInt(30000))
	if !errors.Is(err, model.ErrPositionLimitExceeded) {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckOrder_ZeroLimitsDisableChecks(t *testing.T) {
	var p risk.Policy
	if err := p.CheckOrder(decimal.NewFromInt(1_000_000_000), decimal.NewFromInt(1_000_000_000)); err != nil {
		t.Errorf("zero limits must disable checks, got %v", err)
	}
}
