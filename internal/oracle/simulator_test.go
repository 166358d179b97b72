package oracle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/oracle"
)

func newSim(t *testing.T, seed int64) *oracle.Simulator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return oracle.NewSimulator(map[string]decimal.Decimal{
		"NIFTY 50": decimal.NewFromInt(22000),
	}, time.Second, 0.005, seed, log)
}

func TestPrice_KnownSymbol(t *testing.T) {
	s := newSim(t, 1)
	price, err := s.Price(context.Background(), "NIFTY 50")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(22000)) {
		t.Errorf("expected seed price 22000, got %s", price)
	}
}

func TestPrice_UnknownSymbol(t *testing.T) {
	s := newSim(t, 1)
	_, err := s.Price(context.Background(), "UNKNOWN")
	if !errors.Is(err, model.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestStep_MovesWithinBand(t *testing.T) {
	s := newSim(t, 42)
	prev := decimal.NewFromInt(22000)
	band := decimal.NewFromFloat(0.0051) // small allowance for paise rounding

	for i := 0; i < 500; i++ {
		s.Step(time.Now())
		price, err := s.Price(context.Background(), "NIFTY 50")
		if err != nil {
			t.Fatal(err)
		}
		move := price.Sub(prev).Abs().Div(prev)
		if move.GreaterThan(band) {
			t.Fatalf("step %d moved %s of price, band is 0.5%%", i, move)
		}
		if !price.IsPositive() {
			t.Fatalf("price went non-positive: %s", price)
		}
		prev = price
	}
}

func TestStep_EmitsTicksWithGrowingVolume(t *testing.T) {
	s := newSim(t, 7)
	var ticks []model.Tick
	s.OnTick(func(tick model.Tick) { ticks = append(ticks, tick) })

	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s.Step(at.Add(time.Duration(i) * time.Second))
	}

	if len(ticks) != 10 {
		t.Fatalf("expected 10 ticks, got %d", len(ticks))
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i].CumulativeVolume < ticks[i-1].CumulativeVolume {
			t.Fatalf("cumulative volume decreased at tick %d", i)
		}
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	a, b := newSim(t, 99), newSim(t, 99)
	for i := 0; i < 50; i++ {
		a.Step(time.Now())
		b.Step(time.Now())
	}
	pa, _ := a.Price(context.Background(), "NIFTY 50")
	pb, _ := b.Price(context.Background(), "NIFTY 50")
	if !pa.Equal(pb) {
		t.Errorf("same seed diverged: %s vs %s", pa, pb)
	}
}
