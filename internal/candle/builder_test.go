package candle_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/candle"
	"github.com/tradearena/trading-engine/internal/model"
)

var base = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

func tick(symbol string, price float64, cumVol int64, at time.Time) model.Tick {
	return model.Tick{
		Symbol:           symbol,
		Price:            decimal.NewFromFloat(price),
		CumulativeVolume: cumVol,
		Timestamp:        at,
	}
}

func TestProcessTick_FirstTickOpensCandle(t *testing.T) {
	b := candle.NewBuilder(time.Minute)

	if got := b.ProcessTick(tick("NIFTY 50", 100, 1000, base)); got != nil {
		t.Fatalf("first tick must not complete a candle, got %+v", got)
	}

	cur := b.Current("NIFTY 50")
	if cur == nil {
		t.Fatal("expected an open candle")
	}
	if !cur.Open.Equal(decimal.NewFromInt(100)) || !cur.Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected OHLC all 100, got O=%s C=%s", cur.Open, cur.Close)
	}
	if cur.Volume != 0 {
		t.Errorf("first tick contributes no delta volume, got %d", cur.Volume)
	}
}

func TestProcessTick_AggregatesWithinInterval(t *testing.T) {
	b := candle.NewBuilder(time.Minute)

	b.ProcessTick(tick("NIFTY 50", 100, 1000, base))
	b.ProcessTick(tick("NIFTY 50", 105, 1300, base.Add(10*time.Second)))
	b.ProcessTick(tick("NIFTY 50", 98, 1500, base.Add(20*time.Second)))
	b.ProcessTick(tick("NIFTY 50", 102, 1600, base.Add(30*time.Second)))

	cur := b.Current("NIFTY 50")
	if !cur.Open.Equal(decimal.NewFromInt(100)) {
		t.Errorf("open=%s, want 100", cur.Open)
	}
	if !cur.High.Equal(decimal.NewFromInt(105)) {
		t.Errorf("high=%s, want 105", cur.High)
	}
	if !cur.Low.Equal(decimal.NewFromInt(98)) {
		t.Errorf("low=%s, want 98", cur.Low)
	}
	if !cur.Close.Equal(decimal.NewFromInt(102)) {
		t.Errorf("close=%s, want 102", cur.Close)
	}
	if cur.Volume != 600 {
		t.Errorf("volume=%d, want 600 (delta-accounted)", cur.Volume)
	}
}

func TestProcessTick_CompletesOnNextInterval(t *testing.T) {
	b := candle.NewBuilder(time.Minute)

	b.ProcessTick(tick("NIFTY 50", 100, 1000, base))
	b.ProcessTick(tick("NIFTY 50", 101, 1100, base.Add(30*time.Second)))

	done := b.ProcessTick(tick("NIFTY 50", 102, 1200, base.Add(time.Minute)))
	if done == nil {
		t.Fatal("tick in next interval must complete the candle")
	}
	if !done.Start.Equal(base) {
		t.Errorf("completed start=%s, want %s", done.Start, base)
	}
	if !done.Close.Equal(decimal.NewFromInt(101)) {
		t.Errorf("completed close=%s, want 101", done.Close)
	}

	cur := b.Current("NIFTY 50")
	if !cur.Start.Equal(base.Add(time.Minute)) {
		t.Errorf("new candle start=%s, want %s", cur.Start, base.Add(time.Minute))
	}
	if cur.Volume != 100 {
		t.Errorf("new candle volume=%d, want 100", cur.Volume)
	}
}

func TestProcessTick_ThreeIntervalsYieldTwoCandles(t *testing.T) {
	b := candle.NewBuilder(time.Minute)
	completed := 0
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		if b.ProcessTick(tick("NIFTY 50", 100, int64(1000+i*100), at)) != nil {
			completed++
		}
	}
	if completed != 2 {
		t.Errorf("ticks in 3 intervals must complete exactly 2 candles, got %d", completed)
	}
}

func TestProcessTick_VolumeResetContributesNothing(t *testing.T) {
	b := candle.NewBuilder(time.Minute)

	b.ProcessTick(tick("NIFTY 50", 100, 5000, base))
	b.ProcessTick(tick("NIFTY 50", 100, 200, base.Add(10*time.Second))) // feed reset
	b.ProcessTick(tick("NIFTY 50", 100, 500, base.Add(20*time.Second)))

	if got := b.Current("NIFTY 50").Volume; got != 300 {
		t.Errorf("volume=%d, want 300 (reset tick contributes nothing)", got)
	}
}

func TestProcessTick_SymbolsAreIndependent(t *testing.T) {
	b := candle.NewBuilder(time.Minute)

	b.ProcessTick(tick("NIFTY 50", 100, 1000, base))
	b.ProcessTick(tick("BANKNIFTY", 200, 9000, base))

	done := b.ProcessTick(tick("NIFTY 50", 101, 1100, base.Add(time.Minute)))
	if done == nil || done.Symbol != "NIFTY 50" {
		t.Fatalf("expected NIFTY 50 candle completed, got %+v", done)
	}
	if !b.Current("BANKNIFTY").Start.Equal(base) {
		t.Error("other symbol's candle must be untouched")
	}
}

func TestFlush_ReturnsOpenCandles(t *testing.T) {
	b := candle.NewBuilder(time.Minute)
	b.ProcessTick(tick("NIFTY 50", 100, 1000, base))
	b.ProcessTick(tick("BANKNIFTY", 200, 9000, base))

	flushed := b.Flush()
	if len(flushed) != 2 {
		t.Fatalf("expected 2 flushed candles, got %d", len(flushed))
	}
	if b.Current("NIFTY 50") != nil {
		t.Error("flush must clear open candles")
	}
}

func TestHistory_CapsPerSymbol(t *testing.T) {
	h := candle.NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(model.Candle{
			Symbol: "NIFTY 50",
			Start:  base.Add(time.Duration(i) * time.Minute),
			Open:   decimal.NewFromInt(int64(100 + i)),
		})
	}

	candles := h.List("NIFTY 50", 0)
	if len(candles) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(candles))
	}
	// Oldest first, and the two oldest rolled off.
	if !candles[0].Start.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("expected oldest retained start=+2m, got %s", candles[0].Start)
	}
	if !candles[2].Start.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("expected newest last, got %s", candles[2].Start)
	}
}

func TestHistory_ListLimit(t *testing.T) {
	h := candle.NewHistory(10)
	for i := 0; i < 5; i++ {
		h.Add(model.Candle{Symbol: "NIFTY 50", Start: base.Add(time.Duration(i) * time.Minute)})
	}

	candles := h.List("NIFTY 50", 2)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if !candles[1].Start.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("limit must keep the most recent candles, got last start=%s", candles[1].Start)
	}

	if got := h.List("UNKNOWN", 5); len(got) != 0 {
		t.Errorf("unknown symbol should list nothing, got %d", len(got))
	}
}
