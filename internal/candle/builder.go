// Package candle turns raw price ticks into fixed-interval OHLCV bars.
package candle

import (
	"sync"
	"time"

	"github.com/tradearena/trading-engine/internal/model"
)

// Builder aggregates ticks into interval-aligned candles, one open candle
// per symbol. The feed reports cumulative day volume, so per-candle volume
// is delta-accounted against the previous tick.
type Builder struct {
	interval time.Duration

	mu      sync.Mutex
	current map[string]*model.Candle
	lastVol map[string]int64
	seen    map[string]bool
}

// NewBuilder returns a builder producing candles of the given interval.
func NewBuilder(interval time.Duration) *Builder {
	return &Builder{
		interval: interval,
		current:  make(map[string]*model.Candle),
		lastVol:  make(map[string]int64),
		seen:     make(map[string]bool),
	}
}

// Interval returns the candle interval.
func (b *Builder) Interval() time.Duration { return b.interval }

// ProcessTick folds one tick into the symbol's open candle. When the tick
// falls into a later interval than the open candle, that candle is complete
// and returned; otherwise nil. A candle only completes once a tick from a
// later interval arrives, so the count of completed candles is always one
// less than the count of distinct intervals seen.
func (b *Builder) ProcessTick(t model.Tick) *model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := t.Timestamp.Truncate(b.interval)
	delta := b.volumeDelta(t)

	cur := b.current[t.Symbol]
	if cur == nil {
		b.current[t.Symbol] = b.open(t, start, delta)
		return nil
	}

	if start.After(cur.Start) {
		completed := cur
		b.current[t.Symbol] = b.open(t, start, delta)
		return completed
	}

	if t.Price.GreaterThan(cur.High) {
		cur.High = t.Price
	}
	if t.Price.LessThan(cur.Low) {
		cur.Low = t.Price
	}
	cur.Close = t.Price
	cur.Volume += delta
	return nil
}

// Current returns a copy of the symbol's open candle, nil when no tick has
// arrived yet.
func (b *Builder) Current(symbol string) *model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.current[symbol]
	if cur == nil {
		return nil
	}
	cp := *cur
	return &cp
}

// Flush completes and returns every open candle, used on shutdown so the
// trailing partial bar is not lost.
func (b *Builder) Flush() []model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Candle, 0, len(b.current))
	for symbol, cur := range b.current {
		out = append(out, *cur)
		delete(b.current, symbol)
	}
	return out
}

// volumeDelta converts cumulative feed volume into within-candle volume.
// The first tick of a symbol contributes nothing (its cumulative total
// predates us), and a backwards jump means the feed reset, also nothing.
func (b *Builder) volumeDelta(t model.Tick) int64 {
	defer func() {
		b.lastVol[t.Symbol] = t.CumulativeVolume
		b.seen[t.Symbol] = true
	}()
	if !b.seen[t.Symbol] {
		return 0
	}
	delta := t.CumulativeVolume - b.lastVol[t.Symbol]
	if delta < 0 {
		return 0
	}
	return delta
}

func (b *Builder) open(t model.Tick, start time.Time, volume int64) *model.Candle {
	return &model.Candle{
		Symbol:   t.Symbol,
		Start:    start,
		Interval: b.interval,
		Open:     t.Price,
		High:     t.Price,
		Low:      t.Price,
		Close:    t.Price,
		Volume:   volume,
	}
}
