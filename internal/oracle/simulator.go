package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
)

// Simulator is a random-walk PriceOracle for development and tournaments
// without a live feed. Each step moves every symbol by up to ±MaxMovePct
// and reports a growing cumulative volume, mimicking an exchange feed.
type Simulator struct {
	interval   time.Duration
	maxMovePct float64
	log        *slog.Logger

	mu       sync.RWMutex
	prices   map[string]decimal.Decimal
	volumes  map[string]int64
	rng      *rand.Rand
	handlers []func(model.Tick)
}

var _ PriceOracle = (*Simulator)(nil)

// minPrice keeps the walk from collapsing to zero.
var minPrice = decimal.NewFromFloat(0.05)

// NewSimulator seeds the walk with initial prices. The seed makes runs
// reproducible; pass time.Now().UnixNano() for production noise.
func NewSimulator(initial map[string]decimal.Decimal, interval time.Duration, maxMovePct float64, seed int64, log *slog.Logger) *Simulator {
	prices := make(map[string]decimal.Decimal, len(initial))
	volumes := make(map[string]int64, len(initial))
	for symbol, price := range initial {
		prices[symbol] = price
		volumes[symbol] = 0
	}
	return &Simulator{
		interval:   interval,
		maxMovePct: maxMovePct,
		log:        log,
		prices:     prices,
		volumes:    volumes,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// OnTick registers a handler called for every emitted tick. Handlers run on
// the simulator goroutine and must return quickly.
func (s *Simulator) OnTick(fn func(model.Tick)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Price returns the symbol's current simulated price.
func (s *Simulator) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrPriceUnavailable, symbol)
	}
	return price, nil
}

// Run emits ticks at the configured interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("price simulator started", "interval", s.interval, "symbols", len(s.prices))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("price simulator stopped")
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step advances every symbol one tick and fans the ticks out to handlers.
// Exposed so tests can drive the walk without real time.
func (s *Simulator) Step(now time.Time) {
	s.mu.Lock()
	ticks := make([]model.Tick, 0, len(s.prices))
	for symbol, price := range s.prices {
		next := s.walk(price)
		s.prices[symbol] = next
		s.volumes[symbol] += s.rng.Int63n(1000)
		ticks = append(ticks, model.Tick{
			Symbol:           symbol,
			Price:            next,
			CumulativeVolume: s.volumes[symbol],
			Timestamp:        now,
		})
	}
	handlers := s.handlers
	s.mu.Unlock()

	for _, t := range ticks {
		for _, fn := range handlers {
			fn(t)
		}
	}
}

// walk applies one random move of up to ±maxMovePct, rounded to paise.
func (s *Simulator) walk(price decimal.Decimal) decimal.Decimal {
	pct := (s.rng.Float64()*2 - 1) * s.maxMovePct
	next := price.Mul(decimal.NewFromFloat(1 + pct)).Round(2)
	if next.LessThan(minPrice) {
		return minPrice
	}
	return next
}
