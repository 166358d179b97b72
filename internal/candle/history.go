package candle

import (
	"sync"

	"github.com/tradearena/trading-engine/internal/model"
)

// History keeps the most recent completed candles per symbol in memory for
// chart queries. Oldest candles roll off once a symbol exceeds the cap.
type History struct {
	max int

	mu       sync.RWMutex
	bySymbol map[string][]model.Candle
}

// NewHistory returns a history keeping at most max candles per symbol.
func NewHistory(max int) *History {
	return &History{max: max, bySymbol: make(map[string][]model.Candle)}
}

// Add appends a completed candle to the symbol's history.
func (h *History) Add(c model.Candle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	candles := append(h.bySymbol[c.Symbol], c)
	if len(candles) > h.max {
		candles = candles[len(candles)-h.max:]
	}
	h.bySymbol[c.Symbol] = candles
}

// List returns up to limit most recent candles for the symbol, oldest
// first. limit <= 0 returns everything retained.
func (h *History) List(symbol string, limit int) []model.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	candles := h.bySymbol[symbol]
	if limit > 0 && limit < len(candles) {
		candles = candles[len(candles)-limit:]
	}
	out := make([]model.Candle, len(candles))
	copy(out, candles)
	return out
}
