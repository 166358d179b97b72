// Package position implements the position book: applying executed fills
// to open positions (weighted-average adds, realized-P&L crystallization,
// flip-over) and marking positions to market.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
)

// Fill is one executed trade to be folded into a position.
type Fill struct {
	UserID       string
	TournamentID string
	Symbol       string
	Instrument   model.InstrumentType
	LotSize      int64
	Side         model.OrderSide
	Quantity     int64 // always positive; Side carries direction
	Price        decimal.Decimal
	Time         time.Time
}

// signedQuantity returns the fill quantity with direction applied.
func (f Fill) signedQuantity() int64 {
	if f.Side == model.SideSell {
		return -f.Quantity
	}
	return f.Quantity
}

// Result is the outcome of applying a fill.
type Result struct {
	// Position is the updated position, nil when the fill closed it exactly.
	Position *model.Position
	// Realized is the P&L crystallized by the closed portion of the fill,
	// zero for opening and same-direction fills.
	Realized decimal.Decimal
	// Closed reports that the prior position was fully closed (including
	// the closed leg of a flip).
	Closed bool
}

// Apply folds a fill into an existing position (nil when the user holds
// nothing in the symbol/scope) and returns the new state plus the realized
// P&L delta. The input position is not mutated.
//
//   - No position: open one at the fill price.
//   - Same direction: quantity accumulates, average price is the
//     quantity-weighted mean of old and new.
//   - Opposite direction: the overlapping quantity closes at the fill
//     price, realizing (price − avg) × closed × multiplier × sign(old).
//     An exact close removes the position; excess quantity flips into a
//     fresh position in the opposite direction at the fill price.
func Apply(existing *model.Position, f Fill) Result {
	signed := f.signedQuantity()

	if existing == nil || existing.Quantity == 0 {
		return Result{Position: open(f, signed)}
	}

	p := *existing // work on a copy

	if sameSign(p.Quantity, signed) {
		oldUnits := decimal.NewFromInt(absInt64(p.Quantity))
		addUnits := decimal.NewFromInt(f.Quantity)
		totalCost := p.AveragePrice.Mul(oldUnits).Add(f.Price.Mul(addUnits))
		p.Quantity += signed
		p.AveragePrice = totalCost.Div(oldUnits.Add(addUnits))
		p.MarkPrice = f.Price
		p.UpdatedAt = f.Time
		p.RefreshUnrealized()
		return Result{Position: &p}
	}

	// Opposite direction: close up to |old| units at the fill price.
	closed := minInt64(f.Quantity, absInt64(p.Quantity))
	closedSigned := closed * signOf(p.Quantity)
	realized := p.Instrument.PnL(p.AveragePrice, f.Price, closedSigned, p.LotSize)

	remaining := p.Quantity + signed
	if remaining == 0 {
		return Result{Realized: realized, Closed: true}
	}

	if sameSign(remaining, p.Quantity) {
		// Partial reduction: average entry price is unchanged.
		p.Quantity = remaining
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.MarkPrice = f.Price
		p.UpdatedAt = f.Time
		p.RefreshUnrealized()
		return Result{Position: &p, Realized: realized}
	}

	// Flip: old direction fully closed, excess opens the other way at the
	// fill price. Realized P&L of the closed leg is booked to the caller;
	// the new position starts clean.
	flipped := open(f, remaining)
	return Result{Position: flipped, Realized: realized, Closed: true}
}

// MarkToMarket updates the mark price and recomputes unrealized P&L in
// place. Quantity and realized P&L are untouched.
func MarkToMarket(p *model.Position, price decimal.Decimal, at time.Time) {
	p.MarkPrice = price
	p.UpdatedAt = at
	p.RefreshUnrealized()
}

func open(f Fill, signed int64) *model.Position {
	p := &model.Position{
		UserID:       f.UserID,
		TournamentID: f.TournamentID,
		Symbol:       f.Symbol,
		Instrument:   f.Instrument,
		LotSize:      f.LotSize,
		Quantity:     signed,
		AveragePrice: f.Price,
		MarkPrice:    f.Price,
		RealizedPnL:  decimal.Zero,
		CreatedAt:    f.Time,
		UpdatedAt:    f.Time,
	}
	p.RefreshUnrealized()
	return p
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func signOf(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
