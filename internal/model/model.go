// Package model defines the core domain types shared across the trading
// engine. All monetary values use shopspring/decimal, never float64.
// Quantities are integer units (option lots are whole contracts).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's virtual cash balance. Balance is mutated only
// through ledger debit/credit operations and never goes negative.
type Wallet struct {
	UserID           string          `json:"user_id" db:"user_id"`
	Balance          decimal.Decimal `json:"balance" db:"balance"`
	Currency         string          `json:"currency" db:"currency"`
	TotalDeposits    decimal.Decimal `json:"total_deposits" db:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals" db:"total_withdrawals"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// CanAfford reports whether the wallet covers the given amount.
func (w *Wallet) CanAfford(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// PositionKey identifies one position: a user's net holding in one symbol
// within one tournament scope. TournamentID is empty for free-play.
type PositionKey struct {
	UserID       string
	TournamentID string
	Symbol       string
}

// Position is a user's open holding in one instrument. Quantity is signed:
// positive long, negative short. A position with quantity 0 does not exist;
// it is removed from storage when a fill closes it exactly.
type Position struct {
	UserID        string          `json:"user_id" db:"user_id"`
	TournamentID  string          `json:"tournament_id,omitempty" db:"tournament_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Instrument    InstrumentType  `json:"instrument_type" db:"instrument_type"`
	LotSize       int64           `json:"lot_size" db:"lot_size"`
	Quantity      int64           `json:"quantity" db:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price" db:"average_price"`
	MarkPrice     decimal.Decimal `json:"mark_price" db:"mark_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Key returns the storage key for this position.
func (p *Position) Key() PositionKey {
	return PositionKey{UserID: p.UserID, TournamentID: p.TournamentID, Symbol: p.Symbol}
}

// IsLong reports whether the position is net long.
func (p *Position) IsLong() bool { return p.Quantity > 0 }

// IsShort reports whether the position is net short.
func (p *Position) IsShort() bool { return p.Quantity < 0 }

// RefreshUnrealized recomputes unrealized P&L from the current mark price.
// It never touches realized P&L or quantity.
func (p *Position) RefreshUnrealized() {
	p.UnrealizedPnL = p.Instrument.PnL(p.AveragePrice, p.MarkPrice, p.Quantity, p.LotSize)
}

// TotalPnL returns realized plus unrealized P&L.
func (p *Position) TotalPnL() decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}

// InvestedValue returns the capital tied up in the position at entry.
func (p *Position) InvestedValue() decimal.Decimal {
	qty := decimal.NewFromInt(absInt64(p.Quantity) * p.Instrument.EffectiveLot(p.LotSize))
	return p.AveragePrice.Mul(qty)
}

// Tick is a single raw price update from the market data feed.
// CumulativeVolume is the running day volume as reported by the feed.
type Tick struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	CumulativeVolume int64           `json:"volume"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Candle is one fixed-interval OHLCV bar. Start is the interval-aligned
// open time; Volume is the delta-accounted volume within the interval.
type Candle struct {
	Symbol   string          `json:"symbol"`
	Start    time.Time       `json:"start"`
	Interval time.Duration   `json:"interval"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   int64           `json:"volume"`
}

// Portfolio is a read model summarizing a user's wallet and open positions.
type Portfolio struct {
	UserID           string          `json:"user_id"`
	Positions        []Position      `json:"positions"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	InvestedAmount   decimal.Decimal `json:"invested_amount"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
	OpenPositions    int             `json:"open_positions_count"`
	TotalTrades      int             `json:"total_trades"`
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
