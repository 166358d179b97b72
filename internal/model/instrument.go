package model

import "github.com/shopspring/decimal"

// InstrumentType is the closed set of tradable instrument classes. The
// variant selects the P&L formula: option contracts are priced per lot,
// index instruments trade in plain units with no multiplier.
type InstrumentType string

const (
	InstrumentIndex    InstrumentType = "INDEX"
	InstrumentOptionCE InstrumentType = "OPTION_CE"
	InstrumentOptionPE InstrumentType = "OPTION_PE"
)

// Valid reports whether t is a known instrument type.
func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentIndex, InstrumentOptionCE, InstrumentOptionPE:
		return true
	}
	return false
}

// IsOption reports whether t is an option contract (CE or PE).
func (t InstrumentType) IsOption() bool {
	return t == InstrumentOptionCE || t == InstrumentOptionPE
}

// EffectiveLot returns the contract multiplier applied to cash and P&L.
// Options carry their lot size; index instruments always multiply by 1.
func (t InstrumentType) EffectiveLot(lotSize int64) int64 {
	if t.IsOption() && lotSize > 1 {
		return lotSize
	}
	return 1
}

// PnL computes profit or loss for a signed quantity held from avg to mark:
// (mark − avg) × qty × multiplier. The signed quantity makes the formula
// hold for both long and short holdings.
func (t InstrumentType) PnL(avg, mark decimal.Decimal, qty, lotSize int64) decimal.Decimal {
	units := decimal.NewFromInt(qty * t.EffectiveLot(lotSize))
	return mark.Sub(avg).Mul(units)
}

// Notional returns the cash value of qty units at the given price,
// including the contract multiplier for options.
func (t InstrumentType) Notional(price decimal.Decimal, qty, lotSize int64) decimal.Decimal {
	units := decimal.NewFromInt(qty * t.EffectiveLot(lotSize))
	return price.Mul(units)
}
