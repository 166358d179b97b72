// Package risk enforces pre-trade exposure limits.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
)

// Policy caps order and position sizes. A zero limit disables that check.
type Policy struct {
	// MaxOrderValue caps the notional of a single order.
	MaxOrderValue decimal.Decimal
	// MaxPositionValue caps a user's total invested value within one scope
	// after the order would execute.
	MaxPositionValue decimal.Decimal
}

// CheckOrder validates an order of the given notional against the limits.
// exposure is the user's current invested value in the same scope.
func (p Policy) CheckOrder(notional, exposure decimal.Decimal) error {
	if p.MaxOrderValue.IsPositive() && notional.GreaterThan(p.MaxOrderValue) {
		return fmt.Errorf("%w: order value %s exceeds limit %s",
			model.ErrPositionLimitExceeded, notional, p.MaxOrderValue)
	}
	if p.MaxPositionValue.IsPositive() && exposure.Add(notional).GreaterThan(p.MaxPositionValue) {
		return fmt.Errorf("%w: position value %s exceeds limit %s",
			model.ErrPositionLimitExceeded, exposure.Add(notional), p.MaxPositionValue)
	}
	return nil
}
