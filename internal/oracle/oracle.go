// Package oracle provides price discovery for order execution and the
// market data feed.
package oracle

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle answers "what does this symbol trade at right now". Execution
// quality depends entirely on it; implementations must respect ctx so a
// stalled source rejects orders instead of hanging them.
type PriceOracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
