package engine_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/tradearena/trading-engine/internal/engine"
	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/risk"
)

// For any sequence of market orders at any prices: the balance never goes
// negative, and the final balance equals the starting balance plus executed
// sell notionals minus executed buy notionals. Cash moves only with fills.
func TestPlaceOrder_CashConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		f := newFixture(t, risk.Policy{})
		start := decimal.NewFromInt(100000)
		f.fundWallet(t, "u1", 100000)

		n := rapid.IntRange(1, 40).Draw(t, "orders")
		for i := 0; i < n; i++ {
			f.oracle.prices["NIFTY 50"] = decimal.NewFromInt(rapid.Int64Range(100, 900).Draw(t, "price"))
			qty := rapid.Int64Range(1, 50).Draw(t, "qty")

			var intent engine.OrderIntent
			if rapid.Bool().Draw(t, "buy") {
				intent = marketBuy("u1", qty)
			} else {
				intent = marketSell("u1", qty)
			}
			// Rejections (insufficient funds) are part of the property:
			// they must not move cash.
			f.engine.PlaceOrder(ctx, intent)

			w, err := f.store.GetWallet(ctx, "u1")
			if err != nil {
				t.Fatalf("get wallet: %v", err)
			}
			if w.Balance.IsNegative() {
				t.Fatalf("balance went negative: %s", w.Balance)
			}
		}

		orders, err := f.store.ListOrdersByUser(ctx, "u1", 0)
		if err != nil {
			t.Fatalf("list orders: %v", err)
		}
		expected := start
		for _, o := range orders {
			if o.Status != model.StatusExecuted {
				continue
			}
			notional := o.ExecutedPrice.Mul(decimal.NewFromInt(o.ExecutedQuantity))
			if o.Side == model.SideBuy {
				expected = expected.Sub(notional)
			} else {
				expected = expected.Add(notional)
			}
		}
		w, _ := f.store.GetWallet(ctx, "u1")
		if !w.Balance.Equal(expected) {
			t.Fatalf("cash not conserved: balance %s, executed fills imply %s", w.Balance, expected)
		}
	})
}
