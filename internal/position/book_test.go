package position_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/position"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func fill(side model.OrderSide, qty int64, price float64) position.Fill {
	return position.Fill{
		UserID:     "user1",
		Symbol:     "NIFTY 50",
		Instrument: model.InstrumentIndex,
		LotSize:    1,
		Side:       side,
		Quantity:   qty,
		Price:      d(price),
		Time:       time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestApply_OpensNewPosition(t *testing.T) {
	res := position.Apply(nil, fill(model.SideBuy, 10, 500))

	if res.Position == nil {
		t.Fatal("expected a position")
	}
	if res.Position.Quantity != 10 {
		t.Errorf("expected qty=10, got %d", res.Position.Quantity)
	}
	if !res.Position.AveragePrice.Equal(d(500)) {
		t.Errorf("expected avg=500, got %s", res.Position.AveragePrice)
	}
	if !res.Realized.IsZero() {
		t.Errorf("opening fill should realize nothing, got %s", res.Realized)
	}
}

func TestApply_SellOpensShort(t *testing.T) {
	res := position.Apply(nil, fill(model.SideSell, 5, 200))

	if res.Position.Quantity != -5 {
		t.Errorf("expected qty=-5, got %d", res.Position.Quantity)
	}
	if !res.Position.IsShort() {
		t.Error("expected short position")
	}
}

func TestApply_WeightedAverageOnAdd(t *testing.T) {
	res := position.Apply(nil, fill(model.SideBuy, 10, 100))
	res = position.Apply(res.Position, fill(model.SideBuy, 10, 120))

	if res.Position.Quantity != 20 {
		t.Errorf("expected qty=20, got %d", res.Position.Quantity)
	}
	if !res.Position.AveragePrice.Equal(d(110)) {
		t.Errorf("expected avg=110, got %s", res.Position.AveragePrice)
	}
	if !res.Realized.IsZero() {
		t.Errorf("same-direction add should realize nothing, got %s", res.Realized)
	}
}

func TestApply_ShortAddWeightedAverage(t *testing.T) {
	res := position.Apply(nil, fill(model.SideSell, 10, 100))
	res = position.Apply(res.Position, fill(model.SideSell, 30, 140))

	if res.Position.Quantity != -40 {
		t.Errorf("expected qty=-40, got %d", res.Position.Quantity)
	}
	if !res.Position.AveragePrice.Equal(d(130)) {
		t.Errorf("expected avg=130, got %s", res.Position.AveragePrice)
	}
}

func TestApply_ExactCloseRemovesPosition(t *testing.T) {
	res := position.Apply(nil, fill(model.SideBuy, 10, 500))
	res = position.Apply(res.Position, fill(model.SideSell, 10, 550))

	if res.Position != nil {
		t.Fatalf("expected position removed, got qty=%d", res.Position.Quantity)
	}
	if !res.Closed {
		t.Error("expected Closed=true")
	}
	if !res.Realized.Equal(d(500)) {
		t.Errorf("expected realized=500, got %s", res.Realized)
	}
}

func TestApply_PartialReductionKeepsAverage(t *testing.T) {
	res := position.Apply(nil, fill(model.SideBuy, 10, 100))
	res = position.Apply(res.Position, fill(model.SideSell, 4, 130))

	if res.Position.Quantity != 6 {
		t.Errorf("expected qty=6, got %d", res.Position.Quantity)
	}
	if !res.Position.AveragePrice.Equal(d(100)) {
		t.Errorf("reduction must not move avg, got %s", res.Position.AveragePrice)
	}
	if !res.Realized.Equal(d(120)) {
		t.Errorf("expected realized=(130-100)*4=120, got %s", res.Realized)
	}
	if !res.Position.RealizedPnL.Equal(d(120)) {
		t.Errorf("position should accumulate realized, got %s", res.Position.RealizedPnL)
	}
}

func TestApply_FlipLongToShort(t *testing.T) {
	// Long 10 @ 100, sell 15 @ 110: 10 close at +100 realized, short 5 @ 110.
	res := position.Apply(nil, fill(model.SideBuy, 10, 100))
	res = position.Apply(res.Position, fill(model.SideSell, 15, 110))

	if res.Position == nil {
		t.Fatal("expected flipped position")
	}
	if res.Position.Quantity != -5 {
		t.Errorf("expected qty=-5, got %d", res.Position.Quantity)
	}
	if !res.Position.AveragePrice.Equal(d(110)) {
		t.Errorf("flipped position should open at fill price, got %s", res.Position.AveragePrice)
	}
	if !res.Realized.Equal(d(100)) {
		t.Errorf("expected realized=(110-100)*10=100, got %s", res.Realized)
	}
	if !res.Position.RealizedPnL.IsZero() {
		t.Errorf("flipped position starts clean, got realized=%s", res.Position.RealizedPnL)
	}
	if !res.Closed {
		t.Error("flip closes the prior direction")
	}
}

func TestApply_FlipShortToLong(t *testing.T) {
	res := position.Apply(nil, fill(model.SideSell, 10, 200))
	res = position.Apply(res.Position, fill(model.SideBuy, 12, 180))

	if res.Position.Quantity != 2 {
		t.Errorf("expected qty=2, got %d", res.Position.Quantity)
	}
	// Short closed at lower price: (180-200)*(-10) = +200.
	if !res.Realized.Equal(d(200)) {
		t.Errorf("expected realized=200, got %s", res.Realized)
	}
}

func TestApply_ShortCloseAtLoss(t *testing.T) {
	res := position.Apply(nil, fill(model.SideSell, 10, 100))
	res = position.Apply(res.Position, fill(model.SideBuy, 10, 105))

	if res.Position != nil {
		t.Fatal("expected position removed")
	}
	if !res.Realized.Equal(d(-50)) {
		t.Errorf("expected realized=-50, got %s", res.Realized)
	}
}

func TestApply_OptionLotMultiplier(t *testing.T) {
	f := fill(model.SideBuy, 2, 100)
	f.Instrument = model.InstrumentOptionCE
	f.LotSize = 50

	res := position.Apply(nil, f)

	close := fill(model.SideSell, 2, 110)
	close.Instrument = model.InstrumentOptionCE
	close.LotSize = 50
	res = position.Apply(res.Position, close)

	// (110-100) * 2 lots * 50 = 1000.
	if !res.Realized.Equal(d(1000)) {
		t.Errorf("expected realized=1000 with lot multiplier, got %s", res.Realized)
	}
}

func TestApply_IndexIgnoresLotSize(t *testing.T) {
	f := fill(model.SideBuy, 2, 100)
	f.LotSize = 50 // must be ignored for INDEX

	res := position.Apply(nil, f)
	res = position.Apply(res.Position, fill(model.SideSell, 2, 110))

	if !res.Realized.Equal(d(20)) {
		t.Errorf("expected realized=(110-100)*2=20, got %s", res.Realized)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	res := position.Apply(nil, fill(model.SideBuy, 10, 100))
	before := *res.Position

	position.Apply(res.Position, fill(model.SideSell, 4, 130))

	if res.Position.Quantity != before.Quantity {
		t.Error("Apply mutated its input position")
	}
	if !res.Position.AveragePrice.Equal(before.AveragePrice) {
		t.Error("Apply mutated input average price")
	}
}

func TestMarkToMarket_Long(t *testing.T) {
	res := position.Apply(nil, fill(model.SideBuy, 10, 500))
	p := res.Position

	position.MarkToMarket(p, d(520), time.Now())

	if !p.UnrealizedPnL.Equal(d(200)) {
		t.Errorf("expected unrealized=200, got %s", p.UnrealizedPnL)
	}
	if p.Quantity != 10 {
		t.Error("mark-to-market must not touch quantity")
	}
	if !p.RealizedPnL.IsZero() {
		t.Error("mark-to-market must not touch realized P&L")
	}
}

func TestMarkToMarket_ShortGainsWhenPriceFalls(t *testing.T) {
	res := position.Apply(nil, fill(model.SideSell, 10, 500))
	p := res.Position

	position.MarkToMarket(p, d(480), time.Now())

	if !p.UnrealizedPnL.Equal(d(200)) {
		t.Errorf("expected unrealized=200 for short on falling price, got %s", p.UnrealizedPnL)
	}
}

func TestMarkToMarket_OptionUsesLotSize(t *testing.T) {
	f := fill(model.SideBuy, 1, 100)
	f.Instrument = model.InstrumentOptionPE
	f.LotSize = 25
	p := position.Apply(nil, f).Position

	position.MarkToMarket(p, d(104), time.Now())

	if !p.UnrealizedPnL.Equal(d(100)) {
		t.Errorf("expected unrealized=(104-100)*1*25=100, got %s", p.UnrealizedPnL)
	}
}
