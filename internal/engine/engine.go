// Package engine executes paper-trading orders: validation, pricing, risk
// checks, fill application and resting-order triggering.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/metrics"
	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/notify"
	"github.com/tradearena/trading-engine/internal/oracle"
	"github.com/tradearena/trading-engine/internal/position"
	"github.com/tradearena/trading-engine/internal/risk"
	"github.com/tradearena/trading-engine/internal/store"
)

// Ranker is notified after tournament-scoped fills so the leaderboard can
// be recomputed.
type Ranker interface {
	RecomputeRankings(ctx context.Context, tournamentID string) error
}

// Engine coordinates the whole order path. All order flow for one user is
// serialized through a per-user lock; state changes of a fill are committed
// atomically through the store.
type Engine struct {
	store         store.Store
	oracle        oracle.PriceOracle
	policy        risk.Policy
	sink          notify.Sink
	ranker        Ranker
	oracleTimeout time.Duration
	log           *slog.Logger
	locks         *userLocks
}

// NewEngine wires the engine. ranker may be nil when tournaments are not
// served by this process.
func NewEngine(st store.Store, po oracle.PriceOracle, policy risk.Policy, sink notify.Sink, ranker Ranker, oracleTimeout time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		store:         st,
		oracle:        po,
		policy:        policy,
		sink:          sink,
		ranker:        ranker,
		oracleTimeout: oracleTimeout,
		log:           log,
		locks:         newUserLocks(),
	}
}

// OrderIntent is a validated-on-entry request to trade.
type OrderIntent struct {
	UserID       string
	TournamentID string
	Symbol       string
	Instrument   model.InstrumentType
	LotSize      int64
	Side         model.OrderSide
	Type         model.OrderType
	Quantity     int64
	LimitPrice   decimal.Decimal
	TriggerPrice decimal.Decimal
}

func (i *OrderIntent) validate() error {
	switch {
	case i.UserID == "":
		return &model.ValidationError{Message: "user_id is required"}
	case i.Symbol == "":
		return &model.ValidationError{Message: "symbol is required"}
	case !i.Side.Valid():
		return &model.ValidationError{Message: "side must be BUY or SELL"}
	case !i.Type.Valid():
		return &model.ValidationError{Message: "order_type must be MARKET, LIMIT or STOP_LOSS"}
	case !i.Instrument.Valid():
		return &model.ValidationError{Message: "instrument_type must be INDEX, OPTION_CE or OPTION_PE"}
	case i.Quantity <= 0:
		return &model.ValidationError{Message: "quantity must be positive"}
	case i.LotSize < 0:
		return &model.ValidationError{Message: "lot_size must not be negative"}
	case i.Type == model.TypeLimit && !i.LimitPrice.IsPositive():
		return &model.ValidationError{Message: "limit orders require a positive limit_price"}
	case i.Type == model.TypeStopLoss && !i.TriggerPrice.IsPositive():
		return &model.ValidationError{Message: "stop loss orders require a positive trigger_price"}
	}
	return nil
}

// PlaceOrder runs the full order path. MARKET orders execute immediately at
// the oracle price; LIMIT and STOP_LOSS orders rest as OPEN until a tick
// triggers them. Rejected orders are persisted with their reason so the
// audit trail survives.
func (e *Engine) PlaceOrder(ctx context.Context, intent OrderIntent) (*model.Order, error) {
	start := time.Now()
	if err := intent.validate(); err != nil {
		return nil, err
	}
	if intent.LotSize == 0 {
		intent.LotSize = 1
	}

	lock := e.locks.get(intent.UserID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	o := &model.Order{
		ID:           uuid.NewString(),
		UserID:       intent.UserID,
		TournamentID: intent.TournamentID,
		Symbol:       intent.Symbol,
		Instrument:   intent.Instrument,
		LotSize:      intent.LotSize,
		Side:         intent.Side,
		Type:         intent.Type,
		Quantity:     intent.Quantity,
		LimitPrice:   intent.LimitPrice,
		TriggerPrice: intent.TriggerPrice,
		Status:       model.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	defer func() {
		metrics.OrderLatency.Observe(time.Since(start).Seconds())
		metrics.OrdersTotal.WithLabelValues(string(o.Type), string(o.Status)).Inc()
	}()

	if o.Type != model.TypeMarket {
		// A resting order clears the same entry gate as a market order,
		// with the notional taken at its own limit/trigger price. Funds
		// and risk are checked again when a tick fills it.
		if _, err := e.fetchPrice(ctx, o.Symbol); err != nil {
			return e.reject(ctx, o, "price unavailable", err)
		}
		ref := o.LimitPrice
		if o.Type == model.TypeStopLoss {
			ref = o.TriggerPrice
		}
		notional := o.Instrument.Notional(ref, o.Quantity, o.LotSize)
		if reason, err := e.preTradeChecks(ctx, o, notional); err != nil {
			if reason == "" {
				return nil, err
			}
			return e.reject(ctx, o, reason, err)
		}
		return e.restOrder(ctx, o, now)
	}

	price, err := e.fetchPrice(ctx, o.Symbol)
	if err != nil {
		return e.reject(ctx, o, "price unavailable", err)
	}
	return e.execute(ctx, o, price, true, now)
}

// restOrder parks a LIMIT or STOP_LOSS order as OPEN.
func (e *Engine) restOrder(ctx context.Context, o *model.Order, now time.Time) (*model.Order, error) {
	if err := o.Transition(model.StatusOpen, now); err != nil {
		return nil, err
	}
	if err := e.store.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist resting order: %w", err)
	}
	e.log.Info("order resting", "order_id", o.ID, "user_id", o.UserID,
		"symbol", o.Symbol, "type", o.Type, "side", o.Side, "quantity", o.Quantity)
	e.publishOrder(notify.EventOrderOpen, o)
	return o, nil
}

// execute fills an order in full at the given price. insert distinguishes a
// fresh MARKET order from a resting order already in the store.
func (e *Engine) execute(ctx context.Context, o *model.Order, price decimal.Decimal, insert bool, now time.Time) (*model.Order, error) {
	notional := o.Instrument.Notional(price, o.Quantity, o.LotSize)

	if reason, err := e.preTradeChecks(ctx, o, notional); err != nil {
		if reason == "" {
			return nil, err
		}
		return e.rejectPersist(ctx, o, reason, err, insert)
	}

	existing, err := e.store.GetPosition(ctx, model.PositionKey{
		UserID: o.UserID, TournamentID: o.TournamentID, Symbol: o.Symbol,
	})
	if err != nil && !errors.Is(err, model.ErrPositionNotFound) {
		return nil, fmt.Errorf("load position: %w", err)
	}

	res := position.Apply(existing, position.Fill{
		UserID:       o.UserID,
		TournamentID: o.TournamentID,
		Symbol:       o.Symbol,
		Instrument:   o.Instrument,
		LotSize:      o.LotSize,
		Side:         o.Side,
		Quantity:     o.Quantity,
		Price:        price,
		Time:         now,
	})

	delta := notional
	if o.Side == model.SideBuy {
		delta = notional.Neg()
	}

	var participant *model.TournamentParticipant
	if o.TournamentID != "" {
		participant, err = e.store.GetParticipant(ctx, o.TournamentID, o.UserID)
		if err != nil {
			return e.rejectPersist(ctx, o, "not a tournament participant", err, insert)
		}
		participant.ApplyTrade(res.Realized, now)
	}

	if err := o.Transition(model.StatusExecuted, now); err != nil {
		return nil, err
	}
	o.ExecutedPrice = price
	o.ExecutedQuantity = o.Quantity
	o.ExecutedAt = now

	mutation := store.FillMutation{
		Order:       o,
		InsertOrder: insert,
		WalletDelta: delta,
		Position:    res.Position,
		Participant: participant,
	}
	if res.Position == nil {
		key := model.PositionKey{UserID: o.UserID, TournamentID: o.TournamentID, Symbol: o.Symbol}
		mutation.RemovePosition = &key
	}
	if err := e.store.ApplyFill(ctx, mutation); err != nil {
		if errors.Is(err, model.ErrInsufficientFunds) {
			// The fill never happened; unwind the optimistic execution fields.
			o.Status = model.StatusPending
			o.ExecutedPrice = decimal.Zero
			o.ExecutedQuantity = 0
			o.ExecutedAt = time.Time{}
			return e.rejectPersist(ctx, o, "insufficient funds", err, insert)
		}
		return nil, fmt.Errorf("apply fill: %w", err)
	}

	e.log.Info("order executed", "order_id", o.ID, "user_id", o.UserID,
		"symbol", o.Symbol, "side", o.Side, "quantity", o.Quantity,
		"price", price.String(), "realized_pnl", res.Realized.String())
	e.publishOrder(notify.EventOrderExecuted, o)

	if participant != nil && e.ranker != nil {
		if err := e.ranker.RecomputeRankings(ctx, o.TournamentID); err != nil {
			e.log.Error("rank recompute failed", "tournament_id", o.TournamentID, "error", err)
		}
	}
	return o, nil
}

// CancelOrder cancels the user's order if it has not reached a terminal
// state. The bool reports whether this call performed the cancellation, so
// repeated cancels return true then false.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID string) (bool, error) {
	lock := e.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.UserID != userID {
		return false, model.ErrOrderNotFound
	}
	if !o.Cancellable() {
		return false, nil
	}
	if err := o.Transition(model.StatusCancelled, time.Now()); err != nil {
		return false, err
	}
	if err := e.store.UpdateOrder(ctx, o); err != nil {
		return false, fmt.Errorf("persist cancel: %w", err)
	}
	e.log.Info("order cancelled", "order_id", o.ID, "user_id", userID)
	metrics.OrdersTotal.WithLabelValues(string(o.Type), string(o.Status)).Inc()
	return true, nil
}

// OnPrice reacts to one tick: open positions in the symbol are marked to
// market and resting orders whose limit or trigger the tick crossed are
// executed at the tick price.
func (e *Engine) OnPrice(ctx context.Context, t model.Tick) {
	metrics.TicksProcessed.Inc()
	e.markPositions(ctx, t)
	e.triggerRestingOrders(ctx, t)
}

func (e *Engine) markPositions(ctx context.Context, t model.Tick) {
	positions, err := e.store.ListPositionsBySymbol(ctx, t.Symbol)
	if err != nil {
		e.log.Error("list positions for mark", "symbol", t.Symbol, "error", err)
		return
	}
	for i := range positions {
		p := positions[i]
		lock := e.locks.get(p.UserID)
		lock.Lock()
		// Reload under the lock; a fill may have raced the tick.
		fresh, err := e.store.GetPosition(ctx, p.Key())
		if err == nil {
			position.MarkToMarket(fresh, t.Price, t.Timestamp)
			if err := e.store.UpsertPosition(ctx, fresh); err != nil {
				e.log.Error("persist mark", "symbol", t.Symbol, "user_id", p.UserID, "error", err)
			} else {
				e.sink.Publish(notify.Event{
					Type:         notify.EventPosition,
					Symbol:       fresh.Symbol,
					UserID:       fresh.UserID,
					TournamentID: fresh.TournamentID,
					Timestamp:    t.Timestamp,
					Payload:      fresh,
				})
			}
		}
		lock.Unlock()
	}
}

func (e *Engine) triggerRestingOrders(ctx context.Context, t model.Tick) {
	orders, err := e.store.ListOpenOrdersBySymbol(ctx, t.Symbol)
	if err != nil {
		e.log.Error("list open orders", "symbol", t.Symbol, "error", err)
		return
	}
	for i := range orders {
		o := orders[i]
		if !triggered(&o, t.Price) {
			continue
		}
		lock := e.locks.get(o.UserID)
		lock.Lock()
		// Reload under the lock; the order may have been cancelled.
		fresh, err := e.store.GetOrder(ctx, o.ID)
		if err == nil && fresh.Status == model.StatusOpen {
			if _, err := e.execute(ctx, fresh, t.Price, false, t.Timestamp); err != nil {
				e.log.Error("trigger execution failed", "order_id", o.ID, "error", err)
			} else {
				metrics.OrdersTotal.WithLabelValues(string(fresh.Type), string(fresh.Status)).Inc()
			}
		}
		lock.Unlock()
	}
}

// triggered reports whether the tick price crosses the order's threshold.
// LIMIT fills at-or-better, STOP_LOSS fires at-or-worse.
func triggered(o *model.Order, price decimal.Decimal) bool {
	switch o.Type {
	case model.TypeLimit:
		if o.Side == model.SideBuy {
			return price.LessThanOrEqual(o.LimitPrice)
		}
		return price.GreaterThanOrEqual(o.LimitPrice)
	case model.TypeStopLoss:
		if o.Side == model.SideBuy {
			return price.GreaterThanOrEqual(o.TriggerPrice)
		}
		return price.LessThanOrEqual(o.TriggerPrice)
	}
	return false
}

// Portfolio assembles the wallet-and-positions read model for a user.
func (e *Engine) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	w, err := e.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := e.store.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	orders, err := e.store.ListOrdersByUser(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	pf := &model.Portfolio{
		UserID:           userID,
		Positions:        positions,
		AvailableBalance: w.Balance,
		InvestedAmount:   decimal.Zero,
		TotalPnL:         decimal.Zero,
		OpenPositions:    len(positions),
	}
	for i := range positions {
		pf.InvestedAmount = pf.InvestedAmount.Add(positions[i].InvestedValue())
		pf.TotalPnL = pf.TotalPnL.Add(positions[i].TotalPnL())
	}
	for i := range orders {
		if orders[i].Status == model.StatusExecuted {
			pf.TotalTrades++
		}
	}
	pf.TotalBalance = pf.AvailableBalance.Add(pf.InvestedAmount)
	return pf, nil
}

// Orders returns the user's recent orders, newest first.
func (e *Engine) Orders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return e.store.ListOrdersByUser(ctx, userID, limit)
}

// GetOrder returns one of the user's orders.
func (e *Engine) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, model.ErrOrderNotFound
	}
	return o, nil
}

// fetchPrice asks the oracle under a deadline so a stalled source rejects
// the order instead of hanging it.
func (e *Engine) fetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()
	price, err := e.oracle.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price for %s", model.ErrPriceUnavailable, symbol)
	}
	return price, nil
}

// preTradeChecks rejects an order the user cannot fund or that would breach
// the risk policy. The funds check runs first, so an order failing both
// reports insufficient funds. An empty reason with a non-nil error is an
// internal failure, not a rejection.
func (e *Engine) preTradeChecks(ctx context.Context, o *model.Order, notional decimal.Decimal) (string, error) {
	if o.Side == model.SideBuy {
		w, err := e.store.GetWallet(ctx, o.UserID)
		if err != nil {
			return "", fmt.Errorf("load wallet: %w", err)
		}
		if w.Balance.LessThan(notional) {
			return "insufficient funds", fmt.Errorf("%w: order value %s exceeds balance %s",
				model.ErrInsufficientFunds, notional, w.Balance)
		}
	}
	exposure, err := e.scopeExposure(ctx, o.UserID, o.TournamentID)
	if err != nil {
		return "", fmt.Errorf("compute exposure: %w", err)
	}
	if err := e.policy.CheckOrder(notional, exposure); err != nil {
		return "position limit exceeded", err
	}
	return "", nil
}

// scopeExposure sums the user's invested value within one tournament scope.
func (e *Engine) scopeExposure(ctx context.Context, userID, tournamentID string) (decimal.Decimal, error) {
	positions, err := e.store.ListPositionsByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range positions {
		if positions[i].TournamentID == tournamentID {
			total = total.Add(positions[i].InvestedValue())
		}
	}
	return total, nil
}

// reject marks the order REJECTED and persists it for audit.
func (e *Engine) reject(ctx context.Context, o *model.Order, reason string, cause error) (*model.Order, error) {
	return e.rejectPersist(ctx, o, reason, cause, true)
}

func (e *Engine) rejectPersist(ctx context.Context, o *model.Order, reason string, cause error, insert bool) (*model.Order, error) {
	o.Reason = reason
	now := time.Now()
	if err := o.Transition(model.StatusRejected, now); err != nil {
		return nil, err
	}
	var persistErr error
	if insert {
		persistErr = e.store.InsertOrder(ctx, o)
	} else {
		persistErr = e.store.UpdateOrder(ctx, o)
	}
	if persistErr != nil {
		e.log.Error("persist rejected order", "order_id", o.ID, "error", persistErr)
	}
	e.log.Warn("order rejected", "order_id", o.ID, "user_id", o.UserID,
		"symbol", o.Symbol, "reason", reason, "error", cause)
	e.publishOrder(notify.EventOrderRejected, o)
	return o, cause
}

func (e *Engine) publishOrder(eventType string, o *model.Order) {
	e.sink.Publish(notify.Event{
		Type:         eventType,
		Symbol:       o.Symbol,
		UserID:       o.UserID,
		TournamentID: o.TournamentID,
		Timestamp:    time.Now(),
		Payload:      o,
	})
}
