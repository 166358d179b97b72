package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool { return s == SideBuy || s == SideSell }

// OrderType selects how an order is executed. MARKET fills immediately at
// the oracle price; LIMIT and STOP_LOSS rest as OPEN until a price tick
// crosses their limit/trigger price.
type OrderType string

const (
	TypeMarket   OrderType = "MARKET"
	TypeLimit    OrderType = "LIMIT"
	TypeStopLoss OrderType = "STOP_LOSS"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == TypeMarket || t == TypeLimit || t == TypeStopLoss
}

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusOpen            OrderStatus = "OPEN"
	StatusExecuted        OrderStatus = "EXECUTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// orderTransitions encodes the allowed lifecycle moves. EXECUTED,
// CANCELLED and REJECTED are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusOpen, StatusExecuted, StatusRejected, StatusCancelled},
	StatusOpen:            {StatusExecuted, StatusPartiallyFilled, StatusCancelled, StatusRejected},
	StatusPartiallyFilled: {StatusExecuted, StatusCancelled},
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled || s == StatusRejected
}

// CanTransition reports whether the move from s to next is allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is an immutable record of an order intent and its execution.
// After reaching a terminal status it is never mutated again.
type Order struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	TournamentID string          `json:"tournament_id,omitempty" db:"tournament_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Instrument   InstrumentType  `json:"instrument_type" db:"instrument_type"`
	LotSize      int64           `json:"lot_size" db:"lot_size"`
	Side         OrderSide       `json:"side" db:"side"`
	Type         OrderType       `json:"order_type" db:"order_type"`
	Quantity     int64           `json:"quantity" db:"quantity"`
	LimitPrice   decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`     // LIMIT orders; zero when unset
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty" db:"trigger_price"` // STOP_LOSS orders; zero when unset
	Status       OrderStatus     `json:"status" db:"status"`
	Reason       string          `json:"reason,omitempty" db:"reason"` // rejection detail for audit

	ExecutedPrice    decimal.Decimal `json:"executed_price,omitempty" db:"executed_price"`
	ExecutedQuantity int64           `json:"executed_quantity" db:"executed_quantity"`

	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ExecutedAt time.Time `json:"executed_at,omitempty" db:"executed_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Transition moves the order to the next status, rejecting moves the state
// machine does not allow. Fill attempts on cancelled orders and double
// cancels fail here.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Cancellable reports whether the order may still be cancelled by its owner.
func (o *Order) Cancellable() bool {
	return o.Status == StatusPending || o.Status == StatusOpen
}

// Active reports whether the order can still fill.
func (o *Order) Active() bool {
	return o.Status == StatusPending || o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}
