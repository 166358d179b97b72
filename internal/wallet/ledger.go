// Package wallet implements the virtual cash ledger. Every balance change
// goes through Debit or Credit so the no-negative-balance invariant is
// enforced in exactly one place.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/store"
)

// Ledger manages user wallets on top of the store.
type Ledger struct {
	store store.Store
	log   *slog.Logger
}

// NewLedger returns a ledger backed by st.
func NewLedger(st store.Store, log *slog.Logger) *Ledger {
	return &Ledger{store: st, log: log}
}

// Open creates a wallet funded with the starting balance. Opening an
// already existing wallet returns it unchanged, so signup retries are
// harmless.
func (l *Ledger) Open(ctx context.Context, userID string, starting decimal.Decimal) (*model.Wallet, error) {
	now := time.Now()
	w := &model.Wallet{
		UserID:        userID,
		Balance:       starting,
		Currency:      "INR",
		TotalDeposits: starting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := l.store.CreateWallet(ctx, w)
	if errors.Is(err, model.ErrWalletExists) {
		return l.store.GetWallet(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	l.log.Info("wallet opened", "user_id", userID, "balance", starting.String())
	return w, nil
}

// Get returns the user's wallet; ErrWalletNotFound when none exists.
func (l *Ledger) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	return l.store.GetWallet(ctx, userID)
}

// CanAfford reports whether the wallet covers amount.
func (l *Ledger) CanAfford(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return false, err
	}
	return w.CanAfford(amount), nil
}

// Debit removes amount from the wallet. Amount must be positive; a debit
// past zero fails with ErrInsufficientFunds and leaves the balance intact.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Wallet, error) {
	if !amount.IsPositive() {
		return nil, &model.ValidationError{Message: "debit amount must be positive"}
	}
	w, err := l.store.AdjustWalletBalance(ctx, userID, amount.Neg())
	if err != nil {
		return nil, err
	}
	l.log.Debug("wallet debited", "user_id", userID, "amount", amount.String(), "balance", w.Balance.String())
	return w, nil
}

// Credit adds amount to the wallet. Amount must be positive.
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Wallet, error) {
	if !amount.IsPositive() {
		return nil, &model.ValidationError{Message: "credit amount must be positive"}
	}
	w, err := l.store.AdjustWalletBalance(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	l.log.Debug("wallet credited", "user_id", userID, "amount", amount.String(), "balance", w.Balance.String())
	return w, nil
}
