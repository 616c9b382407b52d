package ledger

import (
	"context"
	"fmt"
)

// Settler moves funds for a purchase. It runs inside the purchase
// transaction and must only write through the Store it is given, so that
// a failure anywhere rolls the transfer back together with the enrollment.
type Settler interface {
	Settle(ctx context.Context, tx Store, t Transfer) error
}

// WalletSettler settles against balances held in the ledger store.
type WalletSettler struct{}

func (WalletSettler) Settle(ctx context.Context, tx Store, t Transfer) error {
	if !t.Amount.IsPositive() {
		return &InputError{Field: "amount", Reason: "must be greater than zero"}
	}

	available, err := tx.Balance(ctx, t.From)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	if available.LessThan(t.Amount) {
		return &InsufficientFundsError{Account: t.From, Available: available, Required: t.Amount}
	}

	if _, err := tx.AdjustBalance(ctx, t.From, t.Amount.Neg()); err != nil {
		return err
	}
	if _, err := tx.AdjustBalance(ctx, t.To, t.Amount); err != nil {
		return err
	}
	return tx.InsertTransfer(ctx, t)
}

// SettlerFunc adapts a function to the Settler interface.
type SettlerFunc func(ctx context.Context, tx Store, t Transfer) error

func (f SettlerFunc) Settle(ctx context.Context, tx Store, t Transfer) error {
	return f(ctx, tx, t)
}
