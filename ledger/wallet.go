package ledger

import (
	"context"
	"fmt"
)

// Wallet funds accounts and reports balances. Deposits stand in for the
// external wallet that pays for purchases.
type Wallet struct {
	env *env
}

// Deposit credits amount to account and returns the new balance.
func (w *Wallet) Deposit(ctx context.Context, account Identity, amount Amount) (Amount, error) {
	if account.IsZero() {
		return Amount{}, &InputError{Field: "account", Reason: "is required"}
	}
	if !amount.IsPositive() {
		return Amount{}, &InputError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !amount.InRange() {
		return Amount{}, &InputError{Field: "amount", Reason: fmt.Sprintf("more than %d integer digits", MaxIntegerDigits)}
	}
	if !amount.Exact() {
		return Amount{}, &InputError{Field: "amount", Reason: "exceeds native precision"}
	}

	var balance Amount
	err := w.env.store.WithTx(ctx, func(tx Store) error {
		var err error
		balance, err = tx.AdjustBalance(ctx, account, amount)
		return err
	})
	return balance, err
}

// Balance returns the account balance; unknown accounts hold zero.
func (w *Wallet) Balance(ctx context.Context, account Identity) (Amount, error) {
	return w.env.store.Balance(ctx, account)
}
