package application

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// BalanceCalculator derives account debt and wallet credit from committed bills and payments.
type BalanceCalculator struct {
	uow   billing.UnitOfWork
	clock Clock
}

// NewBalanceCalculator constructs the calculator.
func NewBalanceCalculator(uow billing.UnitOfWork, clock Clock) (*BalanceCalculator, error) {
	if uow == nil {
		return nil, errors.New("balance calculator: nil unit of work")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &BalanceCalculator{uow: uow, clock: clock}, nil
}

// GetBalance returns the balance of accountID as of asOf; the zero asOf means now.
func (c *BalanceCalculator) GetBalance(ctx context.Context, accountID string, asOf time.Time) (billing.Balance, error) {
	if accountID == "" {
		return billing.Balance{}, billing.ErrEmptyAccountID
	}
	if asOf.IsZero() {
		asOf = c.clock.Now()
	}
	var balance billing.Balance
	err := c.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		account, err := ledger.Accounts().Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return errors.Wrapf(billing.ErrAccountNotFound, "account %s", accountID)
		}
		balance, err = computeBalance(ctx, ledger, account.ID, asOf)
		return err
	})
	return balance, err
}

// GetBalanceForActor returns the current balance of accountID, or of the
// actor's own account when accountID is empty.
func (c *BalanceCalculator) GetBalanceForActor(ctx context.Context, actor Actor, accountID string) (billing.Balance, error) {
	asOf := c.clock.Now()
	var balance billing.Balance
	err := c.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		var account *billing.Account
		var err error
		if accountID == "" {
			account, err = ledger.Accounts().FindByOwner(ctx, actor.UserID)
		} else {
			account, err = ledger.Accounts().Get(ctx, accountID)
		}
		if err != nil {
			return err
		}
		if account == nil {
			return errors.WithStack(billing.ErrAccountNotFound)
		}
		if !actor.CanAccess(*account) {
			return errors.Wrapf(billing.ErrNotOwner, "account %s", account.ID)
		}
		balance, err = computeBalance(ctx, ledger, account.ID, asOf)
		return err
	})
	return balance, err
}

func computeBalance(ctx context.Context, ledger billing.Ledger, accountID string, asOf time.Time) (billing.Balance, error) {
	totals, err := ledger.Query().AccountTotals(ctx, accountID, asOf, asOf)
	if err != nil {
		return billing.Balance{}, err
	}
	return billing.NewBalance(accountID, asOf, totals), nil
}
