package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Lookups return (nil, nil) when the record does not exist.

// AccountRepository reads accounts.
type AccountRepository interface {
	Get(ctx context.Context, id string) (*Account, error)
	FindByOwner(ctx context.Context, userID string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
}

// BillRepository persists bills. Bills are append-only.
type BillRepository interface {
	Exists(ctx context.Context, accountID string, period time.Time) (bool, error)
	// Create inserts the bill with its items. It returns ErrDuplicateBill when
	// the (account, period) uniqueness constraint rejects the row.
	Create(ctx context.Context, bill *Bill) error
	Get(ctx context.Context, id string) (*Bill, error)
	ListByAccount(ctx context.Context, accountID string) ([]Bill, error)
	AttachDocument(ctx context.Context, id, ref string) error
}

// PaymentRepository persists payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	ListByAccount(ctx context.Context, accountID string) ([]Payment, error)
	// TransitionStatus moves a pending payment to `to`. It reports false when
	// the payment is missing or no longer pending; nothing is written then.
	TransitionStatus(ctx context.Context, id string, to PaymentStatus, at time.Time) (bool, error)
}

// ReadingRepository reads captured meter readings.
type ReadingRepository interface {
	ListForPeriod(ctx context.Context, accountID string, period time.Time) ([]Reading, error)
	LatestBefore(ctx context.Context, accountID, service string, before time.Time) (*Reading, error)
}

// TariffRepository resolves unit prices. TariffFor returns the latest price of
// service effective on or before period, or ErrTariffNotFound.
type TariffRepository interface {
	TariffFor(ctx context.Context, service string, period time.Time) (decimal.Decimal, error)
}

// LedgerQuery computes ledger-wide aggregates. A zero lower bound means unbounded.
// Collected sums only include paid, non-test payments.
type LedgerQuery interface {
	AccountTotals(ctx context.Context, accountID string, chargedThrough, collectedBefore time.Time) (AccountTotals, error)
	// SumCharged adds bill totals with from <= period <= through.
	SumCharged(ctx context.Context, from, through time.Time) (decimal.Decimal, error)
	// SumCollected adds payment amounts with from <= date < before.
	SumCollected(ctx context.Context, from, before time.Time) (decimal.Decimal, error)
	DailyCollected(ctx context.Context, from, before time.Time) ([]DailyAmount, error)
	// AccountDebts lists accounts whose charged-through minus collected-before is positive.
	AccountDebts(ctx context.Context, chargedThrough, collectedBefore time.Time) ([]AccountDebt, error)
}

// Ledger is the store view handed to a unit of work.
type Ledger interface {
	Accounts() AccountRepository
	Bills() BillRepository
	Payments() PaymentRepository
	Readings() ReadingRepository
	Tariffs() TariffRepository
	Query() LedgerQuery
}

// UnitOfWork scopes store access to one request. Do commits when fn returns
// nil and rolls back otherwise, including on panic. ReadOnly runs fn against a
// consistent snapshot without taking locks that block writers.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error
}
