package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/notify"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TariffProvider resolves the unit price of a metered service for a period.
type TariffProvider interface {
	TariffFor(ctx context.Context, service string, period time.Time) (decimal.Decimal, error)
}

// FeeSchedule lists the fixed per-area fees added to every bill.
type FeeSchedule interface {
	FixedFees(ctx context.Context) ([]billing.FixedFee, error)
}

// DocumentRenderer renders a bill document and returns its reference.
type DocumentRenderer interface {
	RenderBill(ctx context.Context, account billing.Account, bill billing.Bill) (string, error)
}

// Notifier delivers user-visible state changes. Delivery errors are logged by callers.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Actor is the authenticated caller of a ledger operation.
type Actor struct {
	UserID string
	Staff  bool
}

// CanAccess reports whether the actor may read or act on account.
func (a Actor) CanAccess(account billing.Account) bool {
	return a.Staff || account.OwnedBy(a.UserID)
}
