package billing

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no transition may leave s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCancelled
}

// CanTransitionTo reports whether s -> to is a valid lifecycle step.
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	return s == PaymentStatusPending && to.IsTerminal()
}

// PaymentMethod is how a payment is made.
type PaymentMethod string

const (
	// PaymentMethodBill marks a payment created against a specific bill.
	PaymentMethodBill         PaymentMethod = "bill"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Payment is a monetary movement into an account.
// BillID is empty for standalone top-ups.
type Payment struct {
	ID            string
	AccountID     string
	BillID        string
	Amount        decimal.Decimal
	Date          time.Time
	Status        PaymentStatus
	TransactionID string
	Method        PaymentMethod
	IsTest        bool
	PaidAt        time.Time
	CancelledAt   time.Time
}

// NewPendingPayment creates a payment in the pending state.
func NewPendingPayment(id, accountID, billID string, amount decimal.Decimal, method PaymentMethod, transactionID string, isTest bool, at time.Time) (*Payment, error) {
	if id == "" || transactionID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "payment: empty id")
	}
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	return &Payment{
		ID:            id,
		AccountID:     accountID,
		BillID:        billID,
		Amount:        amount,
		Date:          at.UTC(),
		Status:        PaymentStatusPending,
		TransactionID: transactionID,
		Method:        method,
		IsTest:        isTest,
	}, nil
}

// IsTopUp reports whether the payment is not tied to a bill.
func (p *Payment) IsTopUp() bool {
	return p != nil && p.BillID == ""
}

// Counts reports whether the payment contributes to collected totals.
func (p *Payment) Counts() bool {
	return p != nil && p.Status == PaymentStatusPaid && !p.IsTest
}

// ApplyTransition moves the payment to status `to` in memory.
// Persistence must go through the repository's conditional update.
func (p *Payment) ApplyTransition(to PaymentStatus, at time.Time) error {
	if p == nil {
		return ErrNilPayment
	}
	if !p.Status.CanTransitionTo(to) {
		return errors.Wrapf(ErrPaymentNotPending, "payment %s is %s", p.ID, p.Status)
	}
	p.Status = to
	switch to {
	case PaymentStatusPaid:
		p.PaidAt = at.UTC()
	case PaymentStatusCancelled:
		p.CancelledAt = at.UTC()
	}
	return nil
}
