package billing

import "github.com/cockroachdb/errors"

// Taxonomy sentinels. Every error returned by the ledger that a caller is
// expected to react to is marked with exactly one of these.
var (
	ErrNotFound        = errors.New("billing: not found")
	ErrForbidden       = errors.New("billing: forbidden")
	ErrInvalidArgument = errors.New("billing: invalid argument")
	ErrInvalidState    = errors.New("billing: invalid state")
)

var (
	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.Mark(errors.New("billing: account not found"), ErrNotFound)
	// ErrBillNotFound is returned when a bill does not exist.
	ErrBillNotFound = errors.Mark(errors.New("billing: bill not found"), ErrNotFound)
	// ErrPaymentNotFound is returned when a payment does not exist.
	ErrPaymentNotFound = errors.Mark(errors.New("billing: payment not found"), ErrNotFound)

	// ErrNotOwner is returned when the actor does not own the resource.
	ErrNotOwner = errors.Mark(errors.New("billing: resource belongs to another account"), ErrForbidden)

	// ErrNonPositiveAmount is returned when an amount is zero or negative.
	ErrNonPositiveAmount = errors.Mark(errors.New("billing: amount must be positive"), ErrInvalidArgument)
	// ErrSubCentAmount is returned when an amount has more than MoneyPlaces fractional digits.
	ErrSubCentAmount = errors.Mark(errors.New("billing: amount finer than one cent"), ErrInvalidArgument)
	// ErrAmountExceedsBill is returned when a payment is larger than its bill.
	ErrAmountExceedsBill = errors.Mark(errors.New("billing: amount exceeds bill total"), ErrInvalidArgument)
	// ErrAmountExceedsLimit is returned when a top-up is above the configured limit.
	ErrAmountExceedsLimit = errors.Mark(errors.New("billing: amount exceeds top-up limit"), ErrInvalidArgument)
	// ErrUnknownMethod is returned for payment methods that are not accepted.
	ErrUnknownMethod = errors.Mark(errors.New("billing: unknown payment method"), ErrInvalidArgument)
	// ErrInvalidRange is returned when a date range starts after it ends.
	ErrInvalidRange = errors.Mark(errors.New("billing: from must not be after to"), ErrInvalidArgument)
	// ErrInvalidPeriod is returned when a billing period is zero or malformed.
	ErrInvalidPeriod = errors.Mark(errors.New("billing: invalid period"), ErrInvalidArgument)
	// ErrNegativeValue is returned when a tariff, consumption or total is negative.
	ErrNegativeValue = errors.Mark(errors.New("billing: negative value"), ErrInvalidArgument)
	// ErrEmptyAccountID is returned when an account id is missing.
	ErrEmptyAccountID = errors.Mark(errors.New("billing: empty account id"), ErrInvalidArgument)

	// ErrPaymentNotPending is returned when a transition starts from a terminal status.
	ErrPaymentNotPending = errors.Mark(errors.New("billing: payment is not pending"), ErrInvalidState)
	// ErrDuplicateBill is returned when a bill for the account and period already exists.
	ErrDuplicateBill = errors.Mark(errors.New("billing: bill already exists for period"), ErrInvalidState)

	// ErrTariffNotFound is returned when no tariff covers a metered service.
	ErrTariffNotFound = errors.New("billing: tariff not found")
	// ErrMalformedReading is returned when a reading is lower than its baseline.
	ErrMalformedReading = errors.New("billing: malformed meter reading")
	// ErrNilBill is returned when persisting a nil bill.
	ErrNilBill = errors.New("billing: nil bill")
	// ErrNilPayment is returned when persisting a nil payment.
	ErrNilPayment = errors.New("billing: nil payment")
)

// Kind is the caller-facing class of an error.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindInvalidArgument Kind = "invalid_argument"
	KindInvalidState    Kind = "invalid_state"
	KindInternal        Kind = "internal"
)

// KindOf classifies err into the ledger error taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	default:
		return KindInternal
	}
}
