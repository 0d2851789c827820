package application

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/notify"
	"housing-ledger/internal/observability/metrics"
)

// PaymentSettings are the deployment-level payment policies.
type PaymentSettings struct {
	// TestMode marks every new payment as a test transaction.
	TestMode bool
	// RedirectBaseURL is the simulated gateway checkout page.
	RedirectBaseURL string
	// TopUpMethods are the accepted top-up methods; empty means card and bank transfer.
	TopUpMethods []billing.PaymentMethod
	// TopUpMaxAmount caps a single top-up; zero disables the cap.
	TopUpMaxAmount decimal.Decimal
}

// TopUp is an initiated wallet top-up.
type TopUp struct {
	Payment     billing.Payment
	RedirectURL string
}

// PaymentService manages the payment lifecycle: pending -> paid | cancelled.
type PaymentService struct {
	uow      billing.UnitOfWork
	settings PaymentSettings
	notifier Notifier
	clock    Clock
	logger   *zap.Logger
	newID    func() string
}

// PaymentOption configures the service.
type PaymentOption func(*PaymentService)

// WithPaymentNotifier notifies owners about confirmed and cancelled payments.
func WithPaymentNotifier(notifier Notifier) PaymentOption {
	return func(s *PaymentService) {
		s.notifier = notifier
	}
}

// WithPaymentClock overrides the clock.
func WithPaymentClock(clock Clock) PaymentOption {
	return func(s *PaymentService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPaymentLogger sets the logger.
func WithPaymentLogger(logger *zap.Logger) PaymentOption {
	return func(s *PaymentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPaymentService constructs the service.
func NewPaymentService(uow billing.UnitOfWork, settings PaymentSettings, opts ...PaymentOption) (*PaymentService, error) {
	if uow == nil {
		return nil, errors.New("payment service: nil unit of work")
	}
	if len(settings.TopUpMethods) == 0 {
		settings.TopUpMethods = []billing.PaymentMethod{billing.PaymentMethodCard, billing.PaymentMethodBankTransfer}
	}
	s := &PaymentService{
		uow:      uow,
		settings: settings,
		clock:    SystemClock{},
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreatePayment creates a pending payment against a bill owned by the actor.
func (s *PaymentService) CreatePayment(ctx context.Context, actor Actor, billID string, amount decimal.Decimal) (*billing.Payment, error) {
	var payment *billing.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		bill, err := ledger.Bills().Get(ctx, billID)
		if err != nil {
			return err
		}
		if bill == nil {
			return errors.Wrapf(billing.ErrBillNotFound, "bill %s", billID)
		}
		account, err := ledger.Accounts().Get(ctx, bill.AccountID)
		if err != nil {
			return err
		}
		if account == nil || !account.OwnedBy(actor.UserID) {
			return errors.Wrapf(billing.ErrNotOwner, "bill %s", billID)
		}
		if err := bill.ValidatePaymentAmount(amount); err != nil {
			return err
		}
		payment, err = billing.NewPendingPayment(s.newID(), account.ID, bill.ID, amount,
			billing.PaymentMethodBill, s.newTransactionID(), s.settings.TestMode, s.clock.Now())
		if err != nil {
			return err
		}
		return ledger.Payments().Create(ctx, payment)
	})
	metrics.IncPaymentCreated("bill", metrics.Result(err))
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("bill_id", billID),
		zap.String("amount", billing.FormatMoney(amount)),
	)
	return payment, nil
}

// InitPayment starts a wallet top-up for the actor's account and returns the
// simulated gateway redirect.
func (s *PaymentService) InitPayment(ctx context.Context, actor Actor, amount decimal.Decimal, method billing.PaymentMethod) (*TopUp, error) {
	if err := billing.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if s.settings.TopUpMaxAmount.IsPositive() && amount.GreaterThan(s.settings.TopUpMaxAmount) {
		return nil, errors.Wrapf(billing.ErrAmountExceedsLimit, "limit %s", billing.FormatMoney(s.settings.TopUpMaxAmount))
	}
	if !s.acceptsMethod(method) {
		return nil, errors.Wrapf(billing.ErrUnknownMethod, "method %q", method)
	}

	var payment *billing.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		account, err := ledger.Accounts().FindByOwner(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			return errors.Wrapf(billing.ErrAccountNotFound, "user %s", actor.UserID)
		}
		payment, err = billing.NewPendingPayment(s.newID(), account.ID, "", amount,
			method, s.newTransactionID(), s.settings.TestMode, s.clock.Now())
		if err != nil {
			return err
		}
		return ledger.Payments().Create(ctx, payment)
	})
	metrics.IncPaymentCreated("topup", metrics.Result(err))
	if err != nil {
		return nil, err
	}
	s.logger.Info("top-up initiated",
		zap.String("payment_id", payment.ID),
		zap.String("method", string(method)),
		zap.String("amount", billing.FormatMoney(amount)),
	)
	return &TopUp{Payment: *payment, RedirectURL: s.redirectURL(*payment)}, nil
}

// ConfirmPayment marks a pending payment as paid. It stands in for the
// gateway callback and is restricted to staff at the transport layer.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID string) (*billing.Payment, error) {
	payment, err := s.transition(ctx, nil, paymentID, billing.PaymentStatusPaid)
	metrics.IncPaymentTransition(string(billing.PaymentStatusPaid), metrics.Result(err))
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, payment, notify.EventPaymentConfirmed)
	return payment, nil
}

// CancelPayment cancels a pending payment owned by the actor, or any pending payment for staff.
func (s *PaymentService) CancelPayment(ctx context.Context, actor Actor, paymentID string) (*billing.Payment, error) {
	payment, err := s.transition(ctx, &actor, paymentID, billing.PaymentStatusCancelled)
	metrics.IncPaymentTransition(string(billing.PaymentStatusCancelled), metrics.Result(err))
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, payment, notify.EventPaymentCancelled)
	return payment, nil
}

// GetPayment returns a payment visible to the actor.
func (s *PaymentService) GetPayment(ctx context.Context, actor Actor, paymentID string) (*billing.Payment, error) {
	var payment *billing.Payment
	err := s.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		var err error
		payment, _, err = loadOwnedPayment(ctx, ledger, actor, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ListMine lists the payments of the actor's account, newest first.
func (s *PaymentService) ListMine(ctx context.Context, actor Actor) ([]billing.Payment, error) {
	var payments []billing.Payment
	err := s.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		account, err := ledger.Accounts().FindByOwner(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			payments = []billing.Payment{}
			return nil
		}
		payments, err = ledger.Payments().ListByAccount(ctx, account.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// transition applies a guarded status change. A nil actor skips the ownership check.
func (s *PaymentService) transition(ctx context.Context, actor *Actor, paymentID string, to billing.PaymentStatus) (*billing.Payment, error) {
	var updated *billing.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		var payment *billing.Payment
		var err error
		if actor != nil {
			payment, _, err = loadOwnedPayment(ctx, ledger, *actor, paymentID)
		} else {
			payment, err = ledger.Payments().Get(ctx, paymentID)
			if err == nil && payment == nil {
				err = errors.Wrapf(billing.ErrPaymentNotFound, "payment %s", paymentID)
			}
		}
		if err != nil {
			return err
		}
		if !payment.Status.CanTransitionTo(to) {
			return errors.Wrapf(billing.ErrPaymentNotPending, "payment %s is %s", payment.ID, payment.Status)
		}
		at := s.clock.Now()
		ok, err := ledger.Payments().TransitionStatus(ctx, payment.ID, to, at)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(billing.ErrPaymentNotPending, "payment %s changed concurrently", payment.ID)
		}
		if err := payment.ApplyTransition(to, at); err != nil {
			return err
		}
		updated = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment status changed",
		zap.String("payment_id", updated.ID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *PaymentService) notifyTransition(ctx context.Context, payment *billing.Payment, event notify.Event) {
	if s.notifier == nil || payment == nil {
		return
	}
	var owner string
	if err := s.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		account, err := ledger.Accounts().Get(ctx, payment.AccountID)
		if err == nil && account != nil {
			owner = account.OwnerUserID
		}
		return err
	}); err != nil {
		s.logger.Warn("load payment owner failed", zap.String("payment_id", payment.ID), zap.Error(err))
	}
	msg := notify.Message{
		Event:     event,
		AccountID: payment.AccountID,
		UserID:    owner,
		Subject:   fmt.Sprintf("Payment %s", payment.TransactionID),
		Fields: map[string]string{
			"amount":      billing.FormatMoney(payment.Amount),
			"status":      string(payment.Status),
			"transaction": payment.TransactionID,
		},
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("payment notification failed", zap.String("payment_id", payment.ID), zap.Error(err))
	}
}

func (s *PaymentService) acceptsMethod(method billing.PaymentMethod) bool {
	for _, allowed := range s.settings.TopUpMethods {
		if allowed == method {
			return true
		}
	}
	return false
}

func (s *PaymentService) newTransactionID() string {
	return "txn-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *PaymentService) redirectURL(payment billing.Payment) string {
	base := strings.TrimRight(s.settings.RedirectBaseURL, "/")
	if base == "" {
		base = "/checkout"
	}
	values := url.Values{}
	values.Set("payment_id", payment.ID)
	values.Set("transaction_id", payment.TransactionID)
	values.Set("amount", billing.FormatMoney(payment.Amount))
	return base + "?" + values.Encode()
}

// loadOwnedPayment loads a payment and its account, enforcing visibility for actor.
func loadOwnedPayment(ctx context.Context, ledger billing.Ledger, actor Actor, paymentID string) (*billing.Payment, *billing.Account, error) {
	payment, err := ledger.Payments().Get(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, errors.Wrapf(billing.ErrPaymentNotFound, "payment %s", paymentID)
	}
	account, err := ledger.Accounts().Get(ctx, payment.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil || !actor.CanAccess(*account) {
		return nil, nil, errors.Wrapf(billing.ErrNotOwner, "payment %s", paymentID)
	}
	return payment, account, nil
}
