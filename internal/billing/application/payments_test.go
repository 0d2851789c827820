package application

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/notify"
)

func TestFullPaymentClearsDebt(t *testing.T) {
	_, payments, balances, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("1000.00"))
	require.NoError(t, err)
	require.Equal(t, billing.PaymentStatusPending, payment.Status)
	require.True(t, strings.HasPrefix(payment.TransactionID, "txn-"))

	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	balance, err := balances.GetBalance(ctx, "acc-a", day(2024, time.May, 11))
	require.NoError(t, err)
	require.True(t, balance.Debt.IsZero(), balance.Debt.String())
}

func TestPartialPaymentLeavesDebt(t *testing.T) {
	_, payments, balances, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("400.00"))
	require.NoError(t, err)
	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	balance, err := balances.GetBalance(ctx, "acc-a", day(2024, time.May, 11))
	require.NoError(t, err)
	require.Equal(t, "600.00", billing.FormatMoney(balance.Debt))

	// the payment instant itself is excluded from a snapshot taken at that instant
	balance, err = balances.GetBalance(ctx, "acc-a", time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "1000.00", billing.FormatMoney(balance.Debt))
}

func TestPaymentAmountBoundary(t *testing.T) {
	_, payments, _, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	_, err := payments.CreatePayment(ctx, resident, "bill-a", dec("1000.01"))
	require.ErrorIs(t, err, billing.ErrAmountExceedsBill)
	require.Equal(t, billing.KindInvalidArgument, billing.KindOf(err))

	_, err = payments.CreatePayment(ctx, resident, "bill-a", dec("0"))
	require.Equal(t, billing.KindInvalidArgument, billing.KindOf(err))

	_, err = payments.CreatePayment(ctx, resident, "bill-a", dec("1000.00"))
	require.NoError(t, err)
}

func TestPaymentAmountsMustBeWholeCents(t *testing.T) {
	_, payments, balances, clock := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	_, err := payments.CreatePayment(ctx, resident, "bill-a", dec("0.001"))
	require.ErrorIs(t, err, billing.ErrSubCentAmount)
	require.Equal(t, billing.KindInvalidArgument, billing.KindOf(err))

	_, err = payments.InitPayment(ctx, resident, dec("0.004"), billing.PaymentMethodCard)
	require.ErrorIs(t, err, billing.ErrSubCentAmount)

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("12.340"))
	require.NoError(t, err)
	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	clock.Set(time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC))
	balance, err := balances.GetBalance(ctx, "acc-a", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "987.66", billing.FormatMoney(balance.Debt))
	require.True(t, balance.Debt.Equal(dec("987.66")))
}

func TestCreatePaymentOwnership(t *testing.T) {
	_, payments, _, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	_, err := payments.CreatePayment(ctx, stranger, "bill-a", dec("10"))
	require.Equal(t, billing.KindForbidden, billing.KindOf(err))

	_, err = payments.CreatePayment(ctx, staff, "bill-a", dec("10"))
	require.Equal(t, billing.KindForbidden, billing.KindOf(err))

	_, err = payments.CreatePayment(ctx, resident, "bill-missing", dec("10"))
	require.ErrorIs(t, err, billing.ErrBillNotFound)
	require.Equal(t, billing.KindNotFound, billing.KindOf(err))
}

func TestCancelPaidPaymentFails(t *testing.T) {
	store, payments, _, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("100"))
	require.NoError(t, err)
	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	_, err = payments.CancelPayment(ctx, resident, payment.ID)
	require.ErrorIs(t, err, billing.ErrPaymentNotPending)
	require.Equal(t, billing.KindInvalidState, billing.KindOf(err))
	require.Equal(t, billing.PaymentStatusPaid, paymentStatus(t, store, payment.ID))

	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.Equal(t, billing.KindInvalidState, billing.KindOf(err))
}

func TestCancelledPaymentIsTerminal(t *testing.T) {
	store, payments, _, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("100"))
	require.NoError(t, err)
	cancelled, err := payments.CancelPayment(ctx, resident, payment.ID)
	require.NoError(t, err)
	require.False(t, cancelled.CancelledAt.IsZero())

	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.ErrorIs(t, err, billing.ErrPaymentNotPending)
	require.Equal(t, billing.PaymentStatusCancelled, paymentStatus(t, store, payment.ID))

	_, err = payments.ConfirmPayment(ctx, "missing")
	require.Equal(t, billing.KindNotFound, billing.KindOf(err))
}

func TestConfirmCancelRaceHasOneWinner(t *testing.T) {
	_, payments, _, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("1"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = payments.ConfirmPayment(ctx, payment.ID)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = payments.CancelPayment(ctx, resident, payment.ID)
		}()
		wg.Wait()

		failures := 0
		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, billing.ErrPaymentNotPending)
				failures++
			}
		}
		require.Equal(t, 1, failures)
	}
}

func TestPaymentReadAuthorization(t *testing.T) {
	_, payments, balances, _ := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("100"))
	require.NoError(t, err)

	_, err = payments.GetPayment(ctx, stranger, payment.ID)
	require.Equal(t, billing.KindForbidden, billing.KindOf(err))
	_, err = payments.CancelPayment(ctx, stranger, payment.ID)
	require.Equal(t, billing.KindForbidden, billing.KindOf(err))
	_, err = balances.GetBalanceForActor(ctx, stranger, "acc-a")
	require.Equal(t, billing.KindForbidden, billing.KindOf(err))

	got, err := payments.GetPayment(ctx, staff, payment.ID)
	require.NoError(t, err)
	require.Equal(t, payment.ID, got.ID)
	_, err = balances.GetBalanceForActor(ctx, staff, "acc-a")
	require.NoError(t, err)

	own, err := balances.GetBalanceForActor(ctx, resident, "")
	require.NoError(t, err)
	require.Equal(t, "acc-a", own.AccountID)

	_, err = balances.GetBalanceForActor(ctx, stranger, "")
	require.Equal(t, billing.KindNotFound, billing.KindOf(err))
	_, err = balances.GetBalance(ctx, "", time.Time{})
	require.ErrorIs(t, err, billing.ErrEmptyAccountID)
	_, err = balances.GetBalance(ctx, "acc-missing", time.Time{})
	require.Equal(t, billing.KindNotFound, billing.KindOf(err))
}

func TestTestModePaymentsDoNotReduceDebt(t *testing.T) {
	_, payments, balances, _ := newPaymentFixture(t, PaymentSettings{TestMode: true})
	ctx := context.Background()

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("1000"))
	require.NoError(t, err)
	require.True(t, payment.IsTest)
	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	balance, err := balances.GetBalance(ctx, "acc-a", day(2024, time.June, 1))
	require.NoError(t, err)
	require.Equal(t, "1000.00", billing.FormatMoney(balance.Debt))
}

func TestInitPaymentTopUp(t *testing.T) {
	_, payments, balances, clock := newPaymentFixture(t, PaymentSettings{
		RedirectBaseURL: "https://pay.example.test/checkout/",
		TopUpMaxAmount:  dec("5000"),
	})
	ctx := context.Background()

	topUp, err := payments.InitPayment(ctx, resident, dec("250"), billing.PaymentMethodCard)
	require.NoError(t, err)
	require.True(t, topUp.Payment.IsTopUp())
	require.Equal(t, "acc-a", topUp.Payment.AccountID)

	redirect, err := url.Parse(topUp.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "/checkout", redirect.Path)
	require.Equal(t, topUp.Payment.ID, redirect.Query().Get("payment_id"))
	require.Equal(t, "250.00", redirect.Query().Get("amount"))

	_, err = payments.ConfirmPayment(ctx, topUp.Payment.ID)
	require.NoError(t, err)

	clock.Set(time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC))
	balance, err := balances.GetBalanceForActor(ctx, resident, "")
	require.NoError(t, err)
	require.Equal(t, "750.00", billing.FormatMoney(balance.Debt))
	require.True(t, balance.AvailableCredit.IsZero())

	payment, err := payments.CreatePayment(ctx, resident, "bill-a", dec("1000"))
	require.NoError(t, err)
	_, err = payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	clock.Set(time.Date(2024, time.May, 13, 0, 0, 0, 0, time.UTC))
	balance, err = balances.GetBalanceForActor(ctx, resident, "")
	require.NoError(t, err)
	require.True(t, balance.Debt.IsZero())
	require.Equal(t, "250.00", billing.FormatMoney(balance.AvailableCredit))
	require.True(t, balance.Debt.Equal(billing.NonNegative(balance.Charged.Sub(balance.Collected))))
}

func TestInitPaymentValidation(t *testing.T) {
	_, payments, _, _ := newPaymentFixture(t, PaymentSettings{TopUpMaxAmount: dec("5000")})
	ctx := context.Background()

	_, err := payments.InitPayment(ctx, resident, dec("5000.01"), billing.PaymentMethodCard)
	require.ErrorIs(t, err, billing.ErrAmountExceedsLimit)
	_, err = payments.InitPayment(ctx, resident, dec("-1"), billing.PaymentMethodCard)
	require.ErrorIs(t, err, billing.ErrNonPositiveAmount)
	_, err = payments.InitPayment(ctx, resident, dec("10"), billing.PaymentMethod("cash"))
	require.ErrorIs(t, err, billing.ErrUnknownMethod)
	_, err = payments.InitPayment(ctx, resident, dec("10"), billing.PaymentMethodBill)
	require.ErrorIs(t, err, billing.ErrUnknownMethod)
	_, err = payments.InitPayment(ctx, stranger, dec("10"), billing.PaymentMethodBankTransfer)
	require.ErrorIs(t, err, billing.ErrAccountNotFound)
}

func TestListMineNewestFirst(t *testing.T) {
	_, payments, _, clock := newPaymentFixture(t, PaymentSettings{})
	ctx := context.Background()

	first, err := payments.CreatePayment(ctx, resident, "bill-a", dec("10"))
	require.NoError(t, err)
	clock.Set(time.Date(2024, time.May, 11, 9, 0, 0, 0, time.UTC))
	second, err := payments.CreatePayment(ctx, resident, "bill-a", dec("20"))
	require.NoError(t, err)

	list, err := payments.ListMine(ctx, resident)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	list, err = payments.ListMine(ctx, stranger)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestPaymentNotificationsNeverFailTheOperation(t *testing.T) {
	store, _, _, clock := newPaymentFixture(t, PaymentSettings{})
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	payments, err := NewPaymentService(store, PaymentSettings{}, WithPaymentClock(clock), WithPaymentNotifier(notifier))
	require.NoError(t, err)
	ctx := context.Background()

	paid, err := payments.CreatePayment(ctx, resident, "bill-a", dec("10"))
	require.NoError(t, err)
	_, err = payments.ConfirmPayment(ctx, paid.ID)
	require.NoError(t, err)

	cancelled, err := payments.CreatePayment(ctx, resident, "bill-a", dec("10"))
	require.NoError(t, err)
	_, err = payments.CancelPayment(ctx, staff, cancelled.ID)
	require.NoError(t, err)

	require.Equal(t, []notify.Event{notify.EventPaymentConfirmed, notify.EventPaymentCancelled}, notifier.events())
	require.Equal(t, billing.PaymentStatusPaid, paymentStatus(t, store, paid.ID))
	require.Equal(t, resident.UserID, notifier.messages[0].UserID)
}
