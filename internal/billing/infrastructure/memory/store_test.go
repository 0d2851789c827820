package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	billing "housing-ledger/internal/billing/domain"
)

var march = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func seedBill(t *testing.T, store *Store, id, accountID string, period time.Time, total string) {
	t.Helper()
	err := store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		item, err := billing.NewBillItem("water", decimal.RequireFromString(total), decimal.NewFromInt(1))
		if err != nil {
			return err
		}
		bill, err := billing.NewBill(id, accountID, period, []billing.BillItem{item}, period)
		if err != nil {
			return err
		}
		return ledger.Bills().Create(ctx, bill)
	})
	require.NoError(t, err)
}

func seedPayment(t *testing.T, store *Store, id, accountID, billID, amount string, at time.Time, status billing.PaymentStatus, isTest bool) {
	t.Helper()
	err := store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		payment, err := billing.NewPendingPayment(id, accountID, billID, decimal.RequireFromString(amount), billing.PaymentMethodCard, "txn-"+id, isTest, at)
		if err != nil {
			return err
		}
		if status != billing.PaymentStatusPending {
			if err := payment.ApplyTransition(status, at); err != nil {
				return err
			}
		}
		return ledger.Payments().Create(ctx, payment)
	})
	require.NoError(t, err)
}

func TestBillUniquenessPerAccountAndPeriod(t *testing.T) {
	store := NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", OwnerUserID: "u-1"})
	seedBill(t, store, "b-1", "acc-1", march, "100")

	err := store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		bill, err := billing.NewBill("b-2", "acc-1", march.AddDate(0, 0, 14), nil, march)
		if err != nil {
			return err
		}
		return ledger.Bills().Create(ctx, bill)
	})
	require.ErrorIs(t, err, billing.ErrDuplicateBill)
	require.Equal(t, 1, store.BillCount())
}

func TestDoRollsBackOnError(t *testing.T) {
	store := NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", OwnerUserID: "u-1"})
	boom := errors.New("boom")

	err := store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		bill, err := billing.NewBill("b-1", "acc-1", march, nil, march)
		if err != nil {
			return err
		}
		if err := ledger.Bills().Create(ctx, bill); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, store.BillCount())

	require.Panics(t, func() {
		_ = store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
			bill, _ := billing.NewBill("b-1", "acc-1", march, nil, march)
			_ = ledger.Bills().Create(ctx, bill)
			panic("mid-write")
		})
	})
	require.Zero(t, store.BillCount())
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	store := NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", OwnerUserID: "u-1"})

	err := store.ReadOnly(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		bill, err := billing.NewBill("b-1", "acc-1", march, nil, march)
		if err != nil {
			return err
		}
		return ledger.Bills().Create(ctx, bill)
	})
	require.ErrorIs(t, err, errReadOnly)
	require.Zero(t, store.BillCount())
}

func TestTransitionStatusOnlyFromPending(t *testing.T) {
	store := NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", OwnerUserID: "u-1"})
	seedPayment(t, store, "p-1", "acc-1", "", "50", march, billing.PaymentStatusPending, false)

	transition := func(to billing.PaymentStatus) bool {
		var ok bool
		err := store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
			var err error
			ok, err = ledger.Payments().TransitionStatus(ctx, "p-1", to, march.Add(time.Hour))
			return err
		})
		require.NoError(t, err)
		return ok
	}

	require.True(t, transition(billing.PaymentStatusPaid))
	require.False(t, transition(billing.PaymentStatusCancelled))
	require.False(t, transition(billing.PaymentStatusPaid))

	err := store.ReadOnly(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		payment, err := ledger.Payments().Get(ctx, "p-1")
		require.NoError(t, err)
		require.Equal(t, billing.PaymentStatusPaid, payment.Status)
		missing, err := ledger.Payments().Get(ctx, "p-404")
		require.Nil(t, missing)
		return err
	})
	require.NoError(t, err)
}

func TestLedgerQueryAggregates(t *testing.T) {
	store := NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", Number: "1", OwnerUserID: "u-1"})
	store.AddAccount(billing.Account{ID: "acc-2", Number: "2", OwnerUserID: "u-2"})
	store.AddAccount(billing.Account{ID: "acc-3", Number: "3", OwnerUserID: "u-3"})
	feb := march.AddDate(0, -1, 0)
	seedBill(t, store, "b-1", "acc-1", feb, "300")
	seedBill(t, store, "b-2", "acc-1", march, "200")
	seedBill(t, store, "b-3", "acc-2", march, "900")
	seedPayment(t, store, "p-1", "acc-1", "b-1", "300", march.AddDate(0, 0, 2), billing.PaymentStatusPaid, false)
	seedPayment(t, store, "p-2", "acc-2", "b-3", "100", march.AddDate(0, 0, 2).Add(5*time.Hour), billing.PaymentStatusPaid, false)
	seedPayment(t, store, "p-3", "acc-2", "b-3", "500", march.AddDate(0, 0, 3), billing.PaymentStatusPaid, true)
	seedPayment(t, store, "p-4", "acc-2", "b-3", "500", march.AddDate(0, 0, 3), billing.PaymentStatusPending, false)
	seedPayment(t, store, "p-5", "acc-3", "", "40", march.AddDate(0, 0, 4), billing.PaymentStatusPaid, false)

	err := store.ReadOnly(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		query := ledger.Query()

		charged, err := query.SumCharged(ctx, march, march.AddDate(0, 0, 30))
		require.NoError(t, err)
		require.Equal(t, "1100.00", billing.FormatMoney(charged))

		collected, err := query.SumCollected(ctx, march, march.AddDate(0, 1, 0))
		require.NoError(t, err)
		require.Equal(t, "440.00", billing.FormatMoney(collected))

		daily, err := query.DailyCollected(ctx, march, march.AddDate(0, 1, 0))
		require.NoError(t, err)
		require.Len(t, daily, 2)
		require.Equal(t, march.AddDate(0, 0, 2), daily[0].Day)
		require.Equal(t, "400.00", billing.FormatMoney(daily[0].Amount))

		totals, err := query.AccountTotals(ctx, "acc-1", march, march.AddDate(0, 1, 0))
		require.NoError(t, err)
		require.Equal(t, "500.00", billing.FormatMoney(totals.Charged))
		require.Equal(t, "300.00", billing.FormatMoney(totals.BillCollected))

		debts, err := query.AccountDebts(ctx, march, march.AddDate(0, 1, 0))
		require.NoError(t, err)
		require.Len(t, debts, 2)
		require.Equal(t, "acc-2", debts[0].AccountID)
		require.Equal(t, "800.00", billing.FormatMoney(debts[0].Debt()))
		require.Equal(t, "acc-1", debts[1].AccountID)
		return nil
	})
	require.NoError(t, err)
}

func TestReadOnlyDoesNotBlockWriters(t *testing.T) {
	store := NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", OwnerUserID: "u-1"})
	ctx := context.Background()

	err := store.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		// A write committed while this read is running must neither wait for
		// it nor change what it sees.
		done := make(chan error, 1)
		go func() {
			done <- store.Do(ctx, func(ctx context.Context, w billing.Ledger) error {
				bill, err := billing.NewBill("b-1", "acc-1", march, nil, march)
				if err != nil {
					return err
				}
				return w.Bills().Create(ctx, bill)
			})
		}()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("writer blocked by a running read")
		}

		exists, err := ledger.Bills().Exists(ctx, "acc-1", march)
		require.NoError(t, err)
		require.False(t, exists)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.BillCount())
}

func TestTariffsResolveLatestEffective(t *testing.T) {
	store := NewStore()
	store.AddTariff(billing.Tariff{Service: "water", PricePerUnit: decimal.RequireFromString("30"), EffectiveFrom: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)})
	store.AddTariff(billing.Tariff{Service: "water", PricePerUnit: decimal.RequireFromString("40"), EffectiveFrom: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)})

	err := store.ReadOnly(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		price, err := ledger.Tariffs().TariffFor(ctx, "water", time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, "30", price.String())

		price, err = ledger.Tariffs().TariffFor(ctx, "water", time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, "40", price.String())

		_, err = ledger.Tariffs().TariffFor(ctx, "gas", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
		require.ErrorIs(t, err, billing.ErrTariffNotFound)
		return nil
	})
	require.NoError(t, err)
}
