package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/infrastructure/memory"
	"housing-ledger/internal/billing/notify"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// manualClock returns a settable instant.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *recordingNotifier) events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := make([]notify.Event, 0, len(n.messages))
	for _, msg := range n.messages {
		events = append(events, msg.Event)
	}
	return events
}

// seedBill stores a single-item bill with the given total.
func seedBill(t *testing.T, store *memory.Store, id, accountID string, period time.Time, total string) {
	t.Helper()
	err := store.Do(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		item, err := billing.NewBillItem("water", dec(total), decimal.NewFromInt(1))
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

func paymentStatus(t *testing.T, store *memory.Store, id string) billing.PaymentStatus {
	t.Helper()
	var status billing.PaymentStatus
	err := store.ReadOnly(context.Background(), func(ctx context.Context, ledger billing.Ledger) error {
		payment, err := ledger.Payments().Get(ctx, id)
		if err != nil {
			return err
		}
		require.NotNil(t, payment)
		status = payment.Status
		return nil
	})
	require.NoError(t, err)
	return status
}

var (
	resident = Actor{UserID: "user-a"}
	stranger = Actor{UserID: "user-z"}
	staff    = Actor{UserID: "clerk", Staff: true}
)

// newPaymentFixture seeds account A (owned by resident) with one 1000.00 bill for 2024-05.
func newPaymentFixture(t *testing.T, settings PaymentSettings) (*memory.Store, *PaymentService, *BalanceCalculator, *manualClock) {
	t.Helper()
	store := memory.NewStore()
	store.AddAccount(billing.Account{ID: "acc-a", Number: "A-1", OwnerUserID: resident.UserID, OwnerName: "Alice", Area: dec("50")})
	store.AddAccount(billing.Account{ID: "acc-b", Number: "B-1", OwnerUserID: "user-b", OwnerName: "Bob", Area: dec("40")})
	seedBill(t, store, "bill-a", "acc-a", day(2024, time.May, 1), "1000.00")

	clock := newManualClock(time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC))
	payments, err := NewPaymentService(store, settings, WithPaymentClock(clock))
	require.NoError(t, err)
	balances, err := NewBalanceCalculator(store, clock)
	require.NoError(t, err)
	return store, payments, balances, clock
}
