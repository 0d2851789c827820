package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"housing-ledger/internal/audit"
	"housing-ledger/internal/auth"
	billingapp "housing-ledger/internal/billing/application"
	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/infrastructure/memory"
)

// stepClock advances one second on every read so payments made in a test
// are strictly before any later balance snapshot.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type stubGenerator struct {
	gotPeriod *time.Time
	gotForce  bool
}

func (g *stubGenerator) GenerateBills(_ context.Context, period *time.Time, force bool) (billingapp.GenerationResult, error) {
	g.gotPeriod = period
	g.gotForce = force
	target := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if period != nil {
		target = *period
	}
	return billingapp.GenerationResult{Period: target, Created: 2, Skipped: 1, Errors: 1}, nil
}

type fixture struct {
	mux       *http.ServeMux
	audit     *audit.MemoryLogger
	generator *stubGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &stepClock{now: time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)}

	store := memory.NewStore()
	store.AddAccount(billing.Account{ID: "acc-1", Number: "A-001", OwnerUserID: "user-1", OwnerName: "Ann", Area: decimal.NewFromInt(50), Address: "1 Main St"})
	store.AddAccount(billing.Account{ID: "acc-2", Number: "A-002", OwnerUserID: "user-2", OwnerName: "Bob", Area: decimal.NewFromInt(40), Address: "2 Main St"})
	err := store.Do(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		item, err := billing.NewBillItem("water", decimal.NewFromInt(1000), decimal.NewFromInt(1))
		if err != nil {
			return err
		}
		bill, err := billing.NewBill("bill-1", "acc-1", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), []billing.BillItem{item}, clock.Now())
		if err != nil {
			return err
		}
		return ledger.Bills().Create(ctx, bill)
	})
	require.NoError(t, err)

	payments, err := billingapp.NewPaymentService(store, billingapp.PaymentSettings{
		RedirectBaseURL: "https://pay.example.test/checkout",
		TopUpMaxAmount:  decimal.NewFromInt(5000),
	}, billingapp.WithPaymentClock(clock))
	require.NoError(t, err)
	balances, err := billingapp.NewBalanceCalculator(store, clock)
	require.NoError(t, err)
	analytics, err := billingapp.NewAnalyticsService(store, nil)
	require.NoError(t, err)
	bills, err := billingapp.NewBillQueryService(store)
	require.NoError(t, err)

	auditLog := &audit.MemoryLogger{}
	generator := &stubGenerator{}
	paymentsHandler, err := NewPaymentsHandler(payments, balances, auditLog, nil)
	require.NoError(t, err)
	adminHandler, err := NewAdminHandler(payments, generator, analytics, auditLog, nil)
	require.NoError(t, err)
	billsHandler, err := NewBillsHandler(bills, nil, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/payments", paymentsHandler)
	mux.Handle("/payments/", paymentsHandler)
	mux.Handle("/bills/", billsHandler)
	mux.Handle("/admin/", adminHandler)
	return &fixture{mux: mux, audit: auditLog, generator: generator}
}

func (f *fixture) do(t *testing.T, role auth.Role, subject, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(auth.WithIdentity(req.Context(), role, subject))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPaymentConfirmReducesDebt(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments", map[string]string{"bill_id": "bill-1", "amount": "400.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[paymentDTO](t, rec)
	require.Equal(t, "pending", created.Status)
	require.Equal(t, "400.00", created.Amount)
	require.NotNil(t, created.BillID)

	rec = f.do(t, auth.RoleStaff, "clerk", http.MethodPost, "/admin/payments/"+created.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "paid", decodeBody[paymentDTO](t, rec).Status)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodGet, "/payments/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	balance := decodeBody[balanceDTO](t, rec)
	require.Equal(t, "600.00", balance.Debt)
	require.Equal(t, "400.00", balance.Collected)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(billing.KindInvalidState), decodeBody[errorResponse](t, rec).Error)

	actions := make([]string, 0)
	for _, entry := range f.audit.Entries() {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []string{"payment.create", "payment.confirm"}, actions)
}

func TestCreatePaymentErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments", map[string]string{"bill_id": "bill-1", "amount": "1000.01"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(billing.KindInvalidArgument), decodeBody[errorResponse](t, rec).Error)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments", map[string]string{"bill_id": "bill-1", "amount": "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, auth.RoleResident, "user-2", http.MethodPost, "/payments", map[string]string{"bill_id": "bill-1", "amount": "10"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, string(billing.KindForbidden), decodeBody[errorResponse](t, rec).Error)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments", map[string]string{"bill_id": "missing", "amount": "10"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, string(billing.KindNotFound), decodeBody[errorResponse](t, rec).Error)

	require.Empty(t, f.audit.Entries())
}

func TestPaymentVisibility(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments", map[string]string{"bill_id": "bill-1", "amount": "100"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[paymentDTO](t, rec)

	rec = f.do(t, auth.RoleResident, "user-2", http.MethodGet, "/payments/"+created.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, auth.RoleStaff, "clerk", http.MethodGet, "/payments/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, auth.RoleResident, "user-2", http.MethodGet, "/payments/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody[[]paymentDTO](t, rec))

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodGet, "/payments/mine", nil)
	require.Len(t, decodeBody[[]paymentDTO](t, rec), 1)

	rec = f.do(t, auth.RoleResident, "user-2", http.MethodGet, "/payments/balance?account_id=acc-1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodGet, "/payments/unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitTopUp(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments/init", map[string]string{"amount": "250.50", "method": "card"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Payment     paymentDTO `json:"payment"`
		RedirectURL string     `json:"redirect_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Payment.BillID)
	require.Equal(t, "card", resp.Payment.Method)
	require.True(t, strings.HasPrefix(resp.RedirectURL, "https://pay.example.test/checkout?"))
	require.Contains(t, resp.RedirectURL, "payment_id="+resp.Payment.ID)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments/init", map[string]string{"amount": "6000", "method": "card"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodPost, "/payments/init", map[string]string{"amount": "10", "method": "cash"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, auth.RoleResident, "nobody", http.MethodPost, "/payments/init", map[string]string{"amount": "10", "method": "card"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminGenerate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleStaff, "clerk", http.MethodPost, "/admin/bills/generate", map[string]any{"period": "2024-02", "force": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[generationDTO](t, rec)
	require.Equal(t, generationDTO{Period: "2024-02", Created: 2, Skipped: 1, Errors: 1}, result)
	require.NotNil(t, f.generator.gotPeriod)
	require.True(t, f.generator.gotForce)

	rec = f.do(t, auth.RoleStaff, "clerk", http.MethodPost, "/admin/bills/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, f.generator.gotPeriod)
	require.False(t, f.generator.gotForce)

	rec = f.do(t, auth.RoleStaff, "clerk", http.MethodPost, "/admin/bills/generate", map[string]any{"period": "March"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAnalytics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleStaff, "clerk", http.MethodGet, "/admin/analytics?from=2024-03-01&to=2024-03-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[analyticsDTO](t, rec)
	require.Equal(t, "1000.00", result.TotalCharged)
	require.Equal(t, "0.00", result.TotalCollected)
	require.Equal(t, "0.00", result.CollectionPercent)
	require.Equal(t, "1000.00", result.TotalDebt)
	require.Len(t, result.DailySeries, 3)
	require.Len(t, result.TopDebtors, 1)
	require.Equal(t, "acc-1", result.TopDebtors[0].AccountID)

	rec = f.do(t, auth.RoleStaff, "clerk", http.MethodGet, "/admin/analytics?from=2024-03-05&to=2024-03-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(billing.KindInvalidArgument), decodeBody[errorResponse](t, rec).Error)

	rec = f.do(t, auth.RoleStaff, "clerk", http.MethodGet, "/admin/analytics?from=yesterday&to=2024-03-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAnalyticsExport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleAdmin, "boss", http.MethodGet, "/admin/analytics/export.xlsx?from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, xlsxMimeType, rec.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "analytics.export", entries[0].Action)
	require.Equal(t, "boss", entries[0].Actor)
}

func TestBillDocuments(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, auth.RoleResident, "user-1", http.MethodGet, "/bills/mine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bills := decodeBody[[]billDTO](t, rec)
	require.Len(t, bills, 1)
	require.Equal(t, "2024-03", bills[0].Period)
	require.Equal(t, "1000.00", bills[0].TotalAmount)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodGet, "/bills/bill-1/document.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = f.do(t, auth.RoleResident, "user-2", http.MethodGet, "/bills/bill-1/document.pdf", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, auth.RoleResident, "user-1", http.MethodGet, "/bills/missing/document.pdf", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesThroughAuthMiddleware(t *testing.T) {
	f := newFixture(t)
	secret := []byte("handler-secret")
	handler := auth.NewMiddleware(secret, auth.NewDefaultPolicy()).Wrap(f.mux)

	token, err := auth.IssueToken(secret, "user-1", auth.RoleResident, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/bills/mine", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/payments/p-1/confirm", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
