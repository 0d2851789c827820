package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	billing "housing-ledger/internal/billing/domain"
)

type accountRepository struct{ l *ledger }

func (r accountRepository) Get(_ context.Context, id string) (*billing.Account, error) {
	account, ok := r.l.st.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (r accountRepository) FindByOwner(_ context.Context, userID string) (*billing.Account, error) {
	for _, account := range r.l.st.sortedAccounts() {
		if account.OwnedBy(userID) {
			found := account
			return &found, nil
		}
	}
	return nil, nil
}

func (r accountRepository) List(_ context.Context) ([]billing.Account, error) {
	return r.l.st.sortedAccounts(), nil
}

type billRepository struct{ l *ledger }

func (r billRepository) Exists(_ context.Context, accountID string, period time.Time) (bool, error) {
	key, err := (&billing.Bill{AccountID: accountID, Period: period}).Key()
	if err != nil {
		return false, err
	}
	_, ok := r.l.st.billKeys[key]
	return ok, nil
}

func (r billRepository) Create(_ context.Context, bill *billing.Bill) error {
	if err := r.l.writable(); err != nil {
		return err
	}
	if bill == nil {
		return billing.ErrNilBill
	}
	key, err := bill.Key()
	if err != nil {
		return err
	}
	if _, ok := r.l.st.billKeys[key]; ok {
		return billing.ErrDuplicateBill
	}
	stored := *bill
	stored.Items = append([]billing.BillItem(nil), bill.Items...)
	r.l.st.bills[bill.ID] = stored
	r.l.st.billKeys[key] = bill.ID
	return nil
}

func (r billRepository) Get(_ context.Context, id string) (*billing.Bill, error) {
	bill, ok := r.l.st.bills[id]
	if !ok {
		return nil, nil
	}
	bill.Items = append([]billing.BillItem(nil), bill.Items...)
	return &bill, nil
}

func (r billRepository) ListByAccount(_ context.Context, accountID string) ([]billing.Bill, error) {
	var result []billing.Bill
	for _, bill := range r.l.st.bills {
		if bill.AccountID == accountID {
			bill.Items = append([]billing.BillItem(nil), bill.Items...)
			result = append(result, bill)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.After(result[j].Period)
	})
	return result, nil
}

func (r billRepository) AttachDocument(_ context.Context, id, ref string) error {
	if err := r.l.writable(); err != nil {
		return err
	}
	bill, ok := r.l.st.bills[id]
	if !ok {
		return billing.ErrBillNotFound
	}
	bill.DocumentRef = ref
	r.l.st.bills[id] = bill
	return nil
}

type paymentRepository struct{ l *ledger }

func (r paymentRepository) Create(_ context.Context, payment *billing.Payment) error {
	if err := r.l.writable(); err != nil {
		return err
	}
	if payment == nil {
		return billing.ErrNilPayment
	}
	r.l.st.payments[payment.ID] = *payment
	return nil
}

func (r paymentRepository) Get(_ context.Context, id string) (*billing.Payment, error) {
	payment, ok := r.l.st.payments[id]
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

func (r paymentRepository) ListByAccount(_ context.Context, accountID string) ([]billing.Payment, error) {
	var result []billing.Payment
	for _, payment := range r.l.st.payments {
		if payment.AccountID == accountID {
			result = append(result, payment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].ID < result[j].ID
		}
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

func (r paymentRepository) TransitionStatus(_ context.Context, id string, to billing.PaymentStatus, at time.Time) (bool, error) {
	if err := r.l.writable(); err != nil {
		return false, err
	}
	payment, ok := r.l.st.payments[id]
	if !ok || payment.Status != billing.PaymentStatusPending {
		return false, nil
	}
	if err := payment.ApplyTransition(to, at); err != nil {
		return false, err
	}
	r.l.st.payments[id] = payment
	return true, nil
}

type readingRepository struct{ l *ledger }

func (r readingRepository) ListForPeriod(_ context.Context, accountID string, period time.Time) ([]billing.Reading, error) {
	period = billing.MonthStart(period)
	var result []billing.Reading
	for _, reading := range r.l.st.readings {
		if reading.AccountID == accountID && reading.Period.Equal(period) {
			result = append(result, reading)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Service == result[j].Service {
			return result[i].RecordedAt.Before(result[j].RecordedAt)
		}
		return result[i].Service < result[j].Service
	})
	return result, nil
}

func (r readingRepository) LatestBefore(_ context.Context, accountID, service string, before time.Time) (*billing.Reading, error) {
	var latest *billing.Reading
	for i := range r.l.st.readings {
		reading := r.l.st.readings[i]
		if reading.AccountID != accountID || reading.Service != service || !reading.Period.Before(before) {
			continue
		}
		if latest == nil || reading.Period.After(latest.Period) ||
			(reading.Period.Equal(latest.Period) && reading.RecordedAt.After(latest.RecordedAt)) {
			found := reading
			latest = &found
		}
	}
	return latest, nil
}

func (s *state) sortedAccounts() []billing.Account {
	result := make([]billing.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

type tariffRepository struct{ l *ledger }

func (r tariffRepository) TariffFor(_ context.Context, service string, period time.Time) (decimal.Decimal, error) {
	period = billing.MonthStart(period)
	var best *billing.Tariff
	for i := range r.l.st.tariffs {
		tariff := &r.l.st.tariffs[i]
		if tariff.Service != service || tariff.EffectiveFrom.After(period) {
			continue
		}
		if best == nil || !tariff.EffectiveFrom.Before(best.EffectiveFrom) {
			best = tariff
		}
	}
	if best == nil {
		return decimal.Zero, errors.Wrapf(billing.ErrTariffNotFound, "service %s, period %s", service, billing.FormatPeriod(period))
	}
	return best.PricePerUnit, nil
}
