package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	billing "housing-ledger/internal/billing/domain"
)

type ledgerQuery struct{ l *ledger }

func (q ledgerQuery) AccountTotals(_ context.Context, accountID string, chargedThrough, collectedBefore time.Time) (billing.AccountTotals, error) {
	totals := billing.AccountTotals{Charged: decimal.Zero, BillCollected: decimal.Zero, TopUpCollected: decimal.Zero}
	for _, bill := range q.l.st.bills {
		if bill.AccountID == accountID && periodWithin(bill.Period, time.Time{}, chargedThrough) {
			totals.Charged = totals.Charged.Add(bill.TotalAmount)
		}
	}
	for _, payment := range q.l.st.payments {
		if payment.AccountID != accountID || !payment.Counts() || !dateWithin(payment.Date, time.Time{}, collectedBefore) {
			continue
		}
		if payment.IsTopUp() {
			totals.TopUpCollected = totals.TopUpCollected.Add(payment.Amount)
		} else {
			totals.BillCollected = totals.BillCollected.Add(payment.Amount)
		}
	}
	return totals, nil
}

func (q ledgerQuery) SumCharged(_ context.Context, from, through time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, bill := range q.l.st.bills {
		if periodWithin(bill.Period, from, through) {
			total = total.Add(bill.TotalAmount)
		}
	}
	return total, nil
}

func (q ledgerQuery) SumCollected(_ context.Context, from, before time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, payment := range q.l.st.payments {
		if payment.Counts() && dateWithin(payment.Date, from, before) {
			total = total.Add(payment.Amount)
		}
	}
	return total, nil
}

func (q ledgerQuery) DailyCollected(_ context.Context, from, before time.Time) ([]billing.DailyAmount, error) {
	byDay := make(map[time.Time]decimal.Decimal)
	for _, payment := range q.l.st.payments {
		if !payment.Counts() || !dateWithin(payment.Date, from, before) {
			continue
		}
		day := billing.DayStart(payment.Date)
		byDay[day] = byDay[day].Add(payment.Amount)
	}
	result := make([]billing.DailyAmount, 0, len(byDay))
	for day, amount := range byDay {
		result = append(result, billing.DailyAmount{Day: day, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result, nil
}

func (q ledgerQuery) AccountDebts(ctx context.Context, chargedThrough, collectedBefore time.Time) ([]billing.AccountDebt, error) {
	var result []billing.AccountDebt
	for _, account := range q.l.st.sortedAccounts() {
		totals, err := q.AccountTotals(ctx, account.ID, chargedThrough, collectedBefore)
		if err != nil {
			return nil, err
		}
		debt := billing.AccountDebt{
			AccountID:     account.ID,
			AccountNumber: account.Number,
			Address:       account.Address,
			OwnerName:     account.OwnerName,
			Charged:       totals.Charged,
			Collected:     totals.Collected(),
		}
		if debt.Debt().IsPositive() {
			result = append(result, debt)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		cmp := result[i].Debt().Cmp(result[j].Debt())
		if cmp == 0 {
			return result[i].AccountID < result[j].AccountID
		}
		return cmp > 0
	})
	return result, nil
}

func periodWithin(period, from, through time.Time) bool {
	period = billing.MonthStart(period)
	if !from.IsZero() && period.Before(from) {
		return false
	}
	return through.IsZero() || !period.After(through)
}

func dateWithin(date, from, before time.Time) bool {
	if !from.IsZero() && date.Before(from) {
		return false
	}
	return before.IsZero() || date.Before(before)
}
