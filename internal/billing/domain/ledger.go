package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountTotals are the cumulative figures of one account.
type AccountTotals struct {
	Charged        decimal.Decimal
	BillCollected  decimal.Decimal
	TopUpCollected decimal.Decimal
}

// Collected is the sum of all counted payments.
func (t AccountTotals) Collected() decimal.Decimal {
	return t.BillCollected.Add(t.TopUpCollected)
}

// Balance is the debt snapshot of an account at AsOf.
type Balance struct {
	AccountID       string
	AsOf            time.Time
	Charged         decimal.Decimal
	Collected       decimal.Decimal
	Debt            decimal.Decimal
	AvailableCredit decimal.Decimal
}

// NewBalance derives debt and wallet credit from totals.
func NewBalance(accountID string, asOf time.Time, totals AccountTotals) Balance {
	collected := totals.Collected()
	billDebt := NonNegative(totals.Charged.Sub(totals.BillCollected))
	return Balance{
		AccountID:       accountID,
		AsOf:            asOf.UTC(),
		Charged:         totals.Charged,
		Collected:       collected,
		Debt:            NonNegative(totals.Charged.Sub(collected)),
		AvailableCredit: NonNegative(totals.TopUpCollected.Sub(billDebt)),
	}
}

// DailyAmount is the collected amount of one UTC day.
type DailyAmount struct {
	Day    time.Time
	Amount decimal.Decimal
}

// AccountDebt is an account together with its cumulative charged and collected sums.
type AccountDebt struct {
	AccountID     string
	AccountNumber string
	Address       string
	OwnerName     string
	Charged       decimal.Decimal
	Collected     decimal.Decimal
}

// Debt is charged minus collected, unclamped.
func (d AccountDebt) Debt() decimal.Decimal {
	return d.Charged.Sub(d.Collected)
}

// Debtor is one entry of the top debtors ranking.
type Debtor struct {
	AccountID     string
	AccountNumber string
	Address       string
	OwnerName     string
	DebtAmount    decimal.Decimal
}

// AnalyticsResult is the collection dashboard for a date range.
type AnalyticsResult struct {
	From              time.Time
	To                time.Time
	TotalCharged      decimal.Decimal
	TotalCollected    decimal.Decimal
	CollectionPercent decimal.Decimal
	TotalDebt         decimal.Decimal
	DailySeries       []DailyAmount
	TopDebtors        []Debtor
}
