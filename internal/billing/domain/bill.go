package billing

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// BillItem is one service line of a bill.
type BillItem struct {
	ServiceName string
	Tariff      decimal.Decimal
	Consumption decimal.Decimal
	Amount      decimal.Decimal
}

// NewBillItem prices consumption at tariff.
func NewBillItem(serviceName string, tariff, consumption decimal.Decimal) (BillItem, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return BillItem{}, errors.Wrap(ErrInvalidArgument, "bill item: empty service name")
	}
	if tariff.IsNegative() || consumption.IsNegative() {
		return BillItem{}, errors.Wrapf(ErrNegativeValue, "bill item %s", serviceName)
	}
	return BillItem{
		ServiceName: serviceName,
		Tariff:      tariff,
		Consumption: consumption,
		Amount:      RoundMoney(tariff.Mul(consumption)),
	}, nil
}

// Bill is one billing period's charge for one account.
// The total is fixed at creation; corrections are issued as new bills.
type Bill struct {
	ID          string
	AccountID   string
	Period      time.Time
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
	Items       []BillItem
	DocumentRef string
}

// NewBill builds a bill whose total is the sum of its items.
func NewBill(id, accountID string, period time.Time, items []BillItem, createdAt time.Time) (*Bill, error) {
	if id == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "bill: empty id")
	}
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	if period.IsZero() {
		return nil, ErrInvalidPeriod
	}
	total := SumItems(items)
	if total.IsNegative() {
		return nil, errors.Wrapf(ErrNegativeValue, "bill total %s", total)
	}
	copied := make([]BillItem, len(items))
	copy(copied, items)
	return &Bill{
		ID:          id,
		AccountID:   accountID,
		Period:      MonthStart(period),
		TotalAmount: total,
		CreatedAt:   createdAt.UTC(),
		Items:       copied,
	}, nil
}

// SumItems adds up item amounts.
func SumItems(items []BillItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// Key returns the (account, period) uniqueness key.
func (b *Bill) Key() (string, error) {
	if b == nil {
		return "", ErrNilBill
	}
	if b.AccountID == "" {
		return "", ErrEmptyAccountID
	}
	key, err := NewPeriodKey(b.Period)
	if err != nil {
		return "", err
	}
	return b.AccountID + "|" + key.String(), nil
}

// ValidatePaymentAmount checks that amount is a valid payment amount and at
// most the bill total.
func (b *Bill) ValidatePaymentAmount(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(b.TotalAmount) {
		return errors.Wrapf(ErrAmountExceedsBill, "amount %s, bill total %s", FormatMoney(amount), FormatMoney(b.TotalAmount))
	}
	return nil
}
