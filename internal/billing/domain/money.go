package billing

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for currency values.
const MoneyPlaces = 2

// RoundMoney rounds to currency precision, half away from zero.
func RoundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(MoneyPlaces)
}

// NonNegative clamps value at zero.
func NonNegative(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}

// FormatMoney renders value with exactly two decimals.
func FormatMoney(value decimal.Decimal) string {
	return value.StringFixed(MoneyPlaces)
}

// ValidateAmount checks that a payment amount is positive and whole cents.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if !amount.Equal(RoundMoney(amount)) {
		return errors.Wrapf(ErrSubCentAmount, "amount %s", amount)
	}
	return nil
}
