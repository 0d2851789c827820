package billing

import "github.com/shopspring/decimal"

// Account is a billable unit of the property.
type Account struct {
	ID          string
	Number      string
	OwnerUserID string
	OwnerName   string
	Area        decimal.Decimal
	Address     string
}

// OwnedBy reports whether userID owns the account.
func (a Account) OwnedBy(userID string) bool {
	return userID != "" && a.OwnerUserID == userID
}
