package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading is a captured meter value for a metered service.
type Reading struct {
	AccountID  string
	Service    string
	Period     time.Time
	Value      decimal.Decimal
	Validated  bool
	RecordedAt time.Time
}

// Tariff is the unit price of a metered service from EffectiveFrom onward.
type Tariff struct {
	Service       string
	PricePerUnit  decimal.Decimal
	EffectiveFrom time.Time
}

// FixedFee is a per-area service charge applied to every account.
type FixedFee struct {
	Service     string
	RatePerArea decimal.Decimal
}
