package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	billing "housing-ledger/internal/billing/domain"
)

// TariffRepository resolves unit prices from the tariffs table.
type TariffRepository struct {
	q dbtx
}

// TariffFor returns the latest price of service effective on or before period.
func (r *TariffRepository) TariffFor(ctx context.Context, service string, period time.Time) (decimal.Decimal, error) {
	if r == nil || r.q == nil {
		return decimal.Zero, repoErr("tariff")
	}
	if service == "" {
		return decimal.Zero, errors.New("tariff repo: empty service")
	}
	if period.IsZero() {
		return decimal.Zero, billing.ErrInvalidPeriod
	}
	period = billing.MonthStart(period)

	var price decimal.Decimal
	err := r.q.QueryRowContext(ctx, `
SELECT price_per_unit
FROM tariffs
WHERE service = $1 AND effective_from <= $2::date
ORDER BY effective_from DESC
LIMIT 1`, service, dateOnly(period)).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, errors.Wrapf(billing.ErrTariffNotFound, "service %s, period %s", service, billing.FormatPeriod(period))
		}
		return decimal.Zero, errors.Wrap(err, "load tariff")
	}
	return price, nil
}
