package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	billing "housing-ledger/internal/billing/domain"
)

// counted restricts payments to those that contribute to collected totals.
const counted = `status = 'paid' AND is_test = FALSE`

// LedgerQuery computes aggregates with SQL SUMs over bills and payments.
type LedgerQuery struct {
	q dbtx
}

// NewLedgerQuery constructs a query outside a unit of work.
func NewLedgerQuery(db *sql.DB) *LedgerQuery {
	return &LedgerQuery{q: db}
}

// AccountTotals sums one account's bills and counted payments.
func (r *LedgerQuery) AccountTotals(ctx context.Context, accountID string, chargedThrough, collectedBefore time.Time) (billing.AccountTotals, error) {
	var totals billing.AccountTotals
	if r == nil || r.q == nil {
		return totals, repoErr("ledger")
	}
	err := r.q.QueryRowContext(ctx, `
SELECT
	(SELECT COALESCE(SUM(total_amount), 0)
		FROM bills
		WHERE account_id = $1 AND ($2::date IS NULL OR period <= $2::date)),
	(SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE account_id = $1 AND bill_id IS NOT NULL AND `+counted+`
			AND ($3::timestamptz IS NULL OR date < $3::timestamptz)),
	(SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE account_id = $1 AND bill_id IS NULL AND `+counted+`
			AND ($3::timestamptz IS NULL OR date < $3::timestamptz))`,
		accountID, nullDate(chargedThrough), nullTime(collectedBefore),
	).Scan(&totals.Charged, &totals.BillCollected, &totals.TopUpCollected)
	if err != nil {
		return billing.AccountTotals{}, errors.Wrap(err, "account totals")
	}
	return totals, nil
}

// SumCharged adds bill totals with from <= period <= through.
func (r *LedgerQuery) SumCharged(ctx context.Context, from, through time.Time) (decimal.Decimal, error) {
	if r == nil || r.q == nil {
		return decimal.Zero, repoErr("ledger")
	}
	var total decimal.Decimal
	err := r.q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(total_amount), 0)
FROM bills
WHERE ($1::date IS NULL OR period >= $1::date)
	AND ($2::date IS NULL OR period <= $2::date)`,
		nullDate(from), nullDate(through)).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum charged")
	}
	return total, nil
}

// SumCollected adds counted payments with from <= date < before.
func (r *LedgerQuery) SumCollected(ctx context.Context, from, before time.Time) (decimal.Decimal, error) {
	if r == nil || r.q == nil {
		return decimal.Zero, repoErr("ledger")
	}
	var total decimal.Decimal
	err := r.q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount), 0)
FROM payments
WHERE `+counted+`
	AND ($1::timestamptz IS NULL OR date >= $1::timestamptz)
	AND ($2::timestamptz IS NULL OR date < $2::timestamptz)`,
		nullTime(from), nullTime(before)).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum collected")
	}
	return total, nil
}

// DailyCollected groups counted payments by UTC day. Days without payments are omitted.
func (r *LedgerQuery) DailyCollected(ctx context.Context, from, before time.Time) ([]billing.DailyAmount, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("ledger")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT date_trunc('day', date AT TIME ZONE 'UTC') AS day, SUM(amount)
FROM payments
WHERE `+counted+`
	AND ($1::timestamptz IS NULL OR date >= $1::timestamptz)
	AND ($2::timestamptz IS NULL OR date < $2::timestamptz)
GROUP BY day
ORDER BY day ASC`, nullTime(from), nullTime(before))
	if err != nil {
		return nil, errors.Wrap(err, "daily collected")
	}
	defer rows.Close()

	var result []billing.DailyAmount
	for rows.Next() {
		var day time.Time
		var amount decimal.Decimal
		if err := rows.Scan(&day, &amount); err != nil {
			return nil, err
		}
		result = append(result, billing.DailyAmount{Day: billing.DayStart(day), Amount: amount})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AccountDebts lists accounts with a positive balance due, largest debt first.
func (r *LedgerQuery) AccountDebts(ctx context.Context, chargedThrough, collectedBefore time.Time) ([]billing.AccountDebt, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("ledger")
	}
	rows, err := r.q.QueryContext(ctx, `
WITH charged AS (
	SELECT account_id, SUM(total_amount) AS total
	FROM bills
	WHERE $1::date IS NULL OR period <= $1::date
	GROUP BY account_id
), collected AS (
	SELECT account_id, SUM(amount) AS total
	FROM payments
	WHERE `+counted+` AND ($2::timestamptz IS NULL OR date < $2::timestamptz)
	GROUP BY account_id
), balances AS (
	SELECT a.id, a.number, a.address, a.owner_name,
		COALESCE(c.total, 0) AS charged,
		COALESCE(p.total, 0) AS collected
	FROM accounts a
	LEFT JOIN charged c ON c.account_id = a.id
	LEFT JOIN collected p ON p.account_id = a.id
)
SELECT id, number, address, owner_name, charged, collected
FROM balances
WHERE charged - collected > 0
ORDER BY charged - collected DESC, id ASC`, nullDate(chargedThrough), nullTime(collectedBefore))
	if err != nil {
		return nil, errors.Wrap(err, "account debts")
	}
	defer rows.Close()

	var result []billing.AccountDebt
	for rows.Next() {
		var debt billing.AccountDebt
		if err := rows.Scan(&debt.AccountID, &debt.AccountNumber, &debt.Address, &debt.OwnerName, &debt.Charged, &debt.Collected); err != nil {
			return nil, err
		}
		result = append(result, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
