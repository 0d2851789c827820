package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// ReadingRepository reads meter readings.
type ReadingRepository struct {
	q dbtx
}

// NewReadingRepository constructs a repository outside a unit of work.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{q: db}
}

// ListForPeriod returns the readings captured for one account and month.
func (r *ReadingRepository) ListForPeriod(ctx context.Context, accountID string, period time.Time) ([]billing.Reading, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("reading")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT account_id, service, period, value, validated, recorded_at
FROM meter_readings
WHERE account_id = $1 AND period = $2::date
ORDER BY service ASC, recorded_at ASC`, accountID, dateOnly(billing.MonthStart(period)))
	if err != nil {
		return nil, errors.Wrap(err, "list readings")
	}
	defer rows.Close()

	var result []billing.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestBefore returns the newest reading of service strictly before the given month.
func (r *ReadingRepository) LatestBefore(ctx context.Context, accountID, service string, before time.Time) (*billing.Reading, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("reading")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT account_id, service, period, value, validated, recorded_at
FROM meter_readings
WHERE account_id = $1 AND service = $2 AND period < $3::date
ORDER BY period DESC, recorded_at DESC
LIMIT 1`, accountID, service, dateOnly(before))
	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return reading, err
}

func scanReading(row rowScanner) (*billing.Reading, error) {
	var reading billing.Reading
	if err := row.Scan(&reading.AccountID, &reading.Service, &reading.Period, &reading.Value, &reading.Validated, &reading.RecordedAt); err != nil {
		return nil, err
	}
	reading.Period = billing.MonthStart(reading.Period)
	reading.RecordedAt = reading.RecordedAt.UTC()
	return &reading, nil
}
