package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// PaymentRepository persists payments.
type PaymentRepository struct {
	q dbtx
}

// NewPaymentRepository constructs a repository outside a unit of work.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

const paymentColumns = `id, account_id, bill_id, amount, date, status, transaction_id, method, is_test, paid_at, cancelled_at`

// Create inserts a payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *billing.Payment) error {
	if r == nil || r.q == nil {
		return repoErr("payment")
	}
	if payment == nil {
		return billing.ErrNilPayment
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO payments (`+paymentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		payment.ID, payment.AccountID, nullString(payment.BillID), payment.Amount, payment.Date,
		string(payment.Status), payment.TransactionID, string(payment.Method), payment.IsTest,
		nullTime(payment.PaidAt), nullTime(payment.CancelledAt))
	if err != nil {
		return errors.Wrap(err, "insert payment")
	}
	return nil
}

// Get fetches a payment.
func (r *PaymentRepository) Get(ctx context.Context, id string) (*billing.Payment, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("payment")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE id = $1`, id)
	return scanPayment(row)
}

// ListByAccount returns an account's payments, newest first.
func (r *PaymentRepository) ListByAccount(ctx context.Context, accountID string) ([]billing.Payment, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("payment")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE account_id = $1
ORDER BY date DESC, id ASC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	defer rows.Close()

	var result []billing.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			result = append(result, *payment)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionStatus moves a pending payment to a terminal status. The status
// predicate makes the update a compare-and-set: of two concurrent transitions
// exactly one sees a row affected.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, to billing.PaymentStatus, at time.Time) (bool, error) {
	if r == nil || r.q == nil {
		return false, repoErr("payment")
	}
	if !billing.PaymentStatusPending.CanTransitionTo(to) {
		return false, errors.Wrapf(billing.ErrInvalidArgument, "transition to %s", to)
	}
	column := "paid_at"
	if to == billing.PaymentStatusCancelled {
		column = "cancelled_at"
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE payments
SET status = $1, `+column+` = $2
WHERE id = $3 AND status = 'pending'`, string(to), at.UTC(), id)
	if err != nil {
		return false, errors.Wrap(err, "transition payment")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "transition payment")
	}
	return affected == 1, nil
}

func scanPayment(row rowScanner) (*billing.Payment, error) {
	var payment billing.Payment
	var billID sql.NullString
	var status, method string
	var paidAt, cancelledAt sql.NullTime
	err := row.Scan(
		&payment.ID,
		&payment.AccountID,
		&billID,
		&payment.Amount,
		&payment.Date,
		&status,
		&payment.TransactionID,
		&method,
		&payment.IsTest,
		&paidAt,
		&cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	payment.BillID = billID.String
	payment.Status = billing.PaymentStatus(status)
	payment.Method = billing.PaymentMethod(method)
	payment.Date = payment.Date.UTC()
	if paidAt.Valid {
		payment.PaidAt = paidAt.Time.UTC()
	}
	if cancelledAt.Valid {
		payment.CancelledAt = cancelledAt.Time.UTC()
	}
	return &payment, nil
}
