package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// BillRepository persists bills and their items.
type BillRepository struct {
	q dbtx
}

// NewBillRepository constructs a repository outside a unit of work.
func NewBillRepository(db *sql.DB) *BillRepository {
	return &BillRepository{q: db}
}

const billColumns = `id, account_id, period, total_amount, document_ref, created_at`

// Exists reports whether a bill exists for account and period.
func (r *BillRepository) Exists(ctx context.Context, accountID string, period time.Time) (bool, error) {
	if r == nil || r.q == nil {
		return false, repoErr("bill")
	}
	var exists bool
	err := r.q.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM bills WHERE account_id = $1 AND period = $2::date
)`, accountID, dateOnly(billing.MonthStart(period))).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "bill exists")
	}
	return exists, nil
}

// Create inserts the bill and its items. A conflict on the (account, period)
// unique index yields ErrDuplicateBill.
func (r *BillRepository) Create(ctx context.Context, bill *billing.Bill) error {
	if r == nil || r.q == nil {
		return repoErr("bill")
	}
	if bill == nil {
		return billing.ErrNilBill
	}
	res, err := r.q.ExecContext(ctx, `
INSERT INTO bills (id, account_id, period, total_amount, document_ref, created_at)
VALUES ($1,$2,$3::date,$4,$5,$6)
ON CONFLICT (account_id, period) DO NOTHING`,
		bill.ID, bill.AccountID, dateOnly(bill.Period), bill.TotalAmount, bill.DocumentRef, bill.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.WithStack(billing.ErrDuplicateBill)
		}
		return errors.Wrap(err, "insert bill")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "insert bill")
	}
	if affected == 0 {
		return errors.WithStack(billing.ErrDuplicateBill)
	}
	for i, item := range bill.Items {
		_, err := r.q.ExecContext(ctx, `
INSERT INTO bill_items (bill_id, line_no, service_name, tariff, consumption, amount)
VALUES ($1,$2,$3,$4,$5,$6)`,
			bill.ID, i+1, item.ServiceName, item.Tariff, item.Consumption, item.Amount)
		if err != nil {
			return errors.Wrapf(err, "insert bill item %s", item.ServiceName)
		}
	}
	return nil
}

// Get fetches a bill with its items.
func (r *BillRepository) Get(ctx context.Context, id string) (*billing.Bill, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("bill")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT `+billColumns+`
FROM bills
WHERE id = $1`, id)
	bill, err := scanBill(row)
	if err != nil || bill == nil {
		return bill, err
	}
	items, err := r.listItems(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	bill.Items = items
	return bill, nil
}

// ListByAccount returns an account's bills, newest period first.
func (r *BillRepository) ListByAccount(ctx context.Context, accountID string) ([]billing.Bill, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("bill")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT `+billColumns+`
FROM bills
WHERE account_id = $1
ORDER BY period DESC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list bills")
	}

	var result []billing.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if bill != nil {
			result = append(result, *bill)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range result {
		items, err := r.listItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

// AttachDocument records the rendered document reference of a bill.
func (r *BillRepository) AttachDocument(ctx context.Context, id, ref string) error {
	if r == nil || r.q == nil {
		return repoErr("bill")
	}
	res, err := r.q.ExecContext(ctx, `UPDATE bills SET document_ref = $1 WHERE id = $2`, ref, id)
	if err != nil {
		return errors.Wrap(err, "attach document")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "attach document")
	}
	if affected == 0 {
		return errors.WithStack(billing.ErrBillNotFound)
	}
	return nil
}

func (r *BillRepository) listItems(ctx context.Context, billID string) ([]billing.BillItem, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT service_name, tariff, consumption, amount
FROM bill_items
WHERE bill_id = $1
ORDER BY line_no ASC`, billID)
	if err != nil {
		return nil, errors.Wrap(err, "list bill items")
	}
	defer rows.Close()

	var items []billing.BillItem
	for rows.Next() {
		var item billing.BillItem
		if err := rows.Scan(&item.ServiceName, &item.Tariff, &item.Consumption, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanBill(row rowScanner) (*billing.Bill, error) {
	var bill billing.Bill
	err := row.Scan(&bill.ID, &bill.AccountID, &bill.Period, &bill.TotalAmount, &bill.DocumentRef, &bill.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	bill.Period = billing.MonthStart(bill.Period)
	bill.CreatedAt = bill.CreatedAt.UTC()
	return &bill, nil
}
