package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	billing "housing-ledger/internal/billing/domain"
)

// AccountRepository reads accounts.
type AccountRepository struct {
	q dbtx
}

// NewAccountRepository constructs a repository outside a unit of work.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{q: db}
}

const accountColumns = `id, number, owner_user_id, owner_name, area, address`

// Get fetches an account.
func (r *AccountRepository) Get(ctx context.Context, id string) (*billing.Account, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("account")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE id = $1`, id)
	return scanAccount(row)
}

// FindByOwner returns the first account owned by userID.
func (r *AccountRepository) FindByOwner(ctx context.Context, userID string) (*billing.Account, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("account")
	}
	row := r.q.QueryRowContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE owner_user_id = $1
ORDER BY id ASC
LIMIT 1`, userID)
	return scanAccount(row)
}

// List returns all accounts ordered by id.
func (r *AccountRepository) List(ctx context.Context) ([]billing.Account, error) {
	if r == nil || r.q == nil {
		return nil, repoErr("account")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}
	defer rows.Close()

	var result []billing.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		if account != nil {
			result = append(result, *account)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanAccount(row rowScanner) (*billing.Account, error) {
	var account billing.Account
	err := row.Scan(&account.ID, &account.Number, &account.OwnerUserID, &account.OwnerName, &account.Area, &account.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}
