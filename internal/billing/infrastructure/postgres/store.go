package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"

	billing "housing-ledger/internal/billing/domain"
)

const uniqueViolation = "23505"

var errNilDB = errors.New("ledger store: nil db")

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs ledger units of work inside PostgreSQL transactions.
type Store struct {
	db *sql.DB
}

// NewStore constructs a store.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errNilDB
	}
	return &Store{db: db}, nil
}

// Do runs fn in a READ COMMITTED transaction. The transaction is rolled back
// when fn returns an error or panics.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, ledger billing.Ledger) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// ReadOnly runs fn in a REPEATABLE READ READ ONLY transaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, ledger billing.Ledger) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, ledger billing.Ledger) error) (err error) {
	if s == nil || s.db == nil {
		return errNilDB
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &ledger{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

type ledger struct {
	q dbtx
}

func (l *ledger) Accounts() billing.AccountRepository { return &AccountRepository{q: l.q} }
func (l *ledger) Bills() billing.BillRepository       { return &BillRepository{q: l.q} }
func (l *ledger) Payments() billing.PaymentRepository { return &PaymentRepository{q: l.q} }
func (l *ledger) Readings() billing.ReadingRepository { return &ReadingRepository{q: l.q} }
func (l *ledger) Tariffs() billing.TariffRepository   { return &TariffRepository{q: l.q} }
func (l *ledger) Query() billing.LedgerQuery          { return &LedgerQuery{q: l.q} }

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// nullTime maps the zero time to SQL NULL so open bounds can be expressed as `$n IS NULL`.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dateOnly(t time.Time) string {
	return billing.FormatDay(t)
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return dateOnly(t)
}

func repoErr(repo string) error {
	return errors.Newf("%s repo: nil db", repo)
}
