package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

const insertEntry = `
INSERT INTO audit_logs (
	id, actor, role, action, resource_type, resource_id, account_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Repository stores audit entries in the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a Repository over db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit: repository has no database")
	}
	entry = entry.complete(time.Now())

	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, insertEntry,
		entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.AccountID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt,
	)
	return errors.Wrapf(err, "audit: insert %s", entry.Action)
}
