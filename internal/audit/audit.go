package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry records one ledger mutation and who performed it.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	AccountID     string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger persists audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// complete fills the id, timestamp and metadata digest when unset.
func (e Entry) complete(now time.Time) Entry {
	if e.ID == "" {
		e.ID = "audit-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if e.PayloadDigest == "" && len(e.Metadata) > 0 {
		e.PayloadDigest = Digest(e.Metadata)
	}
	return e
}

// Digest is the hex SHA-256 of payload.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// MemoryLogger keeps entries in process when no database is configured.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *MemoryLogger) Log(_ context.Context, entry Entry) error {
	entry = entry.complete(time.Now())
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns the recorded entries, oldest first.
func (l *MemoryLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
