package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("session record not found")

// SessionRecord is one gateway session as written to the journal.
type SessionRecord struct {
	ID         string     `json:"id"`
	Account    string     `json:"account"`
	Character  string     `json:"character"`
	RemoteAddr string     `json:"remote_addr"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	// EndReason is empty for a normal close.
	EndReason string `json:"end_reason,omitempty"`
}

// SessionJournal is a write-mostly audit trail of gateway sessions.
// Nothing is ever restored from it.
type SessionJournal interface {
	// RecordSessionStart inserts the record of an identified session.
	RecordSessionStart(ctx context.Context, rec SessionRecord) error

	// RecordSessionEnd stamps the end time and reason of a session.
	RecordSessionEnd(ctx context.Context, id string, endedAt time.Time, reason string) error

	// GetSession retrieves one record by session id.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// ListSessions returns up to limit records, newest first.
	ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error)

	// Close closes the underlying storage.
	Close() error
}
