package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-gateway/internal/store"
)

// Schema is the session journal table. New applies it; tests pass it to NewWithSetup.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	account     TEXT NOT NULL,
	character   TEXT NOT NULL,
	remote_addr TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	ended_at    DATETIME,
	end_reason  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

// SQLiteJournal implements store.SessionJournal for SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// New opens (or creates) the journal database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteJournal, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens the database and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// Migrate applies Schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// RecordSessionStart inserts the record of an identified session.
func (s *SQLiteJournal) RecordSessionStart(ctx context.Context, rec store.SessionRecord) error {
	query := `
		INSERT INTO sessions (id, account, character, remote_addr, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Account, rec.Character, rec.RemoteAddr, rec.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordSessionEnd stamps the end of a session.
func (s *SQLiteJournal) RecordSessionEnd(ctx context.Context, id string, endedAt time.Time, reason string) error {
	query := `
		UPDATE sessions
		SET ended_at = ?, end_reason = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, endedAt.UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetSession retrieves one record by session id.
func (s *SQLiteJournal) GetSession(ctx context.Context, id string) (*store.SessionRecord, error) {
	query := `
		SELECT id, account, character, remote_addr, started_at, ended_at, end_reason
		FROM sessions
		WHERE id = ?
	`
	rec, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return rec, nil
}

// ListSessions returns up to limit records, newest first.
func (s *SQLiteJournal) ListSessions(ctx context.Context, limit int) ([]*store.SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, account, character, remote_addr, started_at, ended_at, end_reason
		FROM sessions
		ORDER BY started_at DESC, id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	records := make([]*store.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*store.SessionRecord, error) {
	var rec store.SessionRecord
	var endedAt sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.Account,
		&rec.Character,
		&rec.RemoteAddr,
		&rec.StartedAt,
		&endedAt,
		&rec.EndReason,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	return &rec, nil
}
