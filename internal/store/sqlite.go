package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/deskflow/orchestrator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		// Single-row table: at most one session is live per process.
		`CREATE TABLE IF NOT EXISTS session_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			session_id TEXT NOT NULL,
			identity TEXT NOT NULL,
			established_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession persists the session, replacing any previous one.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	identity, err := json.Marshal(session.Identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_state (id, session_id, identity, established_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET session_id=excluded.session_id,
			identity=excluded.identity, established_at=excluded.established_at`,
		session.SessionID, string(identity), session.EstablishedAt)
	return err
}

// LoadSession returns the persisted session, or nil if none.
func (s *SQLiteStore) LoadSession(ctx context.Context) (*domain.Session, error) {
	var (
		sessionID     string
		identityJSON  string
		establishedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, identity, established_at FROM session_state WHERE id = 1`,
	).Scan(&sessionID, &identityJSON, &establishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var identity domain.Identity
	if err := json.Unmarshal([]byte(identityJSON), &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}

	return &domain.Session{
		Identity:      identity,
		SessionID:     sessionID,
		EstablishedAt: establishedAt,
	}, nil
}

// ClearSession removes the persisted session.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE id = 1`)
	return err
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
