// Package store defines the durable storage interface and implementations.
//
// The durable store is a best-effort mirror of the in-memory session, kept
// only so a process restart can recover the last known session. In-memory
// state is the source of truth for correctness.
package store

import (
	"context"

	"github.com/deskflow/orchestrator/internal/domain"
)

// Store defines the interface for session persistence.
type Store interface {
	// SaveSession persists the session, replacing any previous one.
	SaveSession(ctx context.Context, session *domain.Session) error

	// LoadSession returns the persisted session, or nil if none.
	LoadSession(ctx context.Context) (*domain.Session, error)

	// ClearSession removes the persisted session.
	ClearSession(ctx context.Context) error

	// Lifecycle
	Close() error
}
