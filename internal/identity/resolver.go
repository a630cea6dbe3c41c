// Package identity resolves the authenticated user for a session.
package identity

import (
	"context"

	"github.com/deskflow/orchestrator/internal/domain"
)

// Resolver resolves an authenticated identity from an optional hint
// (e.g. a tab or context identifier supplied by the UI surface).
// Returns domain.ErrIdentityUnresolved when no identity can be produced;
// callers must treat that as a normal state, not an exception.
type Resolver interface {
	Resolve(ctx context.Context, hint string) (*domain.Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, hint string) (*domain.Identity, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, hint string) (*domain.Identity, error) {
	return f(ctx, hint)
}
