package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/deskflow/orchestrator/internal/adapter/ticketing"
	"github.com/deskflow/orchestrator/internal/domain"
)

// Chain tries each resolver in order, strongest first, and returns the
// first identity produced. Unauthorized and unresolved outcomes fall
// through to the next strategy; any other error aborts the chain.
type Chain struct {
	resolvers []Resolver
}

// NewChain creates a resolver chain.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Ensure Chain implements Resolver.
var _ Resolver = (*Chain)(nil)

// Resolve implements Resolver.
func (c *Chain) Resolve(ctx context.Context, hint string) (*domain.Identity, error) {
	for _, r := range c.resolvers {
		identity, err := r.Resolve(ctx, hint)
		if err == nil {
			return identity, nil
		}
		if errors.Is(err, domain.ErrIdentityUnresolved) || errors.Is(err, domain.ErrUnauthorized) {
			continue
		}
		return nil, err
	}
	return nil, domain.ErrIdentityUnresolved
}

// GatewayResolver resolves identity from the ticketing backend's /me
// endpoint. This is the strongest strategy: the backend is the source of
// truth for who the credentials belong to.
type GatewayResolver struct {
	gateway ticketing.Gateway
}

// NewGatewayResolver creates a resolver backed by the ticketing gateway.
func NewGatewayResolver(gateway ticketing.Gateway) *GatewayResolver {
	return &GatewayResolver{gateway: gateway}
}

// Ensure GatewayResolver implements Resolver.
var _ Resolver = (*GatewayResolver)(nil)

// Resolve implements Resolver.
func (r *GatewayResolver) Resolve(ctx context.Context, hint string) (*domain.Identity, error) {
	identity, err := r.gateway.WhoAmI(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v", domain.ErrIdentityUnresolved, err)
		}
		return nil, err
	}
	return identity, nil
}

// EnvResolver is the weakest strategy: a development fallback that reads a
// fixed identity from DESKFLOW_SUBJECT/DESKFLOW_DISPLAY_NAME. Disabled
// unless DESKFLOW_SUBJECT is set.
type EnvResolver struct{}

// NewEnvResolver creates the environment fallback resolver.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

// Ensure EnvResolver implements Resolver.
var _ Resolver = (*EnvResolver)(nil)

// Resolve implements Resolver.
func (r *EnvResolver) Resolve(ctx context.Context, hint string) (*domain.Identity, error) {
	subject := os.Getenv("DESKFLOW_SUBJECT")
	if subject == "" {
		return nil, domain.ErrIdentityUnresolved
	}
	log.Printf("WARN: resolved identity %s from environment fallback", subject)
	identity := &domain.Identity{
		SubjectID:   subject,
		DisplayName: os.Getenv("DESKFLOW_DISPLAY_NAME"),
	}
	if roles := os.Getenv("DESKFLOW_ROLES"); roles != "" {
		identity.Roles = strings.Split(roles, ",")
	}
	return identity, nil
}
