// Package ticketing provides an abstraction for the ticketing backend that
// the orchestrator calls as grounded tools.
package ticketing

import (
	"context"

	"github.com/deskflow/orchestrator/internal/domain"
)

// Gateway defines the tool operations against the ticketing backend.
type Gateway interface {
	// ListOfferings retrieves the requestable catalog.
	ListOfferings(ctx context.Context) ([]domain.Offering, error)

	// GetFieldSchema retrieves the declared field schema for an offering.
	GetFieldSchema(ctx context.Context, offeringID string) (*domain.OfferingSchema, error)

	// CreateRecord submits a service request. Only the commit step calls this.
	CreateRecord(ctx context.Context, offeringID string, values domain.FieldValues) (*domain.CreatedRecord, error)

	// WhoAmI returns the identity the backend associates with the current
	// credentials. Returns domain.ErrUnauthorized when not authenticated.
	WhoAmI(ctx context.Context) (*domain.Identity, error)

	// Probe checks auth liveness against the backend. Returns
	// domain.ErrUnauthorized when the backend no longer accepts the
	// credentials; the probe detector treats that as an implicit logout.
	Probe(ctx context.Context) error
}

// Ensure Client implements Gateway.
var _ Gateway = (*Client)(nil)
