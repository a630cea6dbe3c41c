package ticketing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/orchestrator/internal/domain"
)

// MockGateway is an in-memory Gateway implementation for local development
// and tests.
type MockGateway struct {
	mu       sync.Mutex
	counter  int
	Created  []domain.CreatedRecord
	failNext int
}

// NewMockGateway creates a new mock gateway with a small fixed catalog.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Ensure MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)

// FailNext makes the next n CreateRecord calls fail with ErrToolUnavailable.
func (m *MockGateway) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// ListOfferings returns the mock catalog.
func (m *MockGateway) ListOfferings(ctx context.Context) ([]domain.Offering, error) {
	return []domain.Offering{
		{OfferingID: "off_hardware", Name: "Hardware Request", Description: "Request a laptop, monitor or peripheral"},
		{OfferingID: "off_software", Name: "Software Access", Description: "Request access to a software product"},
		{OfferingID: "off_facilities", Name: "Facilities Request", Description: "Report or request a facilities change"},
	}, nil
}

// GetFieldSchema returns the mock schema for an offering.
func (m *MockGateway) GetFieldSchema(ctx context.Context, offeringID string) (*domain.OfferingSchema, error) {
	switch offeringID {
	case "off_hardware":
		return &domain.OfferingSchema{
			OfferingID: offeringID,
			Fields: []domain.FieldSpec{
				{Name: "requested_for", Label: "Requested for", Required: true, Type: "reference"},
				{Name: "subject", Label: "Subject", Required: true, Type: "text"},
				{Name: "category", Label: "Category", Required: true, Type: "choice", Options: []domain.FieldOption{
					{Value: "Laptop", RecordID: "cat_1"},
					{Value: "Monitor", RecordID: "cat_2"},
					{Value: "Peripheral", RecordID: "cat_3"},
				}},
				{Name: "notes", Label: "Notes", Required: false, Type: "text"},
			},
		}, nil
	case "off_software", "off_facilities":
		return &domain.OfferingSchema{
			OfferingID: offeringID,
			Fields: []domain.FieldSpec{
				{Name: "requested_for", Label: "Requested for", Required: true, Type: "reference"},
				{Name: "subject", Label: "Subject", Required: true, Type: "text"},
				{Name: "notes", Label: "Notes", Required: false, Type: "text"},
			},
		}, nil
	}
	return nil, fmt.Errorf("offering %s not found", offeringID)
}

// CreateRecord records the submission and returns a generated record number.
func (m *MockGateway) CreateRecord(ctx context.Context, offeringID string, values domain.FieldValues) (*domain.CreatedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext > 0 {
		m.failNext--
		return nil, fmt.Errorf("%w: mock transient failure", domain.ErrToolUnavailable)
	}

	m.counter++
	record := domain.CreatedRecord{
		RecordID:     "rec_" + uuid.New().String()[:8],
		RecordNumber: fmt.Sprintf("SR%d", 100+m.counter-1),
	}
	m.Created = append(m.Created, record)

	// Simulate a slow backend call under contention tests.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}

	return &record, nil
}

// WhoAmI returns a fixed development identity.
func (m *MockGateway) WhoAmI(ctx context.Context) (*domain.Identity, error) {
	return &domain.Identity{
		SubjectID:   "u1",
		DisplayName: "Dev User",
		Roles:       []string{"requester"},
		Teams:       []string{"IT"},
	}, nil
}

// Probe always succeeds on the mock.
func (m *MockGateway) Probe(ctx context.Context) error {
	return nil
}
