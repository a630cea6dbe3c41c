package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskflow/orchestrator/internal/adapter/llm"
	"github.com/deskflow/orchestrator/internal/broadcast"
	"github.com/deskflow/orchestrator/internal/config"
	"github.com/deskflow/orchestrator/internal/conversation"
	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/policy"
)

// fakeSessions stands in for the session lifecycle manager.
type fakeSessions struct {
	mu      sync.Mutex
	session *domain.Session
}

func (f *fakeSessions) set(s *domain.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

func (f *fakeSessions) LiveSession() *domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeSessions) ResolveIdentity(ctx context.Context, hint string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, domain.ErrIdentityUnresolved
	}
	return f.session, nil
}

// fakeGateway is a scriptable ticketing gateway: the first N calls of an
// operation can be made to fail transiently, and record creation can be
// gated to hold a commit in flight.
type fakeGateway struct {
	mu          sync.Mutex
	listFails   int
	schemaFails int
	createFails int

	listCalls   int
	schemaCalls int
	createCalls int
	created     []domain.CreatedRecord

	createGate chan struct{} // when non-nil, CreateRecord blocks until closed
}

func transientErr(op string) error {
	return fmt.Errorf("%w: %s", domain.ErrToolUnavailable, op)
}

func (g *fakeGateway) ListOfferings(ctx context.Context) ([]domain.Offering, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listFails > 0 {
		g.listFails--
		return nil, transientErr("list_offerings")
	}
	return append([]domain.Offering(nil), testCatalog...), nil
}

func (g *fakeGateway) GetFieldSchema(ctx context.Context, offeringID string) (*domain.OfferingSchema, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.schemaCalls++
	if g.schemaFails > 0 {
		g.schemaFails--
		return nil, transientErr("get_field_schema")
	}
	if offeringID == "off_hardware" {
		return testSchema, nil
	}
	return &domain.OfferingSchema{
		OfferingID: offeringID,
		Fields: []domain.FieldSpec{
			{Name: "requested_for", Label: "Requested for", Required: true, Type: "reference"},
			{Name: "subject", Label: "Subject", Required: true, Type: "text"},
		},
	}, nil
}

func (g *fakeGateway) CreateRecord(ctx context.Context, offeringID string, values domain.FieldValues) (*domain.CreatedRecord, error) {
	g.mu.Lock()
	g.createCalls++
	if g.createFails > 0 {
		g.createFails--
		g.mu.Unlock()
		return nil, transientErr("create_record")
	}
	gate := g.createGate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	record := domain.CreatedRecord{
		RecordID:     fmt.Sprintf("rec_%d", len(g.created)+1),
		RecordNumber: fmt.Sprintf("SR%d", 100+len(g.created)),
	}
	g.created = append(g.created, record)
	return &record, nil
}

func (g *fakeGateway) WhoAmI(ctx context.Context) (*domain.Identity, error) {
	return &domain.Identity{SubjectID: "u1", DisplayName: "Dev User", Roles: []string{"requester"}}, nil
}

func (g *fakeGateway) Probe(ctx context.Context) error { return nil }

func (g *fakeGateway) calls() (list, schema, create int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls, g.schemaCalls, g.createCalls
}

// harness wires an orchestrator against the fakes.
type harness struct {
	orch     *Orchestrator
	gw       *fakeGateway
	llm      *llm.MockClient
	sessions *fakeSessions
	registry *conversation.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sess := &fakeSessions{session: &domain.Session{
		SessionID: "ses_1",
		Identity:  domain.Identity{SubjectID: "u1", DisplayName: "Dev User", Roles: []string{"requester"}},
	}}
	registry := conversation.NewRegistry(sess.LiveSession)
	gw := &fakeGateway{}
	mockLLM := llm.NewMockClient()

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := &config.Config{
		ToolTimeout:    time.Second,
		LLMTimeout:     time.Second,
		ToolMaxRetries: 3,
		RetryBackoff:   time.Millisecond,
		LLMModel:       "mock",
	}

	o := New(sess, registry, gw, mockLLM, engine, broadcast.New(), cfg)
	o.sleep = func(time.Duration) {} // no real backoff in tests

	return &harness{orch: o, gw: gw, llm: mockLLM, sessions: sess, registry: registry}
}

// toFieldset drives a channel to FIELDSET_SHOWN for the hardware offering.
func (h *harness) toFieldset(t *testing.T, channelID string) {
	t.Helper()
	ctx := context.Background()

	res, err := h.orch.HandleTurn(ctx, channelID, "I need to create a request")
	require.NoError(t, err)
	require.Equal(t, domain.StateCatalogShown, res.State)

	res, err = h.orch.HandleTurn(ctx, channelID, "Hardware Request")
	require.NoError(t, err)
	require.Equal(t, domain.StateFieldsetShown, res.State)
}

// fillRequired supplies the remaining required hardware fields.
func (h *harness) fillRequired(t *testing.T, channelID string) {
	t.Helper()

	res, err := h.orch.HandleTurn(context.Background(), channelID, "subject: replacement laptop; category: Laptop")
	require.NoError(t, err)
	require.Equal(t, domain.StateFieldsetShown, res.State)
	require.Empty(t, res.MissingFields)
}
