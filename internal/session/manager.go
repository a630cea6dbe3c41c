// Package session owns the process-wide session lifecycle.
//
// The Manager is the single writer of session state: login/logout signals
// from all detectors funnel into OnIdentitySignal, and every other
// component reads the session through LiveSession.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/internal/identity"
	"github.com/deskflow/orchestrator/internal/store"
)

// registry is the slice of the conversation registry the manager needs.
type registry interface {
	ClearAll()
}

// broadcaster is the slice of the event fanout the manager needs.
type broadcaster interface {
	BroadcastAll(eventType domain.EventType, payload interface{})
}

// Manager owns the session store and broadcasts identity transitions to
// all UI surfaces.
type Manager struct {
	mu        sync.Mutex
	current   *domain.Session
	triedDisk bool // durable fallback is attempted once per process

	// logoutInProgress makes concurrent duplicate logout signals no-op
	// instead of double-clearing or double-broadcasting. It is the one
	// piece of cross-channel mutual exclusion in the system.
	logoutInProgress atomic.Bool

	store       store.Store
	resolver    identity.Resolver
	registry    registry
	broadcaster broadcaster

	storeTimeout time.Duration
}

// NewManager creates a session lifecycle manager.
func NewManager(st store.Store, resolver identity.Resolver, reg registry, bc broadcaster) *Manager {
	return &Manager{
		store:        st,
		resolver:     resolver,
		registry:     reg,
		broadcaster:  bc,
		storeTimeout: 5 * time.Second,
	}
}

// OnIdentitySignal handles a login or logout signal. Idempotent: duplicate
// logout signals from independent detectors are swallowed, and a login
// signal is only honored when no session is live.
func (m *Manager) OnIdentitySignal(ctx context.Context, signal domain.Signal) error {
	switch signal.Kind {
	case domain.SignalLogout:
		m.handleLogout(signal.Source)
		return nil
	case domain.SignalLogin:
		if m.LiveSession() != nil {
			log.Printf("INFO: login signal from %s ignored, session already live", signal.Source)
			return nil
		}
		_, err := m.startSession(ctx, signal.Hint)
		if err != nil && !errors.Is(err, domain.ErrIdentityUnresolved) {
			return err
		}
		return nil
	}
	log.Printf("WARN: unknown identity signal kind %q from %s", signal.Kind, signal.Source)
	return nil
}

// LiveSession returns the live session, or nil. In-memory state is
// authoritative; when memory is empty the durable store is consulted once
// per process so a restart recovers the last known session.
func (m *Manager) LiveSession() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current
	}
	if m.triedDisk {
		return nil
	}
	m.triedDisk = true

	ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
	defer cancel()
	recovered, err := m.store.LoadSession(ctx)
	if err != nil {
		log.Printf("ERROR: failed to load persisted session: %v", err)
		return nil
	}
	if recovered != nil {
		log.Printf("INFO: recovered session %s from durable store", recovered.SessionID)
		m.current = recovered
	}
	return m.current
}

// ResolveIdentity resolves identity on demand, for callers that need a
// session before any signal has fired. Losing identity unexpectedly is
// never silently ignored: a resolution failure while a session was live is
// treated as an implicit logout.
func (m *Manager) ResolveIdentity(ctx context.Context, hint string) (*domain.Session, error) {
	if live := m.LiveSession(); live != nil {
		return live, nil
	}

	session, err := m.startSession(ctx, hint)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RevalidateLiveness re-runs identity resolution as a backup logout
// detector. A resolution failure while a session is live is an implicit
// logout; success or transient errors leave the session untouched.
func (m *Manager) RevalidateLiveness(ctx context.Context) {
	if m.LiveSession() == nil {
		return
	}
	_, err := m.resolver.Resolve(ctx, "")
	if errors.Is(err, domain.ErrIdentityUnresolved) {
		log.Printf("INFO: liveness check lost identity, treating as logout")
		m.handleLogout("liveness")
	} else if err != nil {
		log.Printf("WARN: liveness check failed transiently: %v", err)
	}
}

// handleLogout transitions the session to absent: memory first, then the
// durable mirror, then conversation history, then exactly one broadcast.
func (m *Manager) handleLogout(source string) {
	if !m.logoutInProgress.CompareAndSwap(false, true) {
		log.Printf("INFO: duplicate logout signal from %s swallowed", source)
		return
	}
	defer m.logoutInProgress.Store(false)

	m.mu.Lock()
	wasLive := m.current != nil
	m.current = nil
	// A cleared session must stay cleared: the durable fallback would
	// otherwise resurrect it on the next read.
	m.triedDisk = true
	m.mu.Unlock()

	// Durable clear is best effort. In-memory state is the source of
	// truth; a failed mirror write only risks a stale restart recovery.
	ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
	defer cancel()
	if err := m.store.ClearSession(ctx); err != nil {
		log.Printf("ERROR: failed to clear persisted session: %v", err)
	}

	m.registry.ClearAll()

	if wasLive {
		log.Printf("INFO: session ended (source=%s)", source)
		m.broadcaster.BroadcastAll(domain.EventTypeSessionEnded, nil)
	}
}

// startSession resolves identity and establishes a new session with a
// fresh session id. The fresh id is what invalidates stale per-channel
// history without cross-component locking.
func (m *Manager) startSession(ctx context.Context, hint string) (*domain.Session, error) {
	resolved, err := m.resolver.Resolve(ctx, hint)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityUnresolved) {
			log.Printf("INFO: identity resolution produced no session")
			return nil, domain.ErrIdentityUnresolved
		}
		return nil, err
	}

	session := &domain.Session{
		Identity:      *resolved,
		SessionID:     "ses_" + uuid.New().String(),
		EstablishedAt: time.Now(),
	}

	m.mu.Lock()
	m.current = session
	m.triedDisk = true
	m.mu.Unlock()

	persistCtx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
	defer cancel()
	if err := m.store.SaveSession(persistCtx, session); err != nil {
		log.Printf("ERROR: failed to persist session %s: %v", session.SessionID, err)
	}

	log.Printf("INFO: session %s started for subject %s", session.SessionID, session.Identity.SubjectID)
	m.broadcaster.BroadcastAll(domain.EventTypeSessionStarted, domain.SessionStartedPayload{
		SessionID: session.SessionID,
	})
	return session, nil
}
