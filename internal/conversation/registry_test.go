package conversation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/orchestrator/internal/domain"
)

// sessionStub lets tests swap the live session mid-flight, the way the
// lifecycle manager does on logout and login.
type sessionStub struct {
	mu      sync.Mutex
	current *domain.Session
}

func (s *sessionStub) set(session *domain.Session) {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()
}

func (s *sessionStub) get() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func newTestRegistry() (*Registry, *sessionStub) {
	stub := &sessionStub{current: &domain.Session{SessionID: "ses_1"}}
	return NewRegistry(stub.get), stub
}

func TestWithChannelRequiresLiveSession(t *testing.T) {
	reg, stub := newTestRegistry()
	stub.set(nil)

	err := reg.WithChannel("tab-1", func(ch *domain.Channel) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNoLiveSession)
}

func TestWithChannelCreatesAndReuses(t *testing.T) {
	reg, _ := newTestRegistry()

	require.NoError(t, reg.Append("tab-1", domain.Message{Role: domain.RoleUser, Content: "hello"}))
	require.NoError(t, reg.Append("tab-1", domain.Message{Role: domain.RoleAssistant, Content: "hi"}))

	snap := reg.Snapshot("tab-1")
	require.NotNil(t, snap)
	assert.Equal(t, "ses_1", snap.SessionID)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, domain.StateIdle, snap.Draft.State)
}

func TestChannelsAreIsolated(t *testing.T) {
	reg, _ := newTestRegistry()

	require.NoError(t, reg.Append("tab-1", domain.Message{Role: domain.RoleUser, Content: "one"}))
	require.NoError(t, reg.Append("tab-2", domain.Message{Role: domain.RoleUser, Content: "two"}))

	one := reg.Snapshot("tab-1")
	two := reg.Snapshot("tab-2")
	require.Len(t, one.Messages, 1)
	require.Len(t, two.Messages, 1)
	assert.Equal(t, "one", one.Messages[0].Content)
	assert.Equal(t, "two", two.Messages[0].Content)
}

func TestStaleSessionChannelIsRecreated(t *testing.T) {
	reg, stub := newTestRegistry()

	require.NoError(t, reg.Append("tab-1", domain.Message{Role: domain.RoleUser, Content: "old identity secret"}))

	// Logout then login under a new session id, same UI surface.
	stub.set(&domain.Session{SessionID: "ses_2"})

	err := reg.WithChannel("tab-1", func(ch *domain.Channel) error {
		// No history from the previous identity may be visible.
		if len(ch.Messages) != 0 {
			t.Fatalf("stale history leaked across sessions: %v", ch.Messages)
		}
		assert.Equal(t, "ses_2", ch.SessionID)
		assert.Equal(t, domain.StateIdle, ch.Draft.State)
		return nil
	})
	require.NoError(t, err)
}

func TestClearAllWipesHistories(t *testing.T) {
	reg, _ := newTestRegistry()

	require.NoError(t, reg.Append("tab-1", domain.Message{Role: domain.RoleUser, Content: "a"}))
	require.NoError(t, reg.Append("tab-2", domain.Message{Role: domain.RoleUser, Content: "b"}))

	reg.ClearAll()

	assert.Nil(t, reg.Snapshot("tab-1"))
	assert.Nil(t, reg.Snapshot("tab-2"))
}

func TestSnapshotNeverCreates(t *testing.T) {
	reg, _ := newTestRegistry()
	assert.Nil(t, reg.Snapshot("missing"))
}

func TestSnapshotIsACopy(t *testing.T) {
	reg, _ := newTestRegistry()
	require.NoError(t, reg.Append("tab-1", domain.Message{Role: domain.RoleUser, Content: "original"}))

	snap := reg.Snapshot("tab-1")
	snap.Messages[0].Content = "mutated"
	snap.Draft.State = domain.StateCompleted

	again := reg.Snapshot("tab-1")
	assert.Equal(t, "original", again.Messages[0].Content)
	assert.Equal(t, domain.StateIdle, again.Draft.State)
}

func TestDiscardAbandonsDraft(t *testing.T) {
	reg, _ := newTestRegistry()

	var held *domain.Channel
	require.NoError(t, reg.WithChannel("tab-1", func(ch *domain.Channel) error {
		ch.Draft.State = domain.StateFieldsetShown
		held = ch
		return nil
	}))

	reg.Discard("tab-1")

	// The in-flight reference observes the terminal state.
	assert.Equal(t, domain.StateAbandoned, held.Draft.State)
	assert.Nil(t, reg.Snapshot("tab-1"))
}

func TestWithChannelPropagatesError(t *testing.T) {
	reg, _ := newTestRegistry()
	boom := errors.New("boom")

	err := reg.WithChannel("tab-1", func(ch *domain.Channel) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestTurnsOnOneChannelAreSerialized(t *testing.T) {
	reg, _ := newTestRegistry()

	var active, maxActive, total int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.WithChannel("tab-1", func(ch *domain.Channel) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				total++
				mu.Unlock()

				ch.Messages = append(ch.Messages, domain.Message{Role: domain.RoleUser})

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "turns on one channel must not overlap")
	assert.Equal(t, 16, total)
	assert.Len(t, reg.Snapshot("tab-1").Messages, 16)
}
