// Package conversation maps channel identifiers to message histories.
//
// A channel is one UI surface (e.g. one browser tab). Histories are wiped
// on logout and recreated under the new session id on login, so messages
// never leak across identities.
package conversation

import (
	"log"
	"sync"
	"time"

	"github.com/deskflow/orchestrator/internal/domain"
)

// SessionFunc reports the live session, or nil when none.
// Injected by the session lifecycle manager to avoid a package cycle.
type SessionFunc func() *domain.Session

// Registry owns all conversation channels. Histories are memory-only; the
// durable store mirrors the session and nothing else.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*entry
	session  SessionFunc
}

// entry wraps a channel with its turn-ordering lock. The lock is held for
// the duration of one turn, so turns on a single channel are processed
// strictly in arrival order while other channels interleave freely.
type entry struct {
	mu      sync.Mutex
	channel *domain.Channel
}

// NewRegistry creates an empty registry.
func NewRegistry(session SessionFunc) *Registry {
	return &Registry{
		channels: make(map[string]*entry),
		session:  session,
	}
}

// WithChannel runs fn with exclusive access to the channel, creating it if
// absent. If the existing channel was created under a different session id
// than the live session, it is discarded and replaced with a fresh empty
// channel first — this is what prevents one identity's history from being
// shown to another identity reusing the same UI surface.
func (r *Registry) WithChannel(channelID string, fn func(*domain.Channel) error) error {
	live := r.session()
	if live == nil {
		return domain.ErrNoLiveSession
	}

	r.mu.Lock()
	e, ok := r.channels[channelID]
	if !ok {
		e = &entry{channel: newChannel(channelID, live.SessionID)}
		r.channels[channelID] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Re-check the binding under the entry lock: the session may have
	// changed while we waited, or the entry may predate this login.
	if e.channel.SessionID != live.SessionID {
		log.Printf("INFO: channel %s bound to stale session %s, recreating under %s",
			channelID, e.channel.SessionID, live.SessionID)
		e.channel = newChannel(channelID, live.SessionID)
	}

	return fn(e.channel)
}

// Append appends a message to the channel's history. Requires a live
// session; histories are append-only and never trimmed here.
func (r *Registry) Append(channelID string, message domain.Message) error {
	return r.WithChannel(channelID, func(ch *domain.Channel) error {
		ch.Messages = append(ch.Messages, message)
		return nil
	})
}

// Snapshot returns a copy of the channel's current state, or nil if the
// channel does not exist. Unlike WithChannel it never creates a channel.
func (r *Registry) Snapshot(channelID string) *domain.Channel {
	r.mu.Lock()
	e, ok := r.channels[channelID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.channel
	cp.Messages = append([]domain.Message(nil), e.channel.Messages...)
	return &cp
}

// Clear removes the channel. Used by the lifecycle manager on logout.
func (r *Registry) Clear(channelID string) {
	r.mu.Lock()
	delete(r.channels, channelID)
	r.mu.Unlock()
}

// ClearAll removes every channel. Used by the lifecycle manager on logout.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.channels = make(map[string]*entry)
	r.mu.Unlock()
}

// Discard releases a channel when its UI surface closes. The draft is
// marked abandoned so an in-flight reference observes the terminal state.
func (r *Registry) Discard(channelID string) {
	r.mu.Lock()
	e, ok := r.channels[channelID]
	delete(r.channels, channelID)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if !e.channel.Draft.State.IsTerminal() {
		e.channel.Draft.State = domain.StateAbandoned
	}
	e.mu.Unlock()
}

func newChannel(channelID, sessionID string) *domain.Channel {
	return &domain.Channel{
		ChannelID: channelID,
		SessionID: sessionID,
		Draft: domain.DraftState{
			State:  domain.StateIdle,
			Values: make(domain.FieldValues),
		},
		CreatedAt: time.Now(),
	}
}
