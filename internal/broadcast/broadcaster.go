// Package broadcast fans orchestrator events out to attached UI surfaces.
package broadcast

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/deskflow/orchestrator/internal/domain"
)

const subscriberBuffer = 16

// Broadcaster delivers per-channel events to subscribers. A subscriber that
// cannot keep up has events dropped rather than blocking the publisher.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.Event]struct{} // channelID -> subscribers
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[chan domain.Event]struct{}),
	}
}

// Subscribe attaches a subscriber to a channel. The returned cancel func
// detaches it and closes the event stream.
func (b *Broadcaster) Subscribe(channelID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[channelID] == nil {
		b.subs[channelID] = make(map[chan domain.Event]struct{})
	}
	b.subs[channelID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[channelID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, channelID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of a channel.
func (b *Broadcaster) Publish(channelID string, eventType domain.EventType, payload interface{}) {
	event := domain.Event{
		Type:      eventType,
		ChannelID: channelID,
		Ts:        time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("ERROR: failed to marshal %s payload: %v", eventType, err)
		} else {
			event.Payload = data
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channelID] {
		select {
		case ch <- event:
		default:
			log.Printf("WARN: dropping %s event for slow subscriber on channel %s", eventType, channelID)
		}
	}
}

// BroadcastAll delivers an event to every subscriber of every channel.
// Used for session lifecycle transitions that affect all UI surfaces.
func (b *Broadcaster) BroadcastAll(eventType domain.EventType, payload interface{}) {
	b.mu.RLock()
	channelIDs := make([]string, 0, len(b.subs))
	for id := range b.subs {
		channelIDs = append(channelIDs, id)
	}
	b.mu.RUnlock()

	for _, id := range channelIDs {
		b.Publish(id, eventType, payload)
	}
}
