package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/orchestrator/internal/domain"
)

func receive(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return domain.Event{}
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := New()
	events, cancel := b.Subscribe("tab-1")
	defer cancel()

	b.Publish("tab-1", domain.EventTypeMessageReceived, domain.MessageReceivedPayload{
		Role:    domain.RoleAssistant,
		Content: "hello",
	})

	event := receive(t, events)
	assert.Equal(t, domain.EventTypeMessageReceived, event.Type)
	assert.Equal(t, "tab-1", event.ChannelID)

	var payload domain.MessageReceivedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "hello", payload.Content)
}

func TestPublishScopedToChannel(t *testing.T) {
	b := New()
	one, cancelOne := b.Subscribe("tab-1")
	defer cancelOne()
	two, cancelTwo := b.Subscribe("tab-2")
	defer cancelTwo()

	b.Publish("tab-1", domain.EventTypeMessageReceived, nil)

	receive(t, one)
	select {
	case event := <-two:
		t.Fatalf("unexpected event on other channel: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastAllReachesEveryChannel(t *testing.T) {
	b := New()
	one, cancelOne := b.Subscribe("tab-1")
	defer cancelOne()
	two, cancelTwo := b.Subscribe("tab-2")
	defer cancelTwo()

	b.BroadcastAll(domain.EventTypeSessionEnded, nil)

	assert.Equal(t, domain.EventTypeSessionEnded, receive(t, one).Type)
	assert.Equal(t, domain.EventTypeSessionEnded, receive(t, two).Type)
}

func TestCancelClosesStream(t *testing.T) {
	b := New()
	events, cancel := b.Subscribe("tab-1")

	cancel()
	_, ok := <-events
	assert.False(t, ok)

	// Publishing after cancel must not panic or block.
	b.Publish("tab-1", domain.EventTypeMessageReceived, nil)

	// Cancel is idempotent.
	cancel()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	events, cancel := b.Subscribe("tab-1")
	defer cancel()

	// Overflow the buffer; Publish must never block the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish("tab-1", domain.EventTypeMessageReceived, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The buffered events are still there; the overflow was dropped.
	count := 0
	for {
		select {
		case <-events:
			count++
		default:
			assert.Equal(t, subscriberBuffer, count)
			return
		}
	}
}
