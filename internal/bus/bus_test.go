package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var got []Event
	b.Subscribe(EventTypeTopicChanged, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeTopicChanged, Data: map[string]any{"topic": "work"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "work", got[0].Data["topic"])
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	calls := 0
	b.Subscribe(EventTypeEmotionChanged, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeTopicChanged})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls, "handler must only see its own event type")
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var seen []EventType
	b.SubscribeMultiple([]EventType{EventTypeMessageQueued, EventTypeMessageSent}, func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeMessageQueued})
	b.Publish(Event{Type: EventTypeMessageSent})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []EventType{EventTypeMessageQueued, EventTypeMessageSent}, seen)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := NewEventBus()
	// Must not panic or block.
	b.Publish(Event{Type: EventTypeTurnComplete})
}
