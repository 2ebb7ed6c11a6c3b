// Package bus is a small in-process pub/sub used to announce orchestration
// state changes to observers (status displays, logging taps).
package bus

import (
	"sync"
)

// EventType names a category of orchestration event.
type EventType string

const (
	// Conversation events
	EventTypePhaseChanged   EventType = "conversation.phase_changed"
	EventTypeTopicChanged   EventType = "conversation.topic_changed"
	EventTypeEmotionChanged EventType = "conversation.emotion_changed"

	// Memory events
	EventTypeMemoryRetrievalStarted EventType = "memory.retrieval_started"
	EventTypeMemoryRetrieved        EventType = "memory.retrieved"

	// Queue events
	EventTypeMessageQueued EventType = "queue.message_queued"
	EventTypeMessageSent   EventType = "queue.message_sent"

	// Session events
	EventTypeSessionInterrupted EventType = "session.interrupted"
	EventTypeTurnComplete       EventType = "session.turn_complete"
)

// Event carries one notification. Data keys are event-type specific.
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler receives published events.
type Handler func(Event)

// EventBus fans events out to subscribed handlers. Delivery is asynchronous
// and unordered; handlers must not rely on seeing events in publish order.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type. There is no unsubscribe;
// subscriptions live for the life of the bus.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple registers one handler for several event types at once.
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish delivers the event to every subscribed handler, each on its own
// goroutine so a slow observer never stalls the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
