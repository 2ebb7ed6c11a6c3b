// Package queue buffers outbound virtual messages and releases at most one
// per eligible flush, honoring priority, type weight, recency, expiry, and a
// global cooldown.
package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// MessageType classifies a queued message by intent.
type MessageType string

const (
	TypeEmpathy    MessageType = "EMPATHY"
	TypeDirective  MessageType = "DIRECTIVE"
	TypeContext    MessageType = "CONTEXT"
	TypeCheckpoint MessageType = "CHECKPOINT"

	// Extended coaching variants
	TypeListenFirst    MessageType = "LISTEN_FIRST"
	TypeAcceptStop     MessageType = "ACCEPT_STOP"
	TypeGentleRedirect MessageType = "GENTLE_REDIRECT"
	TypePushTinyStep   MessageType = "PUSH_TINY_STEP"
	TypeToneShift      MessageType = "TONE_SHIFT"
)

// Priority orders messages within the queue.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityWeights = map[Priority]int{
	PriorityUrgent: 4,
	PriorityHigh:   3,
	PriorityNormal: 2,
	PriorityLow:    1,
}

var typeWeights = map[MessageType]int{
	TypeEmpathy:        5,
	TypeListenFirst:    5,
	TypeAcceptStop:     4,
	TypeGentleRedirect: 4,
	TypePushTinyStep:   3,
	TypeToneShift:      3,
	TypeDirective:      3,
	TypeCheckpoint:     2,
	TypeContext:        1,
}

// Item is one pending outbound message. Content is fully rendered text ready
// to send. An item is eligible for sending iff now < ExpiresAt.
type Item struct {
	ID           string      `json:"id"`
	Type         MessageType `json:"type"`
	Priority     Priority    `json:"priority"`
	Content      string      `json:"content"`
	CreatedAt    time.Time   `json:"createdAt"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	RelatedTopic string      `json:"relatedTopic,omitempty"`
}

// SendFunc delivers one item. A non-nil error keeps the item queued for the
// next flush attempt.
type SendFunc func(item Item) error

// Config configures queue timing.
type Config struct {
	// Cooldown is the minimum time between two successful deliveries (default: 15s)
	Cooldown time.Duration
	// MessageTTL is how long an item may wait before being discarded unsent (default: 60s)
	MessageTTL time.Duration
}

// DefaultConfig returns sensible defaults for queue timing.
func DefaultConfig() Config {
	return Config{
		Cooldown:   15 * time.Second,
		MessageTTL: 60 * time.Second,
	}
}

// Queue is a priority/cooldown buffer of outbound messages.
type Queue struct {
	mu            sync.Mutex
	config        Config
	items         []Item
	send          SendFunc
	lastSent      *Item
	lastSentAt    time.Time
	cooldownUntil time.Time
	isSending     bool
	logger        zerolog.Logger
	timeProvider  func() time.Time // for testing
}

// New creates a queue that delivers items through send.
func New(config Config, send SendFunc, logger zerolog.Logger) *Queue {
	if config.Cooldown <= 0 {
		config.Cooldown = 15 * time.Second
	}
	if config.MessageTTL <= 0 {
		config.MessageTTL = 60 * time.Second
	}

	return &Queue{
		config:       config,
		send:         send,
		logger:       logger.With().Str("component", "message-queue").Logger(),
		timeProvider: time.Now,
	}
}

// Enqueue stamps the item's ID, creation time, and expiry, appends it, and
// re-sorts the whole queue. A full re-sort on every enqueue is acceptable
// because the queue stays in the single digits. Returns the stamped item.
func (q *Queue) Enqueue(item Item) Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.timeProvider()
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.ExpiresAt.IsZero() {
		item.ExpiresAt = item.CreatedAt.Add(q.config.MessageTTL)
	}

	q.items = append(q.items, item)
	q.sortLocked()

	q.logger.Debug().
		Str("id", item.ID).
		Str("type", string(item.Type)).
		Str("priority", string(item.Priority)).
		Int("queueSize", len(q.items)).
		Msg("Message enqueued")

	return item
}

// sortLocked orders items by priority weight desc, type weight desc, creation
// time asc. Caller must hold the lock.
func (q *Queue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		a, b := q.items[i], q.items[j]
		if pw := priorityWeights[a.Priority] - priorityWeights[b.Priority]; pw != 0 {
			return pw > 0
		}
		if tw := typeWeights[a.Type] - typeWeights[b.Type]; tw != 0 {
			return tw > 0
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// TryFlush purges expired items, then attempts to deliver the head of the
// queue. It returns true only if an item was delivered. During cooldown, or
// with an empty queue, it returns false without sending. On delivery failure
// the item stays at the head for the next attempt.
func (q *Queue) TryFlush() bool {
	q.mu.Lock()

	now := q.timeProvider()
	q.purgeExpiredLocked(now)

	if q.isSending || len(q.items) == 0 || now.Before(q.cooldownUntil) {
		q.mu.Unlock()
		return false
	}

	head := q.items[0]
	q.isSending = true
	q.mu.Unlock()

	err := q.send(head)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.isSending = false

	if err != nil {
		q.logger.Warn().Err(err).Str("id", head.ID).Msg("Message delivery failed, keeping item queued")
		return false
	}

	// Delivery succeeded: drop the item and open a fresh cooldown window.
	for i, it := range q.items {
		if it.ID == head.ID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	sent := head
	q.lastSent = &sent
	q.lastSentAt = q.timeProvider()
	q.cooldownUntil = q.lastSentAt.Add(q.config.Cooldown)

	q.logger.Info().
		Str("id", head.ID).
		Str("type", string(head.Type)).
		Int("queueSize", len(q.items)).
		Msg("Message sent")

	return true
}

// purgeExpiredLocked drops items whose expiry has passed. Expired items are
// never sent. Caller must hold the lock.
func (q *Queue) purgeExpiredLocked(now time.Time) {
	kept := q.items[:0]
	for _, it := range q.items {
		if now.Before(it.ExpiresAt) {
			kept = append(kept, it)
		} else {
			q.logger.Debug().Str("id", it.ID).Str("type", string(it.Type)).Msg("Message expired, dropped unsent")
		}
	}
	q.items = kept
}

// Remove drops one item by ID without sending it. Returns true if found.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the queue without sending.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Size returns the number of queued items, including any not yet purged.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Peek returns a copy of the current head without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Items returns a copy of the queue in send order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]Item, len(q.items))
	copy(items, q.items)
	return items
}

// LastSent returns a copy of the most recently delivered item, if any.
func (q *Queue) LastSent() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastSent == nil {
		return Item{}, false
	}
	return *q.lastSent, true
}

// InCooldown reports whether the queue is inside its post-send cooldown.
func (q *Queue) InCooldown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timeProvider().Before(q.cooldownUntil)
}
