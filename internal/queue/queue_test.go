package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestQueue(t *testing.T, cfg Config, send SendFunc) *Queue {
	t.Helper()
	if send == nil {
		send = func(Item) error { return nil }
	}
	return New(cfg, send, zerolog.Nop())
}

func TestQueue_EnqueueStampsFields(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)

	item := q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "hello"})

	if item.ID == "" {
		t.Error("expected ID to be stamped")
	}
	if item.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}
	if !item.ExpiresAt.Equal(item.CreatedAt.Add(60 * time.Second)) {
		t.Errorf("expected default 60s TTL, got %v", item.ExpiresAt.Sub(item.CreatedAt))
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)

	q.Enqueue(Item{Type: TypeContext, Priority: PriorityLow, Content: "low"})
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityUrgent, Content: "urgent"})
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "normal"})

	head, ok := q.Peek()
	if !ok {
		t.Fatal("expected non-empty queue")
	}
	if head.Priority != PriorityUrgent {
		t.Errorf("expected urgent at head, got %s", head.Priority)
	}

	items := q.Items()
	if items[1].Priority != PriorityNormal || items[2].Priority != PriorityLow {
		t.Errorf("expected order [urgent normal low], got [%s %s %s]",
			items[0].Priority, items[1].Priority, items[2].Priority)
	}
}

func TestQueue_TypeWeightBreaksPriorityTies(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)

	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "context"})
	q.Enqueue(Item{Type: TypeEmpathy, Priority: PriorityNormal, Content: "empathy"})

	head, _ := q.Peek()
	if head.Type != TypeEmpathy {
		t.Errorf("expected empathy first within same priority, got %s", head.Type)
	}
}

func TestQueue_FIFOWithinSamePriorityAndType(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)

	now := time.Now()
	first := q.Enqueue(Item{Type: TypeEmpathy, Priority: PriorityUrgent, Content: "first", CreatedAt: now})
	q.Enqueue(Item{Type: TypeEmpathy, Priority: PriorityUrgent, Content: "second", CreatedAt: now.Add(time.Millisecond)})

	head, _ := q.Peek()
	if head.ID != first.ID {
		t.Errorf("expected FIFO order between equal items, got '%s' at head", head.Content)
	}
}

func TestQueue_ExpiredItemNeverSent(t *testing.T) {
	var sent []Item
	q := newTestQueue(t, DefaultConfig(), func(it Item) error {
		sent = append(sent, it)
		return nil
	})

	now := time.Now()
	q.Enqueue(Item{
		Type:      TypeContext,
		Priority:  PriorityNormal,
		Content:   "stale",
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-time.Millisecond),
	})

	if q.TryFlush() {
		t.Error("expected flush of expired-only queue to return false")
	}
	if len(sent) != 0 {
		t.Errorf("expected expired item never sent, got %d sends", len(sent))
	}
	if q.Size() != 0 {
		t.Errorf("expected expired item purged, size=%d", q.Size())
	}
}

func TestQueue_Cooldown(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, Config{Cooldown: 15 * time.Second}, nil)
	q.timeProvider = func() time.Time { return now }

	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "one"})
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "two"})

	if !q.TryFlush() {
		t.Fatal("expected first flush to deliver")
	}

	headBefore, _ := q.Peek()
	now = now.Add(5 * time.Second)
	if q.TryFlush() {
		t.Error("expected flush within cooldown to return false")
	}
	headAfter, _ := q.Peek()
	if headBefore.ID != headAfter.ID {
		t.Error("expected cooldown flush to leave the head untouched")
	}

	now = now.Add(11 * time.Second)
	if !q.TryFlush() {
		t.Error("expected flush after cooldown to deliver")
	}
}

func TestQueue_CooldownStartsFreshOnEachSend(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, Config{Cooldown: 10 * time.Second}, nil)
	q.timeProvider = func() time.Time { return now }

	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "one"})
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "two"})

	q.TryFlush()
	now = now.Add(10 * time.Second)
	if !q.TryFlush() {
		t.Fatal("expected second flush after full cooldown")
	}

	// Cooldown restarts from the second send, not the first
	now = now.Add(5 * time.Second)
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "three"})
	if q.TryFlush() {
		t.Error("expected cooldown to restart fresh on each send")
	}
}

func TestQueue_AtMostOneItemPerFlush(t *testing.T) {
	var sent int
	q := newTestQueue(t, DefaultConfig(), func(Item) error {
		sent++
		return nil
	})

	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "one"})
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "two"})

	q.TryFlush()
	if sent != 1 {
		t.Errorf("expected exactly one send per flush, got %d", sent)
	}
	if q.Size() != 1 {
		t.Errorf("expected 1 item remaining, got %d", q.Size())
	}
}

func TestQueue_DeliveryFailureKeepsItem(t *testing.T) {
	fail := true
	q := newTestQueue(t, DefaultConfig(), func(Item) error {
		if fail {
			return errors.New("session unavailable")
		}
		return nil
	})

	item := q.Enqueue(Item{Type: TypeEmpathy, Priority: PriorityUrgent, Content: "keep me"})

	if q.TryFlush() {
		t.Error("expected failed delivery to return false")
	}
	head, ok := q.Peek()
	if !ok || head.ID != item.ID {
		t.Error("expected failed item to stay at head of queue")
	}

	fail = false
	if !q.TryFlush() {
		t.Error("expected retry to deliver")
	}
	if q.Size() != 0 {
		t.Errorf("expected empty queue after retry, got %d", q.Size())
	}
}

func TestQueue_EmptyFlushReturnsFalse(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)
	if q.TryFlush() {
		t.Error("expected flush of empty queue to return false")
	}
}

func TestQueue_ClearAndRemove(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)

	a := q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "a"})
	q.Enqueue(Item{Type: TypeContext, Priority: PriorityNormal, Content: "b"})

	if !q.Remove(a.ID) {
		t.Error("expected Remove to find the item")
	}
	if q.Remove("missing") {
		t.Error("expected Remove of unknown ID to return false")
	}
	if q.Size() != 1 {
		t.Errorf("expected 1 item after remove, got %d", q.Size())
	}

	q.Clear()
	if q.Size() != 0 {
		t.Errorf("expected empty queue after clear, got %d", q.Size())
	}
}

func TestQueue_LastSent(t *testing.T) {
	q := newTestQueue(t, DefaultConfig(), nil)

	if _, ok := q.LastSent(); ok {
		t.Error("expected no lastSent before any delivery")
	}

	q.Enqueue(Item{Type: TypeCheckpoint, Priority: PriorityHigh, Content: "check in"})
	q.TryFlush()

	last, ok := q.LastSent()
	if !ok || last.Type != TypeCheckpoint {
		t.Errorf("expected lastSent checkpoint, got %v ok=%v", last.Type, ok)
	}
}
