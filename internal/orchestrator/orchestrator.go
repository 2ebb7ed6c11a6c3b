// Package orchestrator wires conversation tracking, detection, memory
// retrieval, and the message queue into an interrupt-or-queue policy over a
// live speech session.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/coachflow/internal/bus"
	"github.com/normanking/coachflow/internal/conversation"
	"github.com/normanking/coachflow/internal/detect"
	"github.com/normanking/coachflow/internal/memory"
	"github.com/normanking/coachflow/internal/queue"
)

// RoleSystem tags injected content so the AI treats it as context rather
// than a user utterance.
const RoleSystem = "system"

// SpeechSession is the live speech capability the orchestrator acts on.
// IsSpeaking must always be re-read at the moment of action: the decision to
// interrupt reflects current state, never state captured at dispatch time.
type SpeechSession interface {
	IsSpeaking() bool
	SendClientContent(content string, forceNewTurn bool, role string) error
}

// Options configures orchestrator policy.
type Options struct {
	// UserID identifies the user for memory retrieval; empty disables it.
	UserID string
	// EnableMemoryRetrieval gates the memory pipeline (default: true)
	EnableMemoryRetrieval bool
	// EmotionResponseThreshold is the minimum intensity that triggers an
	// empathy message (default: 0.6)
	EmotionResponseThreshold float64
	// ClassifyContextMessages is how many recent messages to send as
	// classification context (default: 6)
	ClassifyContextMessages int
}

// DefaultOptions returns sensible orchestration defaults.
func DefaultOptions() Options {
	return Options{
		EnableMemoryRetrieval:    true,
		EmotionResponseThreshold: 0.6,
		ClassifyContextMessages:  6,
	}
}

// PendingMemory describes an in-flight or just-completed retrieval, for
// UI/debug display only.
type PendingMemory struct {
	Topic string
	Count int
}

// Orchestrator is the control plane. It is the single writer to the
// conversation store: the detector and pipeline only return data for it to
// apply.
type Orchestrator struct {
	store    *conversation.Store
	detector *detect.Detector
	pipeline *memory.Pipeline
	queue    *queue.Queue
	session  SpeechSession
	events   *bus.EventBus
	logger   zerolog.Logger
	opts     Options

	mu        sync.Mutex
	epoch     uint64
	detecting bool
	pending   *PendingMemory
	lastPhase conversation.Phase
}

// New creates an Orchestrator over the given components. The queue's send
// callback must already be wired to the session's silent-injection path.
func New(
	store *conversation.Store,
	detector *detect.Detector,
	pipeline *memory.Pipeline,
	q *queue.Queue,
	session SpeechSession,
	events *bus.EventBus,
	logger zerolog.Logger,
	opts Options,
) *Orchestrator {
	if opts.EmotionResponseThreshold <= 0 {
		opts.EmotionResponseThreshold = 0.6
	}
	if opts.ClassifyContextMessages <= 0 {
		opts.ClassifyContextMessages = 6
	}
	if events == nil {
		events = bus.NewEventBus()
	}

	return &Orchestrator{
		store:     store,
		detector:  detector,
		pipeline:  pipeline,
		queue:     q,
		session:   session,
		events:    events,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		opts:      opts,
		lastPhase: conversation.PhaseIdle,
	}
}

// OnUserSpeech records a user utterance and dispatches detection
// asynchronously. It never blocks on the classification call.
func (o *Orchestrator) OnUserSpeech(text string) {
	o.store.AddUserMessage(text, false)

	o.mu.Lock()
	ep := o.epoch
	o.detecting = true
	contextN := o.opts.ClassifyContextMessages
	o.mu.Unlock()

	recent := o.store.RecentTranscript(contextN)

	go func() {
		res := o.detector.Detect(context.Background(), text, recent)
		o.applyDetection(ep, res)
	}()
}

// OnAISpeech records an assistant utterance. Context bookkeeping only.
func (o *Orchestrator) OnAISpeech(text string) {
	o.store.AddAIMessage(text, false)
}

// OnTurnComplete releases at most one queued message. This is the only place
// queued content leaves the queue: injection happens right after a turn
// boundary, never mid-utterance.
func (o *Orchestrator) OnTurnComplete() {
	o.events.Publish(bus.Event{Type: bus.EventTypeTurnComplete})

	if o.queue.TryFlush() {
		if sent, ok := o.queue.LastSent(); ok {
			o.events.Publish(bus.Event{Type: bus.EventTypeMessageSent, Data: map[string]any{
				"id":   sent.ID,
				"type": string(sent.Type),
			}})
		}
	}
}

// applyDetection applies one detection result. Late results from before a
// Reset are discarded by the epoch check; the whole application runs under
// the orchestrator lock so a concurrent Reset cannot interleave.
func (o *Orchestrator) applyDetection(ep uint64, res *detect.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ep != o.epoch {
		o.logger.Debug().Msg("Discarding detection result from before reset")
		return
	}
	o.detecting = false

	if res.EmotionalState.Primary != conversation.EmotionNeutral {
		o.store.UpdateEmotionalState(res.EmotionalState)
		o.events.Publish(bus.Event{Type: bus.EventTypeEmotionChanged, Data: map[string]any{
			"emotion":   string(res.EmotionalState.Primary),
			"intensity": res.EmotionalState.Intensity,
		}})

		if res.EmotionalState.Intensity >= o.opts.EmotionResponseThreshold {
			// Even urgent empathy goes through the queue: it outranks other
			// queued items but still waits for a turn boundary.
			item := o.queue.Enqueue(queue.Item{
				Type:     queue.TypeEmpathy,
				Priority: queue.PriorityUrgent,
				Content:  buildEmpathyMessage(o.store.Snapshot()),
			})
			o.events.Publish(bus.Event{Type: bus.EventTypeMessageQueued, Data: map[string]any{
				"id":   item.ID,
				"type": string(item.Type),
			}})
		}
	}

	if res.Topic == nil {
		o.publishPhaseIfChangedLocked()
		return
	}

	o.store.UpdateTopic(*res.Topic)
	o.publishPhaseIfChangedLocked()

	if !res.IsTopicChanged {
		return
	}
	o.events.Publish(bus.Event{Type: bus.EventTypeTopicChanged, Data: map[string]any{
		"topicId": res.Topic.ID,
		"topic":   res.Topic.Name,
	}})

	if o.opts.EnableMemoryRetrieval && o.opts.UserID != "" {
		// Topic detection already did the heavy keyword matching; the
		// retrieval request carries the seed questions instead.
		o.dispatchRetrievalLocked(ep, *res.Topic, nil, res.MemoryQuestions)
	}
}

// publishPhaseIfChangedLocked announces phase transitions. Caller must hold
// o.mu. The phase is derived inside the store; this only observes it.
func (o *Orchestrator) publishPhaseIfChangedLocked() {
	phase := o.store.Phase()
	if phase == o.lastPhase {
		return
	}
	prev := o.lastPhase
	o.lastPhase = phase
	o.events.Publish(bus.Event{Type: bus.EventTypePhaseChanged, Data: map[string]any{
		"from": string(prev),
		"to":   string(phase),
	}})
}

// dispatchRetrievalLocked starts an async retrieval. Caller must hold o.mu.
func (o *Orchestrator) dispatchRetrievalLocked(ep uint64, topic conversation.TopicInfo, keywords, seedQuestions []string) {
	o.pending = &PendingMemory{Topic: topic.Name}
	o.events.Publish(bus.Event{Type: bus.EventTypeMemoryRetrievalStarted, Data: map[string]any{
		"topic": topic.Name,
	}})

	summary := o.store.Snapshot().Summary
	userID := o.opts.UserID

	go func() {
		memories, ok := o.pipeline.FetchMemoriesForTopic(
			context.Background(), userID, topic.Name, keywords, summary, seedQuestions)
		if !ok {
			// Superseded: a newer retrieval owns the pending state.
			return
		}
		o.applyMemories(ep, topic, memories)
	}()
}

// applyMemories formats retrieved memories and either interrupts the live
// turn or queues the context message. The speaking check happens here, at
// the moment the memories arrive, not at the moment retrieval was requested.
func (o *Orchestrator) applyMemories(ep uint64, topic conversation.TopicInfo, memories []memory.RetrievalResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ep != o.epoch {
		o.logger.Debug().Msg("Discarding memory result from before reset")
		return
	}

	o.pending = &PendingMemory{Topic: topic.Name, Count: len(memories)}
	o.events.Publish(bus.Event{Type: bus.EventTypeMemoryRetrieved, Data: map[string]any{
		"topic": topic.Name,
		"count": len(memories),
	}})

	if len(memories) == 0 {
		// Silence is a common, acceptable outcome.
		o.pending = nil
		return
	}

	emotional := o.store.EmotionalState()
	content := memory.GenerateContextMessage(memories, topic.Name, emotional.Primary, emotional.Intensity)
	o.pending = nil
	if content == "" {
		return
	}

	if o.session.IsSpeaking() {
		// Interrupt path: the AI is mid-utterance, so waiting for a turn
		// boundary defeats the purpose. Bypasses the queue and its cooldown.
		if err := o.session.SendClientContent(content, true, RoleSystem); err != nil {
			o.logger.Error().Err(err).Msg("Interrupt injection failed")
			return
		}
		o.events.Publish(bus.Event{Type: bus.EventTypeSessionInterrupted, Data: map[string]any{
			"topic": topic.Name,
		}})
		o.logger.Info().Str("topic", topic.Name).Int("count", len(memories)).Msg("Context injected mid-turn")
		return
	}

	item := o.queue.Enqueue(queue.Item{
		Type:         queue.TypeContext,
		Priority:     queue.PriorityNormal,
		Content:      content,
		RelatedTopic: topic.Name,
	})
	o.events.Publish(bus.Event{Type: bus.EventTypeMessageQueued, Data: map[string]any{
		"id":   item.ID,
		"type": string(item.Type),
	}})
	o.logger.Info().Str("topic", topic.Name).Int("count", len(memories)).Msg("Context queued for next turn boundary")
}

// TriggerMemoryRetrieval is a manual/debug entry point that forces retrieval
// for a topic regardless of detection.
func (o *Orchestrator) TriggerMemoryRetrieval(topic string, keywords []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.opts.EnableMemoryRetrieval || o.opts.UserID == "" {
		return
	}
	o.dispatchRetrievalLocked(o.epoch, conversation.TopicInfo{
		ID:   topicSlug(topic),
		Name: topic,
	}, keywords, nil)
}

// UpdateOptions replaces the orchestration policy. In-flight detection and
// retrieval complete under the options they started with.
func (o *Orchestrator) UpdateOptions(opts Options) {
	if opts.EmotionResponseThreshold <= 0 {
		opts.EmotionResponseThreshold = 0.6
	}
	if opts.ClassifyContextMessages <= 0 {
		opts.ClassifyContextMessages = 6
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts = opts
}

// QueueSize returns the number of pending queued messages.
func (o *Orchestrator) QueueSize() int {
	return o.queue.Size()
}

// Context returns a read-only snapshot of the conversation.
func (o *Orchestrator) Context() conversation.Snapshot {
	return o.store.Snapshot()
}

// IsDetectingTopic reports whether a detection call is in flight.
func (o *Orchestrator) IsDetectingTopic() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.detecting
}

// PendingMemory returns the in-flight retrieval state, if any.
func (o *Orchestrator) PendingMemory() (PendingMemory, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == nil {
		return PendingMemory{}, false
	}
	return *o.pending, true
}

// Reset restores the orchestrator and everything it owns to session-start
// state. Detection and memory callbacks dispatched before the reset are
// discarded when they resolve.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	o.detecting = false
	o.pending = nil
	o.lastPhase = conversation.PhaseIdle

	o.pipeline.Cancel()
	o.store.Reset()
	o.detector.Reset()
	o.queue.Clear()

	o.logger.Info().Msg("Orchestrator reset")
}

// Events returns the bus the orchestrator publishes on.
func (o *Orchestrator) Events() *bus.EventBus {
	return o.events
}

func topicSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(slug, " ", "-")
}
