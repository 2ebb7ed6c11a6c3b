package conversation

import (
	"fmt"
	"sync"
	"time"
)

// emotionalPhaseThreshold is the intensity above which a non-neutral emotion
// forces the conversation into the emotional phase.
const emotionalPhaseThreshold = 0.6

// StoreConfig configures the conversation store.
type StoreConfig struct {
	// MaxRecentMessages is the maximum number of messages to retain (default: 10)
	MaxRecentMessages int
	// MaxTopicHistory is the maximum number of past topics to retain (default: 5)
	MaxTopicHistory int
	// SessionDuration is the planned length of a coaching session (default: 30 minutes)
	SessionDuration time.Duration
}

// DefaultStoreConfig returns sensible defaults for conversation tracking.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxRecentMessages: 10,
		MaxTopicHistory:   5,
		SessionDuration:   30 * time.Minute,
	}
}

// Store is the single source of truth for what has been said and what state
// the conversation is in. All mutation goes through its methods; readers take
// snapshots via Snapshot and never hold a live reference to internal state.
type Store struct {
	mu             sync.RWMutex
	config         StoreConfig
	messages       []Message
	currentTopic   *TopicInfo
	topicFlow      []TopicInfo
	emotional      EmotionalState
	phase          Phase
	sessionStart   time.Time
	lastActivity   time.Time
	lastUserSpeech string
	lastAISpeech   string
	summary        string
	timeProvider   func() time.Time // for testing
}

// NewStore creates a Store with the given config.
func NewStore(config StoreConfig) *Store {
	if config.MaxRecentMessages <= 0 {
		config.MaxRecentMessages = 10
	}
	if config.MaxTopicHistory <= 0 {
		config.MaxTopicHistory = 5
	}
	if config.SessionDuration <= 0 {
		config.SessionDuration = 30 * time.Minute
	}

	s := &Store{
		config:       config,
		timeProvider: time.Now,
	}
	s.resetLocked()
	return s
}

// AddUserMessage appends a user utterance to the history.
func (s *Store) AddUserMessage(text string, systemInjected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(Message{Role: RoleUser, Text: text, SystemInjected: systemInjected})
	s.lastUserSpeech = text
}

// AddAIMessage appends an assistant utterance to the history.
func (s *Store) AddAIMessage(text string, systemInjected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(Message{Role: RoleAssistant, Text: text, SystemInjected: systemInjected})
	s.lastAISpeech = text
}

// appendLocked appends a message, evicts beyond the cap, and recomputes the
// phase. Caller must hold the lock.
func (s *Store) appendLocked(msg Message) {
	now := s.timeProvider()
	msg.Timestamp = now

	s.messages = append(s.messages, msg)
	if len(s.messages) > s.config.MaxRecentMessages {
		s.messages = s.messages[len(s.messages)-s.config.MaxRecentMessages:]
	}

	s.lastActivity = now
	s.phase = s.derivePhaseLocked()
}

// UpdateTopic replaces the current topic. If the new topic's ID differs from
// the current one, the old topic is pushed onto the topic flow first.
// Equality is by ID, not by name.
func (s *Store) UpdateTopic(topic TopicInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if topic.DetectedAt.IsZero() {
		topic.DetectedAt = s.timeProvider()
	}

	if s.currentTopic != nil && s.currentTopic.ID != topic.ID {
		s.topicFlow = append(s.topicFlow, *s.currentTopic)
		if len(s.topicFlow) > s.config.MaxTopicHistory {
			s.topicFlow = s.topicFlow[len(s.topicFlow)-s.config.MaxTopicHistory:]
		}
	}
	s.currentTopic = &topic
}

// UpdateEmotionalState replaces the emotional state wholesale. A strong
// non-neutral emotion pre-empts the message-count phase heuristic.
func (s *Store) UpdateEmotionalState(state EmotionalState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.DetectedAt.IsZero() {
		state.DetectedAt = s.timeProvider()
	}
	s.emotional = state

	if state.Intensity > emotionalPhaseThreshold && state.Primary != EmotionNeutral {
		s.phase = PhaseEmotional
		return
	}
	s.phase = s.derivePhaseLocked()
}

// derivePhaseLocked computes the phase from message count, elapsed time, and
// emotional state, in that priority order. Caller must hold the lock.
func (s *Store) derivePhaseLocked() Phase {
	if s.emotional.Intensity > emotionalPhaseThreshold && s.emotional.Primary != EmotionNeutral {
		return PhaseEmotional
	}

	count := len(s.messages)
	switch {
	case count == 0:
		return PhaseIdle
	case count <= 2:
		return PhaseGreeting
	case count <= 6:
		return PhaseExploring
	}

	elapsed := s.timeProvider().Sub(s.sessionStart)
	if float64(elapsed) > 0.8*float64(s.config.SessionDuration) {
		return PhaseWrappingUp
	}
	return PhaseDeepDiscussion
}

// SetSummary records an externally produced running summary.
func (s *Store) SetSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

// Snapshot returns a read-only view shaped for prompt construction.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.timeProvider()
	elapsed := now.Sub(s.sessionStart)
	remaining := s.config.SessionDuration - elapsed
	if remaining < 0 {
		remaining = 0
	}

	snap := Snapshot{
		Phase:            s.phase,
		Emotion:          s.emotional.Primary,
		EmotionIntensity: s.emotional.Intensity,
		LastUserSpeech:   s.lastUserSpeech,
		LastAISpeech:     s.lastAISpeech,
		Summary:          s.summary,
		MessageCount:     len(s.messages),
		Elapsed:          formatMinutes(elapsed),
		Remaining:        formatMinutes(remaining),
	}

	if s.currentTopic != nil {
		snap.CurrentTopic = s.currentTopic.Name
	}
	for _, t := range s.topicFlow {
		snap.TopicFlow = append(snap.TopicFlow, t.Name)
	}

	return snap
}

// RecentTranscript returns the last n messages formatted as a plain
// transcript, for use as classification context.
func (s *Store) RecentTranscript(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}

	out := ""
	for _, m := range s.messages[start:] {
		out += fmt.Sprintf("%s: %s\n", m.Role, m.Text)
	}
	return out
}

// CurrentTopic returns a copy of the current topic, or nil if none detected.
func (s *Store) CurrentTopic() *TopicInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentTopic == nil {
		return nil
	}
	t := *s.currentTopic
	return &t
}

// TopicFlow returns a copy of the past-topic history.
func (s *Store) TopicFlow() []TopicInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow := make([]TopicInfo, len(s.topicFlow))
	copy(flow, s.topicFlow)
	return flow
}

// EmotionalState returns the current emotional state.
func (s *Store) EmotionalState() EmotionalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emotional
}

// Phase returns the current conversation phase.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// MessageCount returns the number of retained messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a copy of the retained messages.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}

// Reset restores all fields to session-start defaults. Used on session
// restart, never partially.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	now := s.timeProvider()
	s.messages = make([]Message, 0, s.config.MaxRecentMessages)
	s.currentTopic = nil
	s.topicFlow = nil
	s.emotional = EmotionalState{Primary: EmotionNeutral, DetectedAt: now}
	s.phase = PhaseIdle
	s.sessionStart = now
	s.lastActivity = now
	s.lastUserSpeech = ""
	s.lastAISpeech = ""
	s.summary = ""
}

// LastActivity returns the timestamp of the most recent append.
func (s *Store) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SessionStart returns when the current session began.
func (s *Store) SessionStart() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionStart
}

// Config returns the store configuration.
func (s *Store) Config() StoreConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func formatMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
