package conversation

import (
	"strings"
	"testing"
	"time"
)

func TestNewStore_DefaultConfig(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	if s.config.MaxRecentMessages != 10 {
		t.Errorf("expected MaxRecentMessages=10, got %d", s.config.MaxRecentMessages)
	}
	if s.config.MaxTopicHistory != 5 {
		t.Errorf("expected MaxTopicHistory=5, got %d", s.config.MaxTopicHistory)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected initial phase idle, got %s", s.Phase())
	}
}

func TestNewStore_InvalidConfig(t *testing.T) {
	// Zero values should be replaced with defaults
	s := NewStore(StoreConfig{})

	if s.config.MaxRecentMessages != 10 {
		t.Errorf("expected default MaxRecentMessages=10, got %d", s.config.MaxRecentMessages)
	}
	if s.config.SessionDuration != 30*time.Minute {
		t.Errorf("expected default SessionDuration=30m, got %v", s.config.SessionDuration)
	}
}

func TestStore_RecencyCap(t *testing.T) {
	s := NewStore(StoreConfig{MaxRecentMessages: 3})

	for i := 0; i < 10; i++ {
		s.AddUserMessage("user message", false)
		if s.MessageCount() > 3 {
			t.Fatalf("message count %d exceeds cap after append %d", s.MessageCount(), i)
		}
		s.AddAIMessage("ai message", false)
		if s.MessageCount() > 3 {
			t.Fatalf("message count %d exceeds cap after append %d", s.MessageCount(), i)
		}
	}
}

func TestStore_EvictsOldestFirst(t *testing.T) {
	s := NewStore(StoreConfig{MaxRecentMessages: 2})

	s.AddUserMessage("first", false)
	s.AddUserMessage("second", false)
	s.AddUserMessage("third", false)

	msgs := s.Messages()
	if msgs[0].Text != "second" {
		t.Errorf("expected oldest retained message 'second', got '%s'", msgs[0].Text)
	}
	if msgs[1].Text != "third" {
		t.Errorf("expected newest message 'third', got '%s'", msgs[1].Text)
	}
}

func TestStore_UpdateTopic_PushesOldTopicByID(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.UpdateTopic(TopicInfo{ID: "work", Name: "Work"})
	if len(s.TopicFlow()) != 0 {
		t.Errorf("expected empty topic flow after first topic, got %d", len(s.TopicFlow()))
	}

	// Same ID, different name: no push
	s.UpdateTopic(TopicInfo{ID: "work", Name: "Work stress"})
	if len(s.TopicFlow()) != 0 {
		t.Errorf("expected no topic flow entry for same-ID update, got %d", len(s.TopicFlow()))
	}

	s.UpdateTopic(TopicInfo{ID: "family", Name: "Family"})
	flow := s.TopicFlow()
	if len(flow) != 1 {
		t.Fatalf("expected 1 topic flow entry, got %d", len(flow))
	}
	if flow[0].ID != "work" {
		t.Errorf("expected pushed topic 'work', got '%s'", flow[0].ID)
	}
}

func TestStore_TopicFlowCap(t *testing.T) {
	s := NewStore(StoreConfig{MaxTopicHistory: 2})

	for _, id := range []string{"a", "b", "c", "d"} {
		s.UpdateTopic(TopicInfo{ID: id, Name: id})
	}

	flow := s.TopicFlow()
	if len(flow) != 2 {
		t.Fatalf("expected topic flow capped at 2, got %d", len(flow))
	}
	if flow[0].ID != "b" || flow[1].ID != "c" {
		t.Errorf("expected flow [b c], got [%s %s]", flow[0].ID, flow[1].ID)
	}
}

func TestStore_PhaseProgression(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.AddUserMessage("hi", false)
	s.AddAIMessage("hello", false)
	if s.Phase() != PhaseGreeting {
		t.Errorf("expected greeting at 2 messages, got %s", s.Phase())
	}

	s.AddUserMessage("3", false)
	s.AddAIMessage("4", false)
	s.AddUserMessage("5", false)
	if s.Phase() != PhaseExploring {
		t.Errorf("expected exploring at 5 messages, got %s", s.Phase())
	}

	s.AddAIMessage("6", false)
	s.AddUserMessage("7", false)
	if s.Phase() != PhaseDeepDiscussion {
		t.Errorf("expected deep_discussion at 7 messages, got %s", s.Phase())
	}
}

func TestStore_PhaseWrappingUp(t *testing.T) {
	s := NewStore(StoreConfig{SessionDuration: 10 * time.Minute})

	now := time.Now()
	s.timeProvider = func() time.Time { return now }
	s.Reset()

	for i := 0; i < 8; i++ {
		s.AddUserMessage("msg", false)
	}
	if s.Phase() != PhaseDeepDiscussion {
		t.Fatalf("expected deep_discussion before 80%% elapsed, got %s", s.Phase())
	}

	// Past 80% of planned duration
	s.timeProvider = func() time.Time { return now.Add(9 * time.Minute) }
	s.AddUserMessage("late message", false)
	if s.Phase() != PhaseWrappingUp {
		t.Errorf("expected wrapping_up past 80%% elapsed, got %s", s.Phase())
	}
}

func TestStore_EmotionalOverride(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.AddUserMessage("hi", false)
	s.UpdateEmotionalState(EmotionalState{Primary: EmotionSad, Intensity: 0.8})

	if s.Phase() != PhaseEmotional {
		t.Errorf("expected emotional phase for intense sad, got %s", s.Phase())
	}

	// Neutral never forces the emotional phase, no matter the intensity
	s.UpdateEmotionalState(EmotionalState{Primary: EmotionNeutral, Intensity: 0.9})
	if s.Phase() == PhaseEmotional {
		t.Error("expected neutral emotion to release the emotional phase")
	}

	// Low intensity does not trigger the override
	s.UpdateEmotionalState(EmotionalState{Primary: EmotionAnxious, Intensity: 0.3})
	if s.Phase() == PhaseEmotional {
		t.Error("expected low-intensity emotion to leave phase unchanged")
	}
}

func TestStore_EmotionalOverridePersistsAcrossAppends(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.UpdateEmotionalState(EmotionalState{Primary: EmotionFrustrated, Intensity: 0.9})
	s.AddUserMessage("still upset", false)

	if s.Phase() != PhaseEmotional {
		t.Errorf("expected emotional phase to survive message append, got %s", s.Phase())
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.AddUserMessage("I want to talk about work", false)
	s.AddAIMessage("Tell me more", false)
	s.UpdateTopic(TopicInfo{ID: "work", Name: "Work"})
	s.UpdateTopic(TopicInfo{ID: "family", Name: "Family"})
	s.UpdateEmotionalState(EmotionalState{Primary: EmotionAnxious, Intensity: 0.5})
	s.SetSummary("User is worried about a deadline.")

	snap := s.Snapshot()

	if snap.CurrentTopic != "Family" {
		t.Errorf("expected current topic 'Family', got '%s'", snap.CurrentTopic)
	}
	if len(snap.TopicFlow) != 1 || snap.TopicFlow[0] != "Work" {
		t.Errorf("expected topic flow [Work], got %v", snap.TopicFlow)
	}
	if snap.Emotion != EmotionAnxious {
		t.Errorf("expected anxious, got %s", snap.Emotion)
	}
	if snap.LastUserSpeech != "I want to talk about work" {
		t.Errorf("unexpected lastUserSpeech: %s", snap.LastUserSpeech)
	}
	if snap.LastAISpeech != "Tell me more" {
		t.Errorf("unexpected lastAISpeech: %s", snap.LastAISpeech)
	}
	if snap.Summary == "" {
		t.Error("expected summary in snapshot")
	}
	if !strings.Contains(snap.Remaining, "minute") {
		t.Errorf("expected remaining time string, got '%s'", snap.Remaining)
	}
}

func TestStore_RecentTranscript(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.AddUserMessage("first", false)
	s.AddAIMessage("second", false)
	s.AddUserMessage("third", false)

	transcript := s.RecentTranscript(2)
	if strings.Contains(transcript, "first") {
		t.Error("expected 'first' excluded from 2-message transcript")
	}
	if !strings.Contains(transcript, "user: third") {
		t.Errorf("expected 'user: third' in transcript, got: %s", transcript)
	}
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(DefaultStoreConfig())

	s.AddUserMessage("hello", false)
	s.UpdateTopic(TopicInfo{ID: "work", Name: "Work"})
	s.UpdateEmotionalState(EmotionalState{Primary: EmotionSad, Intensity: 0.9})
	s.SetSummary("summary")

	s.Reset()

	if s.MessageCount() != 0 {
		t.Errorf("expected 0 messages after reset, got %d", s.MessageCount())
	}
	if s.CurrentTopic() != nil {
		t.Error("expected nil current topic after reset")
	}
	if len(s.TopicFlow()) != 0 {
		t.Error("expected empty topic flow after reset")
	}
	if s.EmotionalState().Primary != EmotionNeutral {
		t.Errorf("expected neutral emotion after reset, got %s", s.EmotionalState().Primary)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected idle phase after reset, got %s", s.Phase())
	}
	if s.Snapshot().Summary != "" {
		t.Error("expected empty summary after reset")
	}
}
