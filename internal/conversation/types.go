// Package conversation tracks the state of one live coaching conversation.
package conversation

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single utterance in the conversation history.
type Message struct {
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	SystemInjected bool      `json:"systemInjected"`
}

// TopicInfo describes a detected conversation topic.
type TopicInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DetectedAt      time.Time `json:"detectedAt"`
	MatchedKeywords []string  `json:"matchedKeywords,omitempty"`
}

// Emotion is the primary emotion label for the user's current state.
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionHappy      Emotion = "happy"
	EmotionSad        Emotion = "sad"
	EmotionAnxious    Emotion = "anxious"
	EmotionFrustrated Emotion = "frustrated"
	EmotionTired      Emotion = "tired"
)

// EmotionalState captures the user's detected emotion. It is replaced
// wholesale on every detection, never merged.
type EmotionalState struct {
	Primary    Emotion   `json:"primary"`
	Intensity  float64   `json:"intensity"` // 0..1
	DetectedAt time.Time `json:"detectedAt"`
	Trigger    string    `json:"trigger,omitempty"`
}

// Phase is the derived stage of the conversation. It is recomputed from the
// messages and emotional state that produced it, never stored independently.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseGreeting       Phase = "greeting"
	PhaseExploring      Phase = "exploring"
	PhaseDeepDiscussion Phase = "deep_discussion"
	PhaseEmotional      Phase = "emotional"
	PhaseWrappingUp     Phase = "wrapping_up"
)

// Snapshot is a read-only view of the conversation shaped for prompt
// construction. Components other than the store's owner must read context
// through snapshots, never through a live reference to the store.
type Snapshot struct {
	Phase            Phase    `json:"phase"`
	CurrentTopic     string   `json:"currentTopic,omitempty"`
	TopicFlow        []string `json:"topicFlow,omitempty"`
	Emotion          Emotion  `json:"emotion"`
	EmotionIntensity float64  `json:"emotionIntensity"`
	LastUserSpeech   string   `json:"lastUserSpeech,omitempty"`
	LastAISpeech     string   `json:"lastAISpeech,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	MessageCount     int      `json:"messageCount"`
	Elapsed          string   `json:"elapsed"`
	Remaining        string   `json:"remaining"`
}
