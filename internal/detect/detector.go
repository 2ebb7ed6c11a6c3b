// Package detect maps user utterances to topics and emotional states.
package detect

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/coachflow/internal/conversation"
)

// Classification is the raw result of one external classification call.
type Classification struct {
	TopicID          string               `json:"topicId,omitempty"`
	TopicName        string               `json:"topicName,omitempty"`
	MatchedKeywords  []string             `json:"matchedKeywords,omitempty"`
	Confidence       float64              `json:"confidence"`
	Emotion          conversation.Emotion `json:"emotion"`
	EmotionIntensity float64              `json:"emotionIntensity"`
	MemoryQuestions  []string             `json:"memoryQuestions,omitempty"`
}

// Classifier is the external classification capability.
type Classifier interface {
	Classify(ctx context.Context, utterance, recentContext string) (*Classification, error)
}

// Result is one utterance's detection outcome, ready for the orchestrator to
// apply. Topic is nil when no topic was found; topics are never invented
// locally.
type Result struct {
	Topic           *conversation.TopicInfo
	EmotionalState  conversation.EmotionalState
	IsTopicChanged  bool
	MatchedKeywords []string
	Confidence      float64
	MemoryQuestions []string
	// Fallback is true when the external call failed and only the local
	// lexical emotion scan produced this result.
	Fallback bool
}

// Detector delegates detection to a Classifier and degrades to a local
// lexical emotion scan when the external call fails. Its only memory is the
// previously detected topic ID, used to compute IsTopicChanged.
type Detector struct {
	classifier Classifier
	logger     zerolog.Logger

	mu          sync.Mutex
	prevTopicID string

	timeProvider func() time.Time // for testing
}

// NewDetector creates a Detector backed by the given classifier.
func NewDetector(classifier Classifier, logger zerolog.Logger) *Detector {
	return &Detector{
		classifier:   classifier,
		logger:       logger.With().Str("component", "detector").Logger(),
		timeProvider: time.Now,
	}
}

// Detect classifies one utterance. It never returns nil: on classification
// failure it falls back to a best-effort lexical emotion scan with no topic.
func (d *Detector) Detect(ctx context.Context, utterance, recentContext string) *Result {
	cls, err := d.classifier.Classify(ctx, utterance, recentContext)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Classification failed, falling back to lexical emotion scan")
		emotion, intensity := ScanEmotion(utterance)
		return &Result{
			EmotionalState: conversation.EmotionalState{
				Primary:    emotion,
				Intensity:  intensity,
				DetectedAt: d.timeProvider(),
				Trigger:    utterance,
			},
			Fallback: true,
		}
	}

	res := &Result{
		EmotionalState: conversation.EmotionalState{
			Primary:    cls.Emotion,
			Intensity:  cls.EmotionIntensity,
			DetectedAt: d.timeProvider(),
			Trigger:    utterance,
		},
		MatchedKeywords: cls.MatchedKeywords,
		Confidence:      cls.Confidence,
		MemoryQuestions: cls.MemoryQuestions,
	}
	if res.EmotionalState.Primary == "" {
		res.EmotionalState.Primary = conversation.EmotionNeutral
	}

	if cls.TopicID != "" {
		res.Topic = &conversation.TopicInfo{
			ID:              cls.TopicID,
			Name:            cls.TopicName,
			DetectedAt:      d.timeProvider(),
			MatchedKeywords: cls.MatchedKeywords,
		}

		d.mu.Lock()
		res.IsTopicChanged = d.prevTopicID == "" || d.prevTopicID != cls.TopicID
		d.prevTopicID = cls.TopicID
		d.mu.Unlock()
	}

	return res
}

// PreviousTopicID returns the last topic ID the detector saw.
func (d *Detector) PreviousTopicID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prevTopicID
}

// Reset clears the remembered previous topic.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prevTopicID = ""
}
