package detect

import (
	"regexp"
	"strings"

	"github.com/normanking/coachflow/internal/conversation"
)

// emotionKeywords maps each emotion to the lexical cues that suggest it.
// This is the degraded-mode path only: when the classification service is
// reachable its result always wins.
var emotionKeywords = map[conversation.Emotion][]string{
	conversation.EmotionHappy: {
		"happy", "glad", "great", "excited", "wonderful", "amazing",
		"proud", "love", "awesome", "fantastic", "grateful",
	},
	conversation.EmotionSad: {
		"sad", "down", "depressed", "unhappy", "miserable", "heartbroken",
		"lonely", "crying", "cried", "broke up", "lost",
	},
	conversation.EmotionAnxious: {
		"anxious", "worried", "nervous", "scared", "afraid", "panic",
		"stressed", "overwhelmed", "dread",
	},
	conversation.EmotionFrustrated: {
		"frustrated", "angry", "annoyed", "irritated", "fed up",
		"furious", "hate", "unfair", "stuck",
	},
	conversation.EmotionTired: {
		"tired", "exhausted", "drained", "sleepy", "burned out",
		"burnt out", "worn out", "no energy",
	},
}

// Modifier words shift the base intensity up or down.
var (
	intensifiers = []string{"very", "really", "so", "extremely", "incredibly", "totally", "completely"}
	diminishers  = []string{"a bit", "a little", "slightly", "kind of", "kinda", "somewhat"}
)

const (
	baseIntensity    = 0.5
	modifierStep     = 0.2
	multiMatchBonus  = 0.1
	maxScanIntensity = 1.0
	minScanIntensity = 0.1
)

// ScanEmotion performs a purely lexical emotion scan over an utterance.
// Returns neutral with zero intensity when nothing matches.
func ScanEmotion(text string) (conversation.Emotion, float64) {
	lower := strings.ToLower(text)

	best := conversation.EmotionNeutral
	bestHits := 0
	for emotion, words := range emotionKeywords {
		hits := 0
		for _, w := range words {
			if matchesWord(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			best = emotion
			bestHits = hits
		}
	}

	if best == conversation.EmotionNeutral {
		return conversation.EmotionNeutral, 0
	}

	intensity := baseIntensity
	if bestHits > 1 {
		intensity += multiMatchBonus * float64(bestHits-1)
	}
	for _, m := range intensifiers {
		if matchesWord(lower, m) {
			intensity += modifierStep
			break
		}
	}
	for _, m := range diminishers {
		if strings.Contains(lower, m) {
			intensity -= modifierStep
			break
		}
	}

	if intensity > maxScanIntensity {
		intensity = maxScanIntensity
	}
	if intensity < minScanIntensity {
		intensity = minScanIntensity
	}

	return best, intensity
}

// matchesWord requires word boundaries for single words; phrases use a plain
// substring check.
func matchesWord(text, word string) bool {
	if strings.ContainsRune(word, ' ') {
		return strings.Contains(text, word)
	}
	pattern := `\b` + regexp.QuoteMeta(word) + `\b`
	matched, _ := regexp.MatchString(pattern, text)
	return matched
}
