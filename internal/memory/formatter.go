package memory

import (
	"fmt"
	"strings"

	"github.com/normanking/coachflow/internal/conversation"
)

// TagEffectiveStrategy marks memories about what has worked for this user
// before. They are always surfaced first.
const TagEffectiveStrategy = "effective-strategy"

// Presentation buckets for untagged memories. Bucketing is a best-effort
// heuristic: a mis-bucketed memory is still surfaced, just labeled
// differently.
var (
	pastExperienceCues  = []string{"before", "last time", "previously", "used to", "back then"}
	preferenceCues      = []string{"prefer", "likes", "loves", "hates", "dislikes", "favorite", "enjoys"}
	behaviorPatternCues = []string{"tends to", "usually", "often", "always", "habit", "every time"}
)

// GenerateContextMessage renders retrieved memories into a directive block
// ready to send to the AI. It is a pure formatting function: no network, no
// state. Returns the empty string for an empty input list; callers must check
// before using the result as an outbound message.
func GenerateContextMessage(memories []RetrievalResult, topic string, emotion conversation.Emotion, intensity float64) string {
	if len(memories) == 0 {
		return ""
	}

	var strategies, pastExperiences, preferences, patterns, other []RetrievalResult
	for _, m := range memories {
		if m.Tag == TagEffectiveStrategy {
			strategies = append(strategies, m)
			continue
		}
		lower := strings.ToLower(m.Content)
		switch {
		case containsAny(lower, pastExperienceCues):
			pastExperiences = append(pastExperiences, m)
		case containsAny(lower, preferenceCues):
			preferences = append(preferences, m)
		case containsAny(lower, behaviorPatternCues):
			patterns = append(patterns, m)
		default:
			other = append(other, m)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[MEMORY CONTEXT: %s]\n", topic)
	if emotion != "" && emotion != conversation.EmotionNeutral {
		fmt.Fprintf(&sb, "The user currently seems %s (intensity %.1f).\n", emotion, intensity)
	}
	sb.WriteString("What you know about this user:\n")

	bucketed := false
	bucketed = writeSection(&sb, "Strategies that worked for them before", strategies) || bucketed
	bucketed = writeSection(&sb, "Past experiences", pastExperiences) || bucketed
	bucketed = writeSection(&sb, "Preferences", preferences) || bucketed
	bucketed = writeSection(&sb, "Behavior patterns", patterns) || bucketed

	if bucketed {
		writeSection(&sb, "Also relevant", other)
	} else {
		// Nothing matched a bucket: fall back to a flat list.
		for _, m := range other {
			writeMemoryLine(&sb, m)
		}
	}

	sb.WriteString("\nUse these memories conversationally where they help. ")
	sb.WriteString("Do not recite them back or mention that you were given notes.")

	return sb.String()
}

func writeSection(sb *strings.Builder, title string, memories []RetrievalResult) bool {
	if len(memories) == 0 {
		return false
	}

	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, m := range memories {
		writeMemoryLine(sb, m)
	}
	return true
}

func writeMemoryLine(sb *strings.Builder, m RetrievalResult) {
	if m.TagLabel != "" && m.Tag != TagEffectiveStrategy {
		fmt.Fprintf(sb, "- [%s] %s\n", m.TagLabel, m.Content)
		return
	}
	fmt.Fprintf(sb, "- %s\n", m.Content)
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
