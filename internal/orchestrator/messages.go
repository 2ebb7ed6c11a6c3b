package orchestrator

import (
	"fmt"
	"strings"

	"github.com/normanking/coachflow/internal/conversation"
)

// buildEmpathyMessage renders an urgent empathy directive from the current
// conversation snapshot.
func buildEmpathyMessage(snap conversation.Snapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[EMPATHY]\nThe user sounds %s (intensity %.1f)", snap.Emotion, snap.EmotionIntensity)
	if snap.CurrentTopic != "" {
		fmt.Fprintf(&sb, " while talking about %s", snap.CurrentTopic)
	}
	sb.WriteString(".\n")

	if snap.LastUserSpeech != "" {
		fmt.Fprintf(&sb, "They just said: %q\n", snap.LastUserSpeech)
	}

	sb.WriteString("Acknowledge the feeling in your own words before anything else. ")
	sb.WriteString("Keep it short, warm, and specific. Do not offer solutions yet.")

	return sb.String()
}
