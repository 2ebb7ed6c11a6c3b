package detect

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultFillerWords are disfluencies stripped from transcripts before
// classification. Words like "so" and "well" stay: they carry tone in a
// coaching conversation.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm",
	"er", "ah", "hmm", "mm",
	"you know", "i mean",
}

// TranscriptFilter removes filler words and noise from live transcripts.
type TranscriptFilter struct {
	mu          sync.RWMutex
	fillerWords map[string]struct{}
	pattern     *regexp.Regexp
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctOnlyRe  = regexp.MustCompile(`^[.,!?;:\s]+$`)
)

// NewTranscriptFilter creates a filter. A nil word list uses
// DefaultFillerWords.
func NewTranscriptFilter(fillerWords []string) *TranscriptFilter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}

	f := &TranscriptFilter{
		fillerWords: make(map[string]struct{}, len(fillerWords)),
	}
	for _, word := range fillerWords {
		f.fillerWords[strings.ToLower(word)] = struct{}{}
	}
	f.rebuildPattern()
	return f
}

func (f *TranscriptFilter) rebuildPattern() {
	if len(f.fillerWords) == 0 {
		f.pattern = nil
		return
	}

	patterns := make([]string, 0, len(f.fillerWords))
	for word := range f.fillerWords {
		patterns = append(patterns, `\b`+regexp.QuoteMeta(word)+`\b`)
	}
	f.pattern = regexp.MustCompile(`(?i)(` + strings.Join(patterns, `|`) + `)`)
}

// SetFillerWords replaces the filler word list.
func (f *TranscriptFilter) SetFillerWords(words []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fillerWords = make(map[string]struct{}, len(words))
	for _, word := range words {
		f.fillerWords[strings.ToLower(word)] = struct{}{}
	}
	f.rebuildPattern()
}

// Clean strips filler words and normalizes whitespace. The boolean reports
// whether anything meaningful survived.
func (f *TranscriptFilter) Clean(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	f.mu.RLock()
	pattern := f.pattern
	f.mu.RUnlock()

	cleaned := text
	if pattern != nil {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(whitespaceRe.ReplaceAllString(cleaned, " "))
	if punctOnlyRe.MatchString(cleaned) {
		cleaned = ""
	}

	return cleaned, cleaned != ""
}

// IsFillerOnly reports whether the text contains nothing but filler.
func (f *TranscriptFilter) IsFillerOnly(text string) bool {
	_, meaningful := f.Clean(text)
	return !meaningful
}

// FragmentBuffer accumulates partial transcripts until there is enough to
// classify. Live transcription delivers words in bursts; classifying each
// burst separately wastes calls and loses context.
type FragmentBuffer struct {
	mu           sync.Mutex
	parts        []string
	wordCount    int
	minWords     int
	pause        time.Duration
	lastAdd      time.Time
	timeProvider func() time.Time // for testing
}

// FragmentBufferConfig configures fragment accumulation.
type FragmentBufferConfig struct {
	// MinWords releases the buffer once this many words accumulate (default: 2)
	MinWords int
	// Pause releases the buffer after this long with no new fragments (default: 500ms)
	Pause time.Duration
}

// NewFragmentBuffer creates a buffer with the given config.
func NewFragmentBuffer(cfg FragmentBufferConfig) *FragmentBuffer {
	if cfg.MinWords <= 0 {
		cfg.MinWords = 2
	}
	if cfg.Pause <= 0 {
		cfg.Pause = 500 * time.Millisecond
	}

	return &FragmentBuffer{
		minWords:     cfg.MinWords,
		pause:        cfg.Pause,
		timeProvider: time.Now,
	}
}

// Add appends a fragment. Empty fragments are ignored.
func (fb *FragmentBuffer) Add(fragment string) bool {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return false
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.parts = append(fb.parts, fragment)
	fb.wordCount += len(strings.Fields(fragment))
	fb.lastAdd = fb.timeProvider()
	return true
}

// ShouldFlush reports whether the buffer holds enough content, either by
// word count or because the speaker paused.
func (fb *FragmentBuffer) ShouldFlush() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.parts) == 0 {
		return false
	}
	if fb.wordCount >= fb.minWords {
		return true
	}
	return fb.timeProvider().Sub(fb.lastAdd) >= fb.pause
}

// Flush returns the accumulated text and clears the buffer.
func (fb *FragmentBuffer) Flush() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	text := strings.Join(fb.parts, " ")
	fb.parts = nil
	fb.wordCount = 0
	fb.lastAdd = time.Time{}
	return text
}

// IsEmpty reports whether the buffer holds any content.
func (fb *FragmentBuffer) IsEmpty() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.parts) == 0
}

// WordCount returns the buffered word count.
func (fb *FragmentBuffer) WordCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.wordCount
}
