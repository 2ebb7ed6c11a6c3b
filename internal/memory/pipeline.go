// Package memory retrieves and formats long-term memories about the user.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetrievalResult is a read-only projection of one retrieved memory. This
// package never mutates or persists it, only formats it for injection.
type RetrievalResult struct {
	Content   string  `json:"content"`
	Tag       string  `json:"tag"`
	Relevance float64 `json:"relevance"`
	TagLabel  string  `json:"tagLabel"`
}

// Request describes one retrieval call.
type Request struct {
	UserID              string   `json:"userId"`
	CurrentTopic        string   `json:"currentTopic"`
	Keywords            []string `json:"keywords,omitempty"`
	ConversationSummary string   `json:"conversationSummary,omitempty"`
	SeedQuestions       []string `json:"seedQuestions,omitempty"`
	Limit               int      `json:"limit"`
}

// Response is the retrieval service's answer.
type Response struct {
	Memories             []RetrievalResult `json:"memories"`
	SynthesizedQuestions []string          `json:"synthesizedQuestions,omitempty"`
	DurationMs           int64             `json:"durationMs"`
}

// Retriever is the external memory-retrieval capability.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) (*Response, error)
}

// Stats exposes informational pipeline state. Carries no correctness
// obligation.
type Stats struct {
	IsLoading    bool
	LastResult   []RetrievalResult
	LastDuration time.Duration
	LastTopic    string
}

// Pipeline turns a topic into zero or more retrieval results without
// blocking its caller on correctness: every failure path resolves to an
// empty list. At most one request is in flight at a time; starting a new
// request cancels any still-pending prior one.
type Pipeline struct {
	retriever Retriever
	logger    zerolog.Logger
	limit     int

	mu           sync.Mutex
	cancelPrev   context.CancelFunc
	isLoading    bool
	lastResult   []RetrievalResult
	lastDuration time.Duration
	lastTopic    string

	timeProvider func() time.Time // for testing
}

// NewPipeline creates a Pipeline. limit caps how many memories one request
// may return; zero means the service default.
func NewPipeline(retriever Retriever, limit int, logger zerolog.Logger) *Pipeline {
	if limit <= 0 {
		limit = 5
	}

	return &Pipeline{
		retriever:    retriever,
		logger:       logger.With().Str("component", "memory-pipeline").Logger(),
		limit:        limit,
		timeProvider: time.Now,
	}
}

// FetchMemoriesForTopic issues one retrieval request. It supersedes any
// request still in flight, and returns an empty list on error or when userID
// is empty. It never returns an error to the caller. The boolean is false
// when this request was itself superseded or cancelled before completing;
// such a result is stale and must not be acted on.
func (p *Pipeline) FetchMemoriesForTopic(ctx context.Context, userID, topic string, keywords []string, summary string, seedQuestions []string) ([]RetrievalResult, bool) {
	if userID == "" {
		p.logger.Debug().Msg("No user identity, skipping memory retrieval")
		return nil, true
	}

	p.mu.Lock()
	if p.cancelPrev != nil {
		p.cancelPrev()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.cancelPrev = cancel
	p.isLoading = true
	p.lastTopic = topic
	p.mu.Unlock()

	start := p.timeProvider()
	resp, err := p.retriever.Retrieve(reqCtx, Request{
		UserID:              userID,
		CurrentTopic:        topic,
		Keywords:            keywords,
		ConversationSummary: summary,
		SeedQuestions:       seedQuestions,
		Limit:               p.limit,
	})
	elapsed := p.timeProvider().Sub(start)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDuration = elapsed

	// A newer request cancels reqCtx; its result owns the pipeline state now.
	if reqCtx.Err() != nil {
		p.logger.Debug().Str("topic", topic).Msg("Memory retrieval superseded")
		return nil, false
	}
	p.isLoading = false

	if err != nil {
		p.logger.Warn().Err(err).Str("topic", topic).Msg("Memory retrieval failed")
		return nil, true
	}

	p.lastResult = resp.Memories

	p.logger.Info().
		Str("topic", topic).
		Int("count", len(resp.Memories)).
		Dur("elapsed", elapsed).
		Msg("Memories retrieved")

	return resp.Memories, true
}

// Cancel aborts any in-flight retrieval.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelPrev != nil {
		p.cancelPrev()
		p.cancelPrev = nil
	}
	p.isLoading = false
}

// Stats returns a copy of the informational pipeline state.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := make([]RetrievalResult, len(p.lastResult))
	copy(last, p.lastResult)

	return Stats{
		IsLoading:    p.isLoading,
		LastResult:   last,
		LastDuration: p.lastDuration,
		LastTopic:    p.lastTopic,
	}
}
