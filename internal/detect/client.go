package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ClientConfig configures the classification service client.
type ClientConfig struct {
	ServerURL string        // e.g., "http://localhost:8080"
	Timeout   time.Duration // HTTP request timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:8080",
		Timeout:   10 * time.Second,
	}
}

// HTTPClassifier calls the remote topic/emotion classification service.
type HTTPClassifier struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClassifier creates a classification client.
func NewHTTPClassifier(cfg *ClientConfig, logger zerolog.Logger) *HTTPClassifier {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	return &HTTPClassifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "classifier-client").Logger(),
	}
}

type classifyRequest struct {
	Utterance     string `json:"utterance"`
	RecentContext string `json:"recentContext,omitempty"`
}

// Classify sends one utterance for classification.
func (c *HTTPClassifier) Classify(ctx context.Context, utterance, recentContext string) (*Classification, error) {
	body, err := json.Marshal(classifyRequest{
		Utterance:     utterance,
		RecentContext: recentContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.ServerURL + "/v1/classify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classification request failed: %d - %s", resp.StatusCode, string(respBody))
	}

	var cls Classification
	if err := json.NewDecoder(resp.Body).Decode(&cls); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}

	c.logger.Debug().
		Str("topicId", cls.TopicID).
		Str("emotion", string(cls.Emotion)).
		Float64("confidence", cls.Confidence).
		Msg("Classification received")

	return &cls, nil
}
