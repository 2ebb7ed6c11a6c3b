package memory

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

// ClientConfig configures the retrieval service client.
type ClientConfig struct {
	ServerURL string        // e.g., "http://localhost:8080"
	Timeout   time.Duration // HTTP request timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:8080",
		Timeout:   15 * time.Second,
	}
}

// HTTPRetriever calls the remote memory-retrieval service.
type HTTPRetriever struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPRetriever creates a retrieval client.
func NewHTTPRetriever(cfg *ClientConfig, logger zerolog.Logger) *HTTPRetriever {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	return &HTTPRetriever{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "retriever-client").Logger(),
	}
}

// Retrieve issues one retrieval request.
func (c *HTTPRetriever) Retrieve(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.config.ServerURL + "/v1/memories/retrieve"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("retrieval request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("retrieval request failed: %d - %s", resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode retrieval response: %w", err)
	}

	c.logger.Debug().
		Str("topic", req.CurrentTopic).
		Int("count", len(out.Memories)).
		Msg("Retrieval response received")

	return &out, nil
}
