// Package session provides the live speech-session connection. It tracks
// whether the AI is currently speaking and carries injected client content,
// surfacing transcripts and turn boundaries through callbacks.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config configures the live session connection.
type Config struct {
	ServerURL      string        // e.g., "ws://localhost:9090/live"
	Timeout        time.Duration // dial timeout
	ReconnectDelay time.Duration // delay between reconnection attempts
	MaxReconnects  int           // max reconnection attempts, 0 disables reconnect
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      "ws://localhost:9090/live",
		Timeout:        30 * time.Second,
		ReconnectDelay: 5 * time.Second,
		MaxReconnects:  10,
	}
}

// serverMessage is one event from the live session server.
type serverMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}

// clientContent is an injected-content frame sent to the server.
type clientContent struct {
	Type         string `json:"type"`
	Content      string `json:"content"`
	ForceNewTurn bool   `json:"forceNewTurn"`
	Role         string `json:"role"`
}

// Handlers receive session events. All callbacks are optional and are
// invoked from the read loop goroutine.
type Handlers struct {
	OnUserTranscript func(text string)
	OnAITranscript   func(text string)
	OnTurnComplete   func()
	OnError          func(err error)
}

// LiveSession is a websocket client for the live speech session.
type LiveSession struct {
	config   *Config
	logger   zerolog.Logger
	handlers Handlers

	connMu      sync.Mutex
	conn        *websocket.Conn
	isConnected bool

	stateMu  sync.RWMutex
	speaking bool

	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewLiveSession creates a live session client.
func NewLiveSession(cfg *Config, handlers Handlers, logger zerolog.Logger) *LiveSession {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &LiveSession{
		config:   cfg,
		logger:   logger.With().Str("component", "live-session").Logger(),
		handlers: handlers,
		closeCh:  make(chan struct{}),
	}
}

// Connect dials the session server and starts the read loop.
func (s *LiveSession) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.isConnected && s.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.config.Timeout}
	conn, _, err := dialer.DialContext(ctx, s.config.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to live session: %w", err)
	}

	s.conn = conn
	s.isConnected = true
	s.logger.Info().Str("url", s.config.ServerURL).Msg("Live session connected")

	go s.readLoop(conn)
	return nil
}

// readLoop processes server events until the connection drops or Close is
// called, then attempts reconnection.
func (s *LiveSession) readLoop(conn *websocket.Conn) {
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}

			s.logger.Warn().Err(err).Msg("Live session read failed")
			s.markDisconnected()
			s.reconnect()
			return
		}

		s.handleMessage(msg)
	}
}

func (s *LiveSession) handleMessage(msg serverMessage) {
	switch msg.Type {
	case "speaking_started":
		s.setSpeaking(true)
	case "speaking_stopped":
		s.setSpeaking(false)
	case "turn_complete":
		s.setSpeaking(false)
		if s.handlers.OnTurnComplete != nil {
			s.handlers.OnTurnComplete()
		}
	case "transcript":
		switch msg.Role {
		case "assistant":
			if s.handlers.OnAITranscript != nil {
				s.handlers.OnAITranscript(msg.Text)
			}
		default:
			if s.handlers.OnUserTranscript != nil {
				s.handlers.OnUserTranscript(msg.Text)
			}
		}
	case "error":
		s.logger.Error().Str("message", msg.Message).Msg("Live session server error")
		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("session error: %s", msg.Message))
		}
	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown session message")
	}
}

// reconnect retries the connection with a fixed delay.
func (s *LiveSession) reconnect() {
	for attempt := 1; attempt <= s.config.MaxReconnects; attempt++ {
		select {
		case <-s.closeCh:
			return
		case <-time.After(s.config.ReconnectDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Live session reconnect failed")
	}
	s.logger.Error().Int("attempts", s.config.MaxReconnects).Msg("Live session reconnect attempts exhausted")
}

func (s *LiveSession) markDisconnected() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.isConnected = false
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *LiveSession) setSpeaking(v bool) {
	s.stateMu.Lock()
	s.speaking = v
	s.stateMu.Unlock()
}

// IsSpeaking reports whether the AI is currently mid-utterance. This is a
// live read, safe to call at decision time.
func (s *LiveSession) IsSpeaking() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.speaking
}

// IsConnected reports whether the websocket is up.
func (s *LiveSession) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.isConnected
}

// SendClientContent injects content into the conversation. With forceNewTurn
// the AI abandons its current utterance and starts a new turn incorporating
// the content; without it the content waits silently in the server-side
// context.
func (s *LiveSession) SendClientContent(content string, forceNewTurn bool, role string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if !s.isConnected || s.conn == nil {
		return fmt.Errorf("live session not connected")
	}

	err := s.conn.WriteJSON(clientContent{
		Type:         "client_content",
		Content:      content,
		ForceNewTurn: forceNewTurn,
		Role:         role,
	})
	if err != nil {
		return fmt.Errorf("failed to send client content: %w", err)
	}

	s.logger.Debug().Bool("forceNewTurn", forceNewTurn).Str("role", role).Msg("Client content sent")
	return nil
}

// Close shuts the session down. It does not reconnect afterwards.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })

	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.isConnected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		if err != nil {
			s.logger.Warn().Err(err).Msg("Live session close failed")
		}
	}
	return nil
}
