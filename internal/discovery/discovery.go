// Package discovery locates and tracks the backend services CoachFlow
// depends on, the classification service and the memory service.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Backend is a discovered service endpoint.
type Backend struct {
	ID       string    `json:"id"` // URL-based identifier
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	URL      string    `json:"url"`
	Status   string    `json:"status"`  // "online" or "offline"
	Latency  int64     `json:"latency"` // last probe round trip in ms
	LastSeen time.Time `json:"lastSeen"`
}

// healthReport is the payload of a backend's /v1/health endpoint.
type healthReport struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Config holds discovery configuration.
type Config struct {
	// Ports to scan on localhost
	Ports []int
	// Custom URLs to probe in addition to port scanning
	CustomURLs []string
	// Probe timeout per endpoint
	Timeout time.Duration
	// How often to refresh
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ports:           []int{8080, 8081, 8082},
		CustomURLs:      []string{},
		Timeout:         2 * time.Second,
		RefreshInterval: 30 * time.Second,
	}
}

// Service discovers and tracks available backends.
type Service struct {
	cfg        *Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.RWMutex
	backends map[string]*Backend
	onUpdate func([]*Backend)

	stopCh  chan struct{}
	running bool
}

// NewService creates a discovery service. Zero config fields fall back to
// defaults individually; an empty Ports list stays empty (no port scan).
func NewService(cfg *Config, logger zerolog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}

	return &Service{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:   logger.With().Str("component", "discovery").Logger(),
		backends: make(map[string]*Backend),
		stopCh:   make(chan struct{}),
	}
}

// SetOnUpdate sets the callback invoked after every scan.
func (s *Service) SetOnUpdate(fn func([]*Backend)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Start begins background discovery.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.Scan()

	go func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Scan()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop stops background discovery.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// Scan probes every candidate endpoint concurrently and updates the backend
// map. Endpoints that stop answering are marked offline, not removed.
func (s *Service) Scan() []*Backend {
	var wg sync.WaitGroup
	results := make(chan *Backend, len(s.cfg.Ports)+len(s.cfg.CustomURLs))

	for _, port := range s.cfg.Ports {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			if b := s.probe(fmt.Sprintf("http://localhost:%d", p)); b != nil {
				results <- b
			}
		}(port)
	}

	for _, url := range s.cfg.CustomURLs {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if b := s.probe(u); b != nil {
				results <- b
			}
		}(url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	s.mu.Lock()
	for _, b := range s.backends {
		b.Status = "offline"
	}
	for b := range results {
		s.backends[b.ID] = b
	}

	list := make([]*Backend, 0, len(s.backends))
	for _, b := range s.backends {
		list = append(list, b)
	}
	callback := s.onUpdate
	s.mu.Unlock()

	if callback != nil {
		callback(list)
	}
	return list
}

// probe checks one URL for a healthy backend.
func (s *Service) probe(baseURL string) *Backend {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/v1/health", nil)
	if err != nil {
		return nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil
	}

	return &Backend{
		ID:       baseURL,
		Name:     report.Service,
		Version:  report.Version,
		URL:      baseURL,
		Status:   "online",
		Latency:  time.Since(start).Milliseconds(),
		LastSeen: time.Now(),
	}
}

// Backends returns all discovered backends.
func (s *Service) Backends() []*Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Backend, 0, len(s.backends))
	for _, b := range s.backends {
		list = append(list, b)
	}
	return list
}

// Lookup returns a backend by ID.
func (s *Service) Lookup(id string) *Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backends[id]
}

// AddCustomURL adds a URL to probe on subsequent scans.
func (s *Service) AddCustomURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.cfg.CustomURLs {
		if u == url {
			return
		}
	}
	s.cfg.CustomURLs = append(s.cfg.CustomURLs, url)
}
