// Package config provides configuration management for CoachFlow
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	User         UserConfig         `mapstructure:"user"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Session      SessionConfig      `mapstructure:"session"`
}

// UserConfig identifies the user
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// ConversationConfig configures the conversation store
type ConversationConfig struct {
	MaxRecentMessages int           `mapstructure:"max_recent_messages"`
	MaxTopicHistory   int           `mapstructure:"max_topic_history"`
	SessionDuration   time.Duration `mapstructure:"session_duration"`
}

// DetectionConfig configures topic/emotion detection
type DetectionConfig struct {
	ServerURL                string        `mapstructure:"server_url"`
	Timeout                  time.Duration `mapstructure:"timeout"`
	EmotionResponseThreshold float64       `mapstructure:"emotion_response_threshold"`
	ContextMessages          int           `mapstructure:"context_messages"`
}

// MemoryConfig configures memory retrieval
type MemoryConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Enabled   bool          `mapstructure:"enabled"`
	Limit     int           `mapstructure:"limit"`
}

// QueueConfig configures the outbound message queue
type QueueConfig struct {
	Cooldown   time.Duration `mapstructure:"cooldown"`
	MessageTTL time.Duration `mapstructure:"message_ttl"`
}

// SessionConfig configures the live speech session connection
type SessionConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		User: UserConfig{
			ID: "default-user",
		},
		Conversation: ConversationConfig{
			MaxRecentMessages: 10,
			MaxTopicHistory:   5,
			SessionDuration:   30 * time.Minute,
		},
		Detection: DetectionConfig{
			ServerURL:                "http://localhost:8080",
			Timeout:                  10 * time.Second,
			EmotionResponseThreshold: 0.6,
			ContextMessages:          6,
		},
		Memory: MemoryConfig{
			ServerURL: "http://localhost:8080",
			Timeout:   15 * time.Second,
			Enabled:   true,
			Limit:     5,
		},
		Queue: QueueConfig{
			Cooldown:   15 * time.Second,
			MessageTTL: 60 * time.Second,
		},
		Session: SessionConfig{
			ServerURL:      "ws://localhost:9090/live",
			Timeout:        30 * time.Second,
			ReconnectDelay: 5 * time.Second,
			MaxReconnects:  10,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".coachflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("COACHFLOW")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".coachflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("user", cfg.User)
	viper.Set("conversation", cfg.Conversation)
	viper.Set("detection", cfg.Detection)
	viper.Set("memory", cfg.Memory)
	viper.Set("queue", cfg.Queue)
	viper.Set("session", cfg.Session)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// Watch re-reads the config file on change and invokes onChange with the
// fresh configuration. Unparseable edits are ignored; the previous config
// stays in effect.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".coachflow"), nil
}
