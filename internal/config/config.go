// Package config loads environment configuration. Each run reads its
// settings once at startup; nothing here is mutable afterwards.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	NatsURL     string `envconfig:"NATS_URL"`
	Port        int    `envconfig:"PORT" default:"8080"`

	// Groups are processed separately with their own prefixes.
	Chat     Chat     `ignored:"true"`
	OpenAI   OpenAI   `ignored:"true"`
	Sync     Sync     `ignored:"true"`
	Backfill Backfill `ignored:"true"`
	Classify Classify `ignored:"true"`
}

// Chat configures the external support-chat API client.
type Chat struct {
	BaseURL         string `envconfig:"BASE_URL"`
	APIKey          string `envconfig:"API_KEY"`
	RateLimitPerMin int    `envconfig:"RATE_LIMIT_PER_MIN" default:"60"`
}

// OpenAI configures the classification capability.
type OpenAI struct {
	APIKey string `envconfig:"API_KEY"`
	Model  string `envconfig:"MODEL" default:"gpt-4o-mini"`
}

type Sync struct {
	LookbackHours int `envconfig:"LOOKBACK_HOURS" default:"2"`
}

type Backfill struct {
	BatchSize    int `envconfig:"BATCH_SIZE" default:"50"`
	ConvDelayMS  int `envconfig:"CONV_DELAY_MS" default:"1000"`
	ChunkDelayMS int `envconfig:"CHUNK_DELAY_MS" default:"5000"`
}

type Classify struct {
	MaxConversations int `envconfig:"MAX_CONVERSATIONS" default:"100"`
}

// Load reads all configuration groups from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	if err := envconfig.Process("CHAT", &cfg.Chat); err != nil {
		return cfg, fmt.Errorf("process chat env: %w", err)
	}
	if err := envconfig.Process("OPENAI", &cfg.OpenAI); err != nil {
		return cfg, fmt.Errorf("process openai env: %w", err)
	}
	if err := envconfig.Process("SYNC", &cfg.Sync); err != nil {
		return cfg, fmt.Errorf("process sync env: %w", err)
	}
	if err := envconfig.Process("BACKFILL", &cfg.Backfill); err != nil {
		return cfg, fmt.Errorf("process backfill env: %w", err)
	}
	if err := envconfig.Process("CLASSIFY", &cfg.Classify); err != nil {
		return cfg, fmt.Errorf("process classify env: %w", err)
	}
	return cfg, nil
}

// RequireDatabase fails fast when the store connection string is absent.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireChatAPI fails fast when chat API credentials are absent.
func (c Config) RequireChatAPI() error {
	if c.Chat.BaseURL == "" {
		return fmt.Errorf("CHAT_BASE_URL is required")
	}
	if c.Chat.APIKey == "" {
		return fmt.Errorf("CHAT_API_KEY is required")
	}
	return nil
}

// RequireOpenAI fails fast when the classifier credential is absent.
func (c Config) RequireOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}
