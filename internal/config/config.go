// Copyright (c) 2026 Mina Ibrahim
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GmailConfig holds the OAuth client for the Gmail account being watched.
// TokenPath is the single location where the authorized token lives; it is
// resolved once at startup and never probed for elsewhere.
type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenPath    string `yaml:"token_path"`
}

// Config holds all configuration for the forwarder service.
type Config struct {
	Gmail GmailConfig

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL      string
	EventsChannel string

	// Pipeline
	PollInterval   time.Duration // scheduler cadence when no monitors are active
	ErrorBackoff   time.Duration // sleep after a failed poll cycle
	Lookback       time.Duration // how far back the Gmail query window extends
	WebhookTimeout time.Duration // per-webhook POST timeout

	// HTTP API
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Gmail struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURL  string `yaml:"redirect_url"`
		TokenPath    string `yaml:"token_path"`
	} `yaml:"gmail"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL           string `yaml:"url"`
		EventsChannel string `yaml:"events_channel"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is not
// fatal — everything has an env var or default.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Gmail: GmailConfig{
			ClientID:     firstNonEmpty(raw.Gmail.ClientID, os.Getenv("GMAIL_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Gmail.ClientSecret, os.Getenv("GMAIL_CLIENT_SECRET")),
			RedirectURL:  firstNonEmpty(raw.Gmail.RedirectURL, envOrDefault("GMAIL_REDIRECT_URL", "http://localhost:8000/api/auth/callback")),
			TokenPath:    firstNonEmpty(raw.Gmail.TokenPath, envOrDefault("GMAIL_TOKEN_PATH", "token.json")),
		},
		DatabaseURL:    firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/signal_forwarder")),
		RedisURL:       firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EventsChannel:  firstNonEmpty(raw.Redis.EventsChannel, envOrDefault("EVENTS_CHANNEL", "emails:processed")),
		PollInterval:   envOrDefaultDuration("POLL_INTERVAL", 60*time.Second),
		ErrorBackoff:   envOrDefaultDuration("ERROR_BACKOFF", 60*time.Second),
		Lookback:       envOrDefaultDuration("POLL_LOOKBACK", 24*time.Hour),
		WebhookTimeout: envOrDefaultDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		Port:           envOrDefaultInt("PORT", 8000),
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
