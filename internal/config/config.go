// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds configuration for the chat client and the local
// development server.
type Config struct {
	ServerURL string // chat server base URL the client talks to
	UserID    int64  // identity the client connects as
	Port      string // devserver listen port
	DBPath    string // devserver sqlite path
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL: getEnv("CHAT_SERVER_URL", "http://localhost:8080"),
		UserID:    getEnvInt64("CHAT_USER_ID", 1),
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("DB_PATH", "./data/chat.db"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CHAT_SERVER_URL cannot be empty")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("CHAT_SERVER_URL must start with http:// or https://")
	}
	if c.UserID <= 0 {
		return fmt.Errorf("CHAT_USER_ID must be positive")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
