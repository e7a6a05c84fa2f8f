// Package config provides configuration for the relay server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay server configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Completion provider
	ProviderURL       string
	ProviderAPIKey    string
	ProviderModel     string
	ProviderMaxTokens int
	ProviderTimeout   time.Duration

	// WebSocket feed
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel string
}

// Load loads configuration from a .env file (if present) and environment
// variables.
func Load() *Config {
	// Missing .env is fine; env vars alone are enough.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:chatrelay.db?cache=shared&mode=rwc"),
		ProviderURL:       getEnv("PROVIDER_URL", "https://api.anthropic.com"),
		ProviderAPIKey:    getEnv("PROVIDER_API_KEY", ""),
		ProviderModel:     getEnv("PROVIDER_MODEL", "claude-3-haiku-20240307"),
		ProviderMaxTokens: getEnvInt("PROVIDER_MAX_TOKENS", 500),
		ProviderTimeout:   time.Duration(getEnvInt("PROVIDER_TIMEOUT_MS", 60000)) * time.Millisecond,
		ReadTimeout:       time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WriteTimeout:      time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		PingInterval:      time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		MaxMessageSize:    int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
