package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.ProviderURL != "https://api.anthropic.com" {
		t.Errorf("unexpected provider URL: %q", cfg.ProviderURL)
	}
	if cfg.ProviderMaxTokens != 500 {
		t.Errorf("unexpected max tokens: %d", cfg.ProviderMaxTokens)
	}
	if cfg.ProviderTimeout != time.Minute {
		t.Errorf("unexpected provider timeout: %v", cfg.ProviderTimeout)
	}
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("unexpected ping interval: %v", cfg.PingInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PROVIDER_MODEL", "model-b")
	t.Setenv("PROVIDER_TIMEOUT_MS", "2500")

	cfg := Load()

	if cfg.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTPPort)
	}
	if cfg.ProviderModel != "model-b" {
		t.Errorf("unexpected model: %q", cfg.ProviderModel)
	}
	if cfg.ProviderTimeout != 2500*time.Millisecond {
		t.Errorf("unexpected timeout: %v", cfg.ProviderTimeout)
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg := Load()
	if cfg.HTTPPort != 8080 {
		t.Errorf("expected default port for invalid value, got %d", cfg.HTTPPort)
	}
}
