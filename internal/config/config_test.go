package config

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assert.Equal(t, "localhost:9090", cfg.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv("RELAY_LISTEN_ADDR", "0.0.0.0:8080")
	t.Setenv("RELAY_TOKEN_TTL", "15m")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
}

func TestLoadServerBadValue(t *testing.T) {
	t.Setenv("RELAY_TOKEN_TTL", "not-a-duration")

	if _, err := LoadServer(); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assert.Equal(t, "localhost:9090", cfg.ServerHost)
}
