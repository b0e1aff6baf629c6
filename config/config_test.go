package config

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL != 300*time.Second {
		t.Errorf("CacheTTL = %v, want 300s", cfg.CacheTTL)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
}

func TestLoadTTLOverride(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "60")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL != 60*time.Second {
		t.Errorf("CacheTTL = %v, want 60s", cfg.CacheTTL)
	}
}

func TestLoadTTLInvalid(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "soon")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid TTL should return error")
	}

	t.Setenv("CACHE_TTL_SECONDS", "-5")
	if _, err := Load(); err == nil {
		t.Error("Load() with negative TTL should return error")
	}
}

func TestValidateTwitchReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateTwitchReady(); err == nil {
		t.Error("ValidateTwitchReady() with empty creds should return error")
	}
	cfg.TwitchClientID = "id"
	cfg.TwitchClientSecret = "secret"
	if err := cfg.ValidateTwitchReady(); err != nil {
		t.Errorf("ValidateTwitchReady() error = %v", err)
	}
}

func TestValidateYouTubeReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateYouTubeReady(); err == nil {
		t.Error("ValidateYouTubeReady() with empty key should return error")
	}
	cfg.YouTubeAPIKey = "key"
	if err := cfg.ValidateYouTubeReady(); err != nil {
		t.Errorf("ValidateYouTubeReady() error = %v", err)
	}
}

func TestSetupLoggingLevels(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	logger := SetupLogging()
	if logger == nil {
		t.Fatal("SetupLogging() = nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not honored")
	}
}
