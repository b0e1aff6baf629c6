// Package config loads environment variables and provides a typed Config for
// constructing the platform clients. It applies sensible defaults so callers
// can run locally with minimal setup; credentials may equally be passed to
// the clients directly, the environment is a convenience only.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Twitch (client-credentials flow)
	TwitchClientID     string
	TwitchClientSecret string

	// YouTube (API-key flow)
	YouTubeAPIKey string

	// Caching
	CacheTTL       time.Duration
	TokenCachePath string

	// Transport
	RequestTimeout time.Duration

	// Optional shared token storage
	DBDsn string

	// Direct extraction
	YTDLPPath string
}

// Load reads environment variables and applies defaults, loading a local
// .env first when present. Missing credentials don't fail here; the client
// for the unconfigured provider will fail at first use instead.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		YouTubeAPIKey:      os.Getenv("YOUTUBE_API_KEY"),
		TokenCachePath:     os.Getenv("TOKEN_CACHE_PATH"),
		DBDsn:              os.Getenv("DB_DSN"),
		YTDLPPath:          os.Getenv("YTDLP_PATH"),
		CacheTTL:           300 * time.Second,
		RequestTimeout:     10 * time.Second,
	}

	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CACHE_TTL_SECONDS %q", v)
		}
		cfg.CacheTTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS %q", v)
		}
		cfg.RequestTimeout = time.Duration(n) * time.Second
	}

	return cfg, nil
}

// ValidateTwitchReady checks required fields for the Twitch client.
func (c *Config) ValidateTwitchReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	return nil
}

// ValidateYouTubeReady checks required fields for the YouTube API client.
// Direct-extraction mode needs no key.
func (c *Config) ValidateYouTubeReady() error {
	if c.YouTubeAPIKey == "" {
		return fmt.Errorf("missing youtube env: require YOUTUBE_API_KEY")
	}
	return nil
}

// SetupLogging builds a slog.Logger from LOG_LEVEL and LOG_FORMAT
// (text | json) and returns it without touching process-wide state; pass it
// to the clients, or call slog.SetDefault yourself if you want it global.
func SetupLogging() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(handler)
}
