package twitchapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultCachePath is where FileStore keeps the token when no path is given.
const DefaultCachePath = "stream.cache"

// Token is the cached app access token plus the provider-issued lifetime.
// ObtainedAt is set locally when the exchange response is received.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int       `json:"expires_in"`
	TokenType   string    `json:"token_type,omitempty"`
	ObtainedAt  time.Time `json:"obtained_at"`
}

// Expired reports whether the token's remaining lifetime is inside margin.
func (t *Token) Expired(margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	expiry := t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
	return time.Until(expiry) <= margin
}

// TokenStore persists a single token slot. Load returns (nil, nil) when no
// usable token exists; callers fall back to a fresh exchange. Stores do not
// synchronize concurrent writers; last write wins.
type TokenStore interface {
	Load(ctx context.Context) (*Token, error)
	Save(ctx context.Context, tok *Token) error
}

// FileStore keeps the token as a JSON file at a fixed path. A missing or
// malformed file reads as no token.
type FileStore struct {
	Path   string
	Logger *slog.Logger
}

// NewFileStore returns a FileStore at path, or DefaultCachePath when empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultCachePath
	}
	return &FileStore{Path: path}
}

func (fs *FileStore) log() *slog.Logger {
	if fs.Logger != nil {
		return fs.Logger
	}
	return slog.Default()
}

func (fs *FileStore) Load(ctx context.Context) (*Token, error) {
	b, err := os.ReadFile(fs.Path)
	if err != nil {
		if os.IsNotExist(err) {
			fs.log().Debug("token cache does not exist", slog.String("path", fs.Path))
		} else {
			fs.log().Warn("could not read token cache", slog.String("path", fs.Path), slog.Any("err", err))
		}
		return nil, nil
	}
	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		fs.log().Warn("malformed token cache, ignoring", slog.String("path", fs.Path), slog.Any("err", err))
		return nil, nil
	}
	return &tok, nil
}

func (fs *FileStore) Save(ctx context.Context, tok *Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.Path, b, 0o600); err != nil {
		fs.log().Warn("could not write token cache", slog.String("path", fs.Path), slog.Any("err", err))
		return err
	}
	return nil
}

// MemoryStore holds the token in process memory. Useful for tests and for
// callers that do not want disk persistence.
type MemoryStore struct {
	mu  sync.Mutex
	tok *Token
}

func (ms *MemoryStore) Load(ctx context.Context) (*Token, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.tok, nil
}

func (ms *MemoryStore) Save(ctx context.Context, tok *Token) error {
	ms.mu.Lock()
	ms.tok = tok
	ms.mu.Unlock()
	return nil
}
