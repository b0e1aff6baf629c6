package twitchapi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.cache")
	fs := NewFileStore(path)
	ctx := context.Background()

	obtained := time.Now().Truncate(time.Second)
	require.NoError(t, fs.Save(ctx, &Token{
		AccessToken: "abc",
		ExpiresIn:   3600,
		TokenType:   "bearer",
		ObtainedAt:  obtained,
	}))

	tok, err := fs.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, 3600, tok.ExpiresIn)
	assert.True(t, tok.ObtainedAt.Equal(obtained))
}

func TestFileStoreAbsentIsNotAnError(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "nope.cache"))
	tok, err := fs.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, tok)
}

func TestFileStoreMalformedIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cache")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	fs := NewFileStore(path)
	tok, err := fs.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, tok)
}

func TestFileStoreDefaultPath(t *testing.T) {
	fs := NewFileStore("")
	assert.Equal(t, DefaultCachePath, fs.Path)
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.cache")
	fs := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, &Token{AccessToken: "old", ExpiresIn: 60, ObtainedAt: time.Now()}))
	require.NoError(t, fs.Save(ctx, &Token{AccessToken: "new", ExpiresIn: 120, ObtainedAt: time.Now()}))

	tok, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.Equal(t, 120, tok.ExpiresIn)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	var nilTok *Token
	assert.True(t, nilTok.Expired(0))
	assert.True(t, (&Token{}).Expired(0))

	fresh := &Token{AccessToken: "x", ExpiresIn: 3600, ObtainedAt: now}
	assert.False(t, fresh.Expired(60*time.Second))
	assert.False(t, fresh.Expired(300*time.Second))

	// Lifetime remaining is inside the margin.
	nearly := &Token{AccessToken: "x", ExpiresIn: 30, ObtainedAt: now}
	assert.True(t, nearly.Expired(60*time.Second))

	old := &Token{AccessToken: "x", ExpiresIn: 3600, ObtainedAt: now.Add(-2 * time.Hour)}
	assert.True(t, old.Expired(60*time.Second))
}
