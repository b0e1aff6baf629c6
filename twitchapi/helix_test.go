package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeHelix struct {
	userCalls   atomic.Int64
	streamCalls atomic.Int64
	videoCalls  atomic.Int64

	users   []UserData
	streams []map[string]any
	videos  []map[string]any
}

func (f *fakeHelix) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600, "token_type": "bearer"})
	})
	mux.HandleFunc("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		f.userCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": f.users})
	})
	mux.HandleFunc("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		f.streamCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": f.streams})
	})
	mux.HandleFunc("/helix/videos", func(w http.ResponseWriter, r *http.Request) {
		f.videoCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": f.videos})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeHelix) *Client {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	hc := &http.Client{Transport: &rewriteTransport{host: server.URL}}
	return &Client{
		ClientID: "test-client",
		Tokens: &TokenSource{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			Store:        &MemoryStore{},
			HTTPClient:   hc,
		},
		HTTPClient: hc,
	}
}

func TestGetUserNotFound(t *testing.T) {
	c := newTestClient(t, &fakeHelix{})
	_, err := c.GetUser(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser() error = %v, want ErrNotFound", err)
	}
}

func TestGetUserCachedCaseInsensitive(t *testing.T) {
	f := &fakeHelix{users: []UserData{{ID: "42", Login: "alice", DisplayName: "Alice"}}}
	c := newTestClient(t, f)
	ctx := context.Background()

	u, err := c.GetUser(ctx, "Alice")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if u.ID != "42" {
		t.Errorf("GetUser().ID = %s, want 42", u.ID)
	}

	// Different casing must hit the cache.
	if _, err := c.GetUser(ctx, "ALICE"); err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if n := f.userCalls.Load(); n != 1 {
		t.Errorf("expected 1 upstream user call, got %d", n)
	}
}

func TestCheckLiveNotLiveIsCached(t *testing.T) {
	f := &fakeHelix{users: []UserData{{ID: "42", Login: "alice"}}}
	c := newTestClient(t, f)
	ctx := context.Background()

	s, err := c.CheckLive(ctx, "alice")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if s != nil {
		t.Fatalf("CheckLive() = %+v, want not live", s)
	}

	// Second poll inside the TTL: the not-live marker answers, zero HTTP.
	userCalls, streamCalls := f.userCalls.Load(), f.streamCalls.Load()
	s, err = c.CheckLive(ctx, "alice")
	if err != nil || s != nil {
		t.Fatalf("CheckLive() = (%v, %v), want (nil, nil)", s, err)
	}
	if f.userCalls.Load() != userCalls || f.streamCalls.Load() != streamCalls {
		t.Errorf("cached not-live answer issued upstream calls")
	}
}

func TestCheckLiveNormalizesAndAttachesUser(t *testing.T) {
	f := &fakeHelix{
		users: []UserData{{ID: "42", Login: "alice", DisplayName: "Alice"}},
		streams: []map[string]any{{
			"id":            "s1",
			"user_id":       "42",
			"user_login":    "alice",
			"user_name":     "Alice",
			"game_name":     "Tetris",
			"type":          "live",
			"title":         "speedrun",
			"viewer_count":  512,
			"started_at":    "2026-08-28T10:00:00Z",
			"language":      "en",
			"thumbnail_url": "https://static-cdn.example/previews/{width}x{height}.jpg",
			"tags":          []string{"speedrun"},
		}},
	}
	c := newTestClient(t, f)

	s, err := c.CheckLive(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if s == nil {
		t.Fatal("CheckLive() = nil, want live stream")
	}
	if s.ThumbnailURL != "https://static-cdn.example/previews/1920x1080.jpg" {
		t.Errorf("thumbnail not normalized: %s", s.ThumbnailURL)
	}
	if s.User.DisplayName != "Alice" {
		t.Errorf("identity not attached: %+v", s.User)
	}
	if got, want := s.URL(), "https://www.twitch.tv/alice"; got != want {
		t.Errorf("URL() = %s, want %s", got, want)
	}
}

func TestCheckLiveCachedHitReturnsCopy(t *testing.T) {
	f := &fakeHelix{
		users: []UserData{{ID: "42", Login: "alice"}},
		streams: []map[string]any{{
			"id": "s1", "user_login": "alice", "title": "first",
			"tags": []string{"speedrun", "english"},
		}},
	}
	c := newTestClient(t, f)
	ctx := context.Background()

	first, err := c.CheckLive(ctx, "alice")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	first.Title = "mutated by caller"
	first.Tags[0] = "mutated tag"

	second, err := c.CheckLive(ctx, "alice")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if second.Title != "first" {
		t.Errorf("cache entry shared with caller: %s", second.Title)
	}
	if second.Tags[0] != "speedrun" {
		t.Errorf("cached Tags backing array shared with caller: %v", second.Tags)
	}

	// The cached-hit copy must be isolated too, not just the first answer.
	second.Tags[1] = "also mutated"
	third, err := c.CheckLive(ctx, "alice")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if third.Tags[1] != "english" {
		t.Errorf("cached-hit Tags shared with caller: %v", third.Tags)
	}
	if n := f.streamCalls.Load(); n != 1 {
		t.Errorf("expected 1 upstream stream call, got %d", n)
	}
}

func TestCheckLiveUnknownUserPropagates(t *testing.T) {
	c := newTestClient(t, &fakeHelix{})
	_, err := c.CheckLive(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("CheckLive() error = %v, want ErrNotFound", err)
	}
}

func TestLatestVOD(t *testing.T) {
	f := &fakeHelix{
		users: []UserData{{ID: "42", Login: "alice"}},
		videos: []map[string]any{{
			"id":            "v9",
			"user_id":       "42",
			"title":         "yesterday's run",
			"url":           "https://www.twitch.tv/videos/v9",
			"thumbnail_url": "https://static-cdn.example/v9/thumb/%{width}x%{height}.jpg",
			"duration":      "3h10m",
		}},
	}
	c := newTestClient(t, f)

	v, err := c.LatestVOD(context.Background(), "alice")
	if err != nil {
		t.Fatalf("LatestVOD() error = %v", err)
	}
	if v.ID != "v9" {
		t.Errorf("LatestVOD().ID = %s, want v9", v.ID)
	}
	if v.ThumbnailURL != "https://static-cdn.example/v9/thumb/320x180.jpg" {
		t.Errorf("VOD thumbnail not normalized: %s", v.ThumbnailURL)
	}
}

func TestLatestVODNoArchive(t *testing.T) {
	f := &fakeHelix{users: []UserData{{ID: "42", Login: "alice"}}}
	c := newTestClient(t, f)

	_, err := c.LatestVOD(context.Background(), "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestVOD() error = %v, want ErrNotFound", err)
	}
}

func TestLatestVODNeverCached(t *testing.T) {
	f := &fakeHelix{
		users:  []UserData{{ID: "42", Login: "alice"}},
		videos: []map[string]any{{"id": "v9"}},
	}
	c := newTestClient(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.LatestVOD(ctx, "alice"); err != nil {
			t.Fatalf("LatestVOD() error = %v", err)
		}
	}
	if n := f.videoCalls.Load(); n != 3 {
		t.Errorf("expected 3 upstream video calls (uncached), got %d", n)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	f := &fakeHelix{users: []UserData{{ID: "42", Login: "alice"}}}
	c := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.CheckLive(ctx, "alice"); err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	c.ClearCache("Alice") // case-normalized

	if _, err := c.CheckLive(ctx, "alice"); err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if n := f.streamCalls.Load(); n != 2 {
		t.Errorf("expected refetch after ClearCache, got %d stream calls", n)
	}
}

func TestThumbnailNormalizationIdempotent(t *testing.T) {
	in := "https://cdn.example/{width}x{height}.jpg"
	once := normalizeStreamThumbnail(in)
	if normalizeStreamThumbnail(once) != once {
		t.Errorf("stream rewrite is not idempotent")
	}

	vin := "https://cdn.example/%{width}x%{height}.jpg"
	vonce := normalizeVODThumbnail(vin)
	if normalizeVODThumbnail(vonce) != vonce {
		t.Errorf("vod rewrite is not idempotent")
	}
}
