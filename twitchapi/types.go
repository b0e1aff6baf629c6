package twitchapi

import (
	"slices"
	"strings"
)

// UserData is a Twitch user/channel identity record.
type UserData struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	ViewCount       int    `json:"view_count"`
	CreatedAt       string `json:"created_at"`
}

// StreamData describes a currently-live broadcast. User is the resolved
// identity of the broadcaster.
type StreamData struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	UserLogin    string   `json:"user_login"`
	UserName     string   `json:"user_name"`
	GameID       string   `json:"game_id"`
	GameName     string   `json:"game_name"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	ViewerCount  int      `json:"viewer_count"`
	StartedAt    string   `json:"started_at"`
	Language     string   `json:"language"`
	ThumbnailURL string   `json:"thumbnail_url"`
	IsMature     bool     `json:"is_mature"`
	Tags         []string `json:"tags"`

	User UserData `json:"-"`
}

// URL returns the channel page for the live broadcast.
func (s *StreamData) URL() string {
	return "https://www.twitch.tv/" + s.UserLogin
}

// clone returns a copy that shares nothing with the receiver; cached stream
// records are handed out through it so callers cannot mutate the cache.
func (s *StreamData) clone() *StreamData {
	out := *s
	out.Tags = slices.Clone(s.Tags)
	return &out
}

// VODData describes an archived broadcast.
type VODData struct {
	ID            string `json:"id"`
	StreamID      string `json:"stream_id"`
	UserID        string `json:"user_id"`
	UserLogin     string `json:"user_login"`
	UserName      string `json:"user_name"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CreatedAt     string `json:"created_at"`
	PublishedAt   string `json:"published_at"`
	URL           string `json:"url"`
	ThumbnailURL  string `json:"thumbnail_url"`
	Viewable      string `json:"viewable"`
	ViewCount     int    `json:"view_count"`
	Language      string `json:"language"`
	Type          string `json:"type"`
	Duration      string `json:"duration"`
	MutedSegments []struct {
		Duration int `json:"duration"`
		Offset   int `json:"offset"`
	} `json:"muted_segments"`
}

// Helix hands back thumbnail URLs containing template placeholders; callers
// get concrete resolutions. Both rewrites are idempotent.

func normalizeStreamThumbnail(u string) string {
	return strings.ReplaceAll(u, "{width}x{height}", "1920x1080")
}

func normalizeVODThumbnail(u string) string {
	return strings.ReplaceAll(u, "%{width}x%{height}", "320x180")
}
