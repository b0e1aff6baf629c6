package youtubeapi

import (
	"fmt"

	yt "google.golang.org/api/youtube/v3"
)

// Mode selects how CheckLive answers: through the Data API (quota-metered,
// best-effort) or by direct page extraction (no key, slower).
type Mode int

const (
	ModeAPI Mode = iota
	ModeDirect
)

// APIStream is the Data API variant of a live stream record
// (video snippet plus liveStreamingDetails).
type APIStream struct {
	VideoID            string
	Title              string
	Description        string
	PublishedAt        string
	ChannelID          string
	ChannelTitle       string
	CategoryID         string
	Tags               []string
	Thumbnails         *yt.ThumbnailDetails
	ConcurrentViewers  uint64
	ActualStartTime    string
	ScheduledStartTime string
	ActiveLiveChatID   string
}

// URL returns the video page for the live broadcast.
func (s *APIStream) URL() string {
	return "https://www.youtube.com/watch?v=" + s.VideoID
}

// DirectStream is the flat record produced by page extraction. Its field set
// deliberately differs from APIStream; the two schemas are permanently
// distinct variants, not alternate encodings of one record.
type DirectStream struct {
	Title             string `json:"fulltitle"`
	Timestamp         int64  `json:"timestamp"`
	Channel           string `json:"channel"`
	ConcurrentViewers int64  `json:"concurrent_view_count"`
	Thumbnail         string `json:"thumbnail"`
	Description       string `json:"description"`
	ChannelURL        string `json:"channel_url"`
	PageURL           string `json:"webpage_url"`
}

// Status is the tagged result of CheckLive. When Live is true exactly one of
// API or Direct is populated, according to the mode used.
type Status struct {
	Live   bool
	API    *APIStream
	Direct *DirectStream
}

// KeyValidationError reports that the liveness probe for the API key failed.
type KeyValidationError struct {
	Err error
}

func (e *KeyValidationError) Error() string {
	return fmt.Sprintf("youtube api key validation failed (API disabled for the project, quota exhausted, or malformed key): %v", e.Err)
}

func (e *KeyValidationError) Unwrap() error { return e.Err }
