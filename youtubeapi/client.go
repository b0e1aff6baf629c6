// Package youtubeapi contains the YouTube platform client: an API-key
// liveness check plus TTL-cached handle resolution and live-stream lookup
// through the Data API, and a yt-dlp fallback that bypasses the API entirely.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/streampoll/cache"
	"github.com/onnwee/streampoll/telemetry"
)

// DefaultTimeout applies to every Data API request.
const DefaultTimeout = 10 * time.Second

// ErrNotFound indicates no channel matches the given handle.
var ErrNotFound = errors.New("not found")

// liveEntry is the stream-partition payload. An empty videoID is the
// explicit "known no live video" marker, distinguishable from a cache miss.
type liveEntry struct {
	videoID string
}

// keyTransport appends the API key to every outgoing request.
type keyTransport struct {
	key string
	rt  http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	q := clone.URL.Query()
	q.Set("key", t.key)
	clone.URL.RawQuery = q.Encode()
	return t.rt.RoundTrip(clone)
}

// Client answers "is this channel live" against the YouTube Data API.
// The stream partition is keyed by the resolved channel id, never the handle:
// the handle-to-id mapping has its own partition, and id keying lets two
// spellings of one channel share a single live-state entry.
type Client struct {
	Logger    *slog.Logger
	Extractor Extractor

	svc      *yt.Service
	hc       *http.Client
	channels *cache.Store[string]
	streams  *cache.Store[liveEntry]
}

// NewClient builds a client for the given API key with a TTL (<=0 means
// 300s) shared by the channel and stream partitions. Extra options are
// passed through to the Data API service (tests use option.WithEndpoint).
func NewClient(ctx context.Context, apiKey string, ttl time.Duration, extra ...option.ClientOption) (*Client, error) {
	hc := &http.Client{
		Timeout: DefaultTimeout,
		Transport: &keyTransport{
			key: apiKey,
			rt:  otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, extra...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{
		Extractor: &YTDLP{},
		svc:       svc,
		hc:        hc,
		channels:  cache.New[string]("youtube_channels", ttl),
		streams:   cache.New[liveEntry]("youtube_streams", ttl),
	}, nil
}

func (c *Client) log(ctx context.Context) *slog.Logger {
	return telemetry.LoggerWithCorr(ctx, c.Logger)
}

// CheckKey issues one cheap probe to confirm the API key is usable. It is
// advisory: call it once per session or poll context, not per request, to
// avoid burning quota.
func (c *Client) CheckKey(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "youtube.checkkey",
		attribute.String("provider", "youtube"))
	defer span.End()

	var err error
	telemetry.TimeUpstream("youtube", func() {
		_, err = c.svc.Search.List([]string{"snippet"}).
			Q("live").Type("video").MaxResults(1).Context(ctx).Do()
	})
	telemetry.CountUpstream("youtube", err != nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return &KeyValidationError{Err: err}
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

// ResolveChannelID resolves a channel handle to its channel id, serving
// repeat lookups from the channel partition within the TTL window.
func (c *Client) ResolveChannelID(ctx context.Context, handle string) (string, error) {
	key := strings.ToLower(strings.TrimPrefix(handle, "@"))
	if id, ok := c.channels.Get(key); ok {
		return id, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "youtube.channels",
		attribute.String("provider", "youtube"))
	defer span.End()

	var resp *yt.ChannelListResponse
	var err error
	telemetry.TimeUpstream("youtube", func() {
		resp, err = c.svc.Channels.List([]string{"snippet"}).
			ForHandle(handle).Context(ctx).Do()
	})
	telemetry.CountUpstream("youtube", err != nil)
	if err != nil {
		telemetry.RecordError(span, err)
		c.log(ctx).Error("channel lookup failed", slog.String("handle", handle), slog.Any("err", err))
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("youtube channel %q: %w", handle, ErrNotFound)
	}
	id := resp.Items[0].Id
	c.channels.Set(key, id)
	telemetry.SetSpanSuccess(span)
	return id, nil
}

// FindLiveVideoID returns the id of the channel's current live video, or ""
// when nothing is live. The empty answer is cached explicitly so repeated
// polls inside the TTL window short-circuit without a search call.
func (c *Client) FindLiveVideoID(ctx context.Context, channelID string) (string, error) {
	if e, ok := c.streams.Get(channelID); ok {
		return e.videoID, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "youtube.search",
		attribute.String("provider", "youtube"))
	defer span.End()

	var resp *yt.SearchListResponse
	var err error
	telemetry.TimeUpstream("youtube", func() {
		resp, err = c.svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).EventType("live").Type("video").Context(ctx).Do()
	})
	telemetry.CountUpstream("youtube", err != nil)
	if err != nil {
		telemetry.RecordError(span, err)
		c.log(ctx).Error("live search failed", slog.String("channel_id", channelID), slog.Any("err", err))
		return "", err
	}

	videoID := ""
	if len(resp.Items) > 0 && resp.Items[0].Id != nil {
		videoID = resp.Items[0].Id.VideoId
	}
	c.streams.Set(channelID, liveEntry{videoID: videoID})
	telemetry.SetSpanSuccess(span)
	return videoID, nil
}

// CheckLive reports whether the channel behind handle is streaming.
//
// ModeAPI validates the key, resolves the handle, searches for a live video
// and fetches its details. A rejected key is a configuration mistake and
// surfaces as *KeyValidationError; every post-validation failure, ErrNotFound
// included, is logged and downgraded to a not-live answer, so transient
// lookup trouble never masquerades as an outage worth raising.
//
// ModeDirect skips the API and runs the extraction collaborator against the
// conventional live URL; a failed or empty extraction is a not-live answer.
func (c *Client) CheckLive(ctx context.Context, handle string, mode Mode) (Status, error) {
	switch mode {
	case ModeAPI:
		s, err := c.checkLiveAPI(ctx, handle)
		if err != nil {
			var kerr *KeyValidationError
			if errors.As(err, &kerr) {
				return Status{}, err
			}
			c.log(ctx).Warn("api liveness check failed, reporting not live",
				slog.String("handle", handle), slog.Any("err", err))
			return Status{}, nil
		}
		if s == nil {
			c.log(ctx).Info("channel is not live", slog.String("handle", handle))
			return Status{}, nil
		}
		c.log(ctx).Info("channel is live", slog.String("handle", handle), slog.String("title", s.Title))
		return Status{Live: true, API: s}, nil
	case ModeDirect:
		return c.checkLiveDirect(ctx, handle), nil
	default:
		return Status{}, fmt.Errorf("unknown mode %d", mode)
	}
}

func (c *Client) checkLiveAPI(ctx context.Context, handle string) (*APIStream, error) {
	if err := c.CheckKey(ctx); err != nil {
		return nil, err
	}
	channelID, err := c.ResolveChannelID(ctx, handle)
	if err != nil {
		return nil, err
	}
	videoID, err := c.FindLiveVideoID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if videoID == "" {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "youtubeapi", "youtube.videos",
		attribute.String("provider", "youtube"))
	defer span.End()

	var resp *yt.VideoListResponse
	telemetry.TimeUpstream("youtube", func() {
		resp, err = c.svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).
			Id(videoID).Context(ctx).Do()
	})
	telemetry.CountUpstream("youtube", err != nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("youtube video %q: %w", videoID, ErrNotFound)
	}
	telemetry.SetSpanSuccess(span)

	v := resp.Items[0]
	s := &APIStream{VideoID: videoID}
	if v.Snippet != nil {
		s.Title = v.Snippet.Title
		s.Description = v.Snippet.Description
		s.PublishedAt = v.Snippet.PublishedAt
		s.ChannelID = v.Snippet.ChannelId
		s.ChannelTitle = v.Snippet.ChannelTitle
		s.CategoryID = v.Snippet.CategoryId
		s.Tags = v.Snippet.Tags
		s.Thumbnails = v.Snippet.Thumbnails
	}
	if v.LiveStreamingDetails != nil {
		s.ConcurrentViewers = v.LiveStreamingDetails.ConcurrentViewers
		s.ActualStartTime = v.LiveStreamingDetails.ActualStartTime
		s.ScheduledStartTime = v.LiveStreamingDetails.ScheduledStartTime
		s.ActiveLiveChatID = v.LiveStreamingDetails.ActiveLiveChatId
	}
	return s, nil
}

func (c *Client) checkLiveDirect(ctx context.Context, handle string) Status {
	ex := c.Extractor
	if ex == nil {
		ex = &YTDLP{Logger: c.Logger}
	}
	url := "https://www.youtube.com/@" + strings.TrimPrefix(handle, "@") + "/live"
	rec, err := ex.Extract(ctx, url)
	if err != nil {
		c.log(ctx).Warn("direct extraction failed, reporting not live",
			slog.String("handle", handle), slog.Any("err", err))
		return Status{}
	}
	if rec == nil {
		c.log(ctx).Info("channel is not live", slog.String("handle", handle))
		return Status{}
	}
	c.log(ctx).Info("channel is live", slog.String("handle", handle), slog.String("title", rec.Title))
	return Status{Live: true, Direct: rec}
}

// ClearCache removes the key from every partition: a handle (lower-cased,
// without any @) from the channel partition, a channel id verbatim from the
// stream partition.
func (c *Client) ClearCache(key string) {
	c.channels.Delete(strings.ToLower(strings.TrimPrefix(key, "@")))
	c.streams.Delete(key)
}

// ClearAll empties every partition.
func (c *Client) ClearAll() {
	c.channels.Clear()
	c.streams.Clear()
}

// Close releases the underlying transport. The client must not be used after.
func (c *Client) Close() {
	if c.hc != nil {
		c.hc.CloseIdleConnections()
	}
}
