// Package twitchapi contains the Twitch platform client: app token lifecycle
// (client-credentials exchange, durable caching, remote validation) and
// TTL-cached liveness, identity, and archive lookups against Helix.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/streampoll/cache"
	"github.com/onnwee/streampoll/telemetry"
)

const helixURL = "https://api.twitch.tv/helix"

// DefaultTimeout applies to every upstream request.
const DefaultTimeout = 10 * time.Second

// ErrNotFound indicates the provider has no entity matching the given name.
// Distinct from "not live": an existing channel that is offline is not an error.
var ErrNotFound = errors.New("not found")

// streamEntry is what the stream partition holds. A nil stream is the
// explicit "known not live" marker, distinguishable from a cache miss.
type streamEntry struct {
	stream *StreamData
	user   UserData
}

// Client answers "is this channel live" against Twitch Helix. Construct with
// NewClient; fields may be overridden before first use.
type Client struct {
	ClientID   string
	Tokens     *TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger

	initOnce sync.Once
	ttl      time.Duration
	users    *cache.Store[UserData]
	streams  *cache.Store[streamEntry]
}

// NewClient builds a client with a file-backed token store at the default
// path and a TTL (<=0 means 300s) shared by the user and stream partitions.
func NewClient(clientID, clientSecret string, ttl time.Duration) *Client {
	c := &Client{
		ClientID: clientID,
		Tokens: &TokenSource{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Store:        NewFileStore(""),
		},
		HTTPClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		ttl: ttl,
	}
	c.init()
	return c
}

func (c *Client) init() {
	c.initOnce.Do(func() {
		c.users = cache.New[UserData]("twitch_users", c.ttl)
		c.streams = cache.New[streamEntry]("twitch_streams", c.ttl)
	})
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) log(ctx context.Context) *slog.Logger {
	return telemetry.LoggerWithCorr(ctx, c.Logger)
}

// GetUser resolves a login name to its identity record, serving repeat
// lookups from the user partition within the TTL window.
func (c *Client) GetUser(ctx context.Context, login string) (UserData, error) {
	c.init()
	key := strings.ToLower(login)
	if u, ok := c.users.Get(key); ok {
		return u, nil
	}

	var body struct {
		Data []UserData `json:"data"`
	}
	q := url.Values{"login": {login}}
	if err := c.doGet(ctx, "/users", q, &body); err != nil {
		return UserData{}, err
	}
	if len(body.Data) == 0 {
		return UserData{}, fmt.Errorf("twitch user %q: %w", login, ErrNotFound)
	}
	u := body.Data[0]
	c.users.Set(key, u)
	return u, nil
}

// CheckLive reports whether the channel is currently streaming. It returns
// (nil, nil) when the channel exists but is offline; that answer is cached as
// an explicit marker so repeated polls inside the TTL issue no upstream calls.
// Identity and token failures propagate.
func (c *Client) CheckLive(ctx context.Context, login string) (*StreamData, error) {
	c.init()
	key := strings.ToLower(login)
	if e, ok := c.streams.Get(key); ok {
		if e.stream == nil {
			return nil, nil
		}
		s := e.stream.clone()
		s.User = e.user
		return s, nil
	}

	user, err := c.GetUser(ctx, login)
	if err != nil {
		return nil, err
	}

	var body struct {
		Data []StreamData `json:"data"`
	}
	q := url.Values{"user_login": {login}}
	if err := c.doGet(ctx, "/streams", q, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		c.streams.Set(key, streamEntry{user: user})
		c.log(ctx).Info("channel is not live", slog.String("login", login))
		return nil, nil
	}

	s := body.Data[0]
	s.ThumbnailURL = normalizeStreamThumbnail(s.ThumbnailURL)
	s.User = user
	c.streams.Set(key, streamEntry{stream: &s, user: user})
	c.log(ctx).Info("channel is live", slog.String("login", login), slog.String("title", s.Title))
	return s.clone(), nil
}

// LatestVOD fetches the most recent archived broadcast for the channel.
// Deliberately uncached: it is meant to be called after a stream ends, when a
// stale answer would be exactly the wrong one.
func (c *Client) LatestVOD(ctx context.Context, login string) (VODData, error) {
	c.init()
	user, err := c.GetUser(ctx, login)
	if err != nil {
		return VODData{}, err
	}

	var body struct {
		Data []VODData `json:"data"`
	}
	q := url.Values{"user_id": {user.ID}, "type": {"archive"}, "first": {"1"}}
	if err := c.doGet(ctx, "/videos", q, &body); err != nil {
		return VODData{}, err
	}
	if len(body.Data) == 0 {
		return VODData{}, fmt.Errorf("no archive for %q: %w", login, ErrNotFound)
	}
	v := body.Data[0]
	v.ThumbnailURL = normalizeVODThumbnail(v.ThumbnailURL)
	return v, nil
}

// ClearCache removes the given login from every partition.
func (c *Client) ClearCache(login string) {
	c.init()
	key := strings.ToLower(login)
	c.users.Delete(key)
	c.streams.Delete(key)
}

// ClearAll empties every partition.
func (c *Client) ClearAll() {
	c.init()
	c.users.Clear()
	c.streams.Clear()
}

// Close releases the underlying transport. The client must not be used after.
func (c *Client) Close() {
	c.http().CloseIdleConnections()
}

// doGet issues one authenticated Helix request and decodes the JSON body
// into out. Non-2xx responses are logged and surfaced as generic request
// failures; there are no retries at this layer.
func (c *Client) doGet(ctx context.Context, path string, q url.Values, out any) error {
	if c.Tokens == nil {
		return errors.New("twitch client has no token source")
	}
	tok, err := c.Tokens.Get(ctx)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix"+path,
		attribute.String("provider", "twitch"))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixURL+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)

	var resp *http.Response
	telemetry.TimeUpstream("twitch", func() {
		resp, err = c.http().Do(req)
	})
	if err != nil {
		telemetry.CountUpstream("twitch", true)
		telemetry.RecordError(span, err)
		c.log(ctx).Error("helix request failed", slog.String("path", path), slog.Any("err", err))
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log(ctx).Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		telemetry.CountUpstream("twitch", true)
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("helix %s failed: %s: %s", path, resp.Status, string(b))
		telemetry.RecordError(span, err)
		c.log(ctx).Error("helix request rejected", slog.String("path", path), slog.String("status", resp.Status))
		return err
	}
	telemetry.CountUpstream("twitch", false)
	telemetry.SetSpanSuccess(span)
	return json.NewDecoder(resp.Body).Decode(out)
}
