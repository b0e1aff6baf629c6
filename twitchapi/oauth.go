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

	"golang.org/x/oauth2"

	"github.com/onnwee/streampoll/telemetry"
)

const (
	tokenURL    = "https://id.twitch.tv/oauth2/token"
	validateURL = "https://id.twitch.tv/oauth2/validate"

	// storeMargin is how early a persisted token is considered expired.
	storeMargin = 60 * time.Second
	// shadowMargin is the stricter client-side margin for the in-process
	// copy; inside it no store read or validation call happens at all.
	shadowMargin = 300 * time.Second
)

// ExchangeError is returned when the token exchange or validation with the
// Twitch identity service fails. It carries the provider's error detail.
type ExchangeError struct {
	Status string
	Detail string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("twitch token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("twitch token exchange failed: %s: %s", e.Status, e.Detail)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// TokenSource obtains and caches a Twitch app access (client credentials)
// token. A persisted token is validated remotely before reuse and replaced
// by a fresh exchange when absent, expired by storeMargin, or rejected.
// It also satisfies oauth2.TokenSource.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	Store        TokenStore
	HTTPClient   *http.Client
	Logger       *slog.Logger

	mu     sync.Mutex
	shadow *Token
}

func (ts *TokenSource) http() *http.Client {
	if ts.HTTPClient != nil {
		return ts.HTTPClient
	}
	return http.DefaultClient
}

func (ts *TokenSource) log() *slog.Logger {
	if ts.Logger != nil {
		return ts.Logger
	}
	return slog.Default()
}

func (ts *TokenSource) store() TokenStore {
	if ts.Store != nil {
		return ts.Store
	}
	return &MemoryStore{}
}

// Get returns a valid access token, reusing the in-process copy inside the
// early-refresh margin, revalidating the persisted token before reuse, and
// performing one client-credentials exchange otherwise. Concurrent callers
// are serialized; at most one exchange happens per expiry.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.shadow.Expired(shadowMargin) {
		return ts.shadow.AccessToken, nil
	}

	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}

	cached, err := ts.store().Load(ctx)
	if err == nil && !cached.Expired(storeMargin) {
		ok, verr := ts.validate(ctx, cached.AccessToken)
		if verr != nil {
			return "", verr
		}
		if ok {
			ts.shadow = cached
			return cached.AccessToken, nil
		}
		ts.log().Debug("cached token rejected by validation, exchanging")
	}

	tok, err := ts.exchange(ctx)
	if err != nil {
		return "", err
	}
	if serr := ts.store().Save(ctx, tok); serr != nil {
		ts.log().Warn("could not persist token", slog.Any("err", serr))
	}
	ts.shadow = tok
	return tok.AccessToken, nil
}

// Token adapts Get to the oauth2.TokenSource contract.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	if _, err := ts.Get(context.Background()); err != nil {
		return nil, err
	}
	ts.mu.Lock()
	tok := ts.shadow
	ts.mu.Unlock()
	return &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.ObtainedAt.Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

// validate asks the identity service whether the token is still good.
// A confirmed rejection is (false, nil); a transport failure is an error.
func (ts *TokenSource) validate(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	telemetry.CountTokenValidation()
	resp, err := ts.http().Do(req)
	if err != nil {
		return false, &ExchangeError{Err: fmt.Errorf("validate token: %w", err)}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			ts.log().Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	return resp.StatusCode == http.StatusOK, nil
}

func (ts *TokenSource) exchange(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	telemetry.CountTokenExchange()
	resp, err := ts.http().Do(req)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			ts.log().Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &ExchangeError{Status: resp.Status, Detail: string(b)}
	}
	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access_token in twitch response")
	}
	tok.ObtainedAt = time.Now()
	return &tok, nil
}
