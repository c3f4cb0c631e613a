// Package apiclient attaches the stored bearer token to outgoing backend
// requests and transparently refreshes it once when the backend answers 401.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries a per-request correlation id
const RequestIDHeader = "X-Request-ID"

const refreshKey = "refresh"

// TokenStore is where the credential pair lives. Every request reads it so a
// token written by a refresh is used straight away.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	Save(ctx context.Context, tok *oauth2.Token) error
	Clear(ctx context.Context) error
}

// Refresher exchanges a refresh token for a new credential pair. It must not
// route through a Transport, otherwise the refresh call would itself be
// intercepted.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Transport is an http.RoundTripper implementing the bearer/refresh flow.
type Transport struct {
	base      http.RoundTripper
	tokens    TokenStore
	refresher Refresher
	noRefresh bool
	limiter   *rate.Limiter
	log       zerolog.Logger
	flight    singleflight.Group
}

var _ http.RoundTripper = (*Transport)(nil)

type Option func(*Transport)

// WithBase sets the transport that performs the actual exchange
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// WithRateLimit throttles outgoing requests. A zero or negative limit leaves
// requests unthrottled.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(t *Transport) {
		if limit <= 0 {
			t.limiter = nil
			return
		}
		t.limiter = rate.NewLimiter(limit, max(burst, 1))
	}
}

// WithoutRefresh only attaches the stored bearer. A 401 is handed back as is,
// for callers that run their own refresh.
func WithoutRefresh() Option {
	return func(t *Transport) {
		t.noRefresh = true
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

func NewTransport(tokens TokenStore, refresher Refresher, options ...Option) (*Transport, error) {
	if tokens == nil {
		return nil, errors.New("[NewTransport] token store is required")
	}
	t := &Transport{
		base:      http.DefaultTransport,
		tokens:    tokens,
		refresher: refresher,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(t)
	}
	if t.base == nil {
		return nil, errors.New("[NewTransport] base transport is required")
	}
	if t.refresher == nil && !t.noRefresh {
		return nil, errors.New("[NewTransport] refresher is required")
	}
	return t, nil
}

// Client returns an HTTP client using the transport
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("[Transport.RoundTrip] rate limit: %w", err)
		}
	}

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	access := t.accessToken(ctx)
	resp, err := t.send(req, requestID, access)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || t.noRefresh {
		return resp, err
	}

	fresh, ok := t.refresh(ctx, access)
	if !ok {
		return resp, nil
	}
	retry, err := t.send(req, requestID, fresh)
	if err != nil {
		return resp, nil
	}
	drain(resp)
	return retry, nil
}

// send issues one attempt of req on a copy carrying the given bearer token.
func (t *Transport) send(req *http.Request, requestID, access string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("[Transport.send] rewind body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set(RequestIDHeader, requestID)
	out.Header.Del("Authorization")
	if access != "" {
		(&oauth2.Token{AccessToken: access, TokenType: "Bearer"}).SetAuthHeader(out)
	}
	return t.base.RoundTrip(out)
}

func (t *Transport) accessToken(ctx context.Context) string {
	access, err := t.tokens.AccessToken(ctx)
	if err != nil {
		t.log.Error().Err(err).Msg("reading access token")
		return ""
	}
	return access
}

// refresh returns an access token to retry with. Concurrent callers share one
// refresh; a caller whose token was already replaced by a finished refresh
// gets the stored token without another network call.
func (t *Transport) refresh(ctx context.Context, used string) (string, bool) {
	v, err, shared := t.flight.Do(refreshKey, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		if current := t.accessToken(ctx); current != "" && current != used {
			return current, nil
		}

		refreshToken, err := t.tokens.RefreshToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading refresh token: %w", err)
		}
		if refreshToken == "" {
			return nil, apperrors.ErrNoRefreshToken
		}

		tok, err := t.refresher.RefreshToken(ctx, refreshToken)
		if err == nil {
			err = t.tokens.Save(ctx, tok)
		}
		if err != nil {
			if clearErr := t.tokens.Clear(ctx); clearErr != nil {
				t.log.Error().Err(clearErr).Msg("clearing credentials after failed refresh")
			}
			return nil, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
		}
		t.log.Debug().Msg("access token refreshed")
		return tok.AccessToken, nil
	})
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNoRefreshToken) {
			t.log.Warn().Err(err).Bool("shared", shared).Msg("token refresh failed")
		}
		return "", false
	}
	return v.(string), true
}

// replayable makes sure req's body can be sent twice.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody != nil {
		// every attempt reads its own copy from GetBody
		_ = req.Body.Close()
		return req, nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("[Transport.RoundTrip] buffer body: %w", err)
	}
	out := req.Clone(req.Context())
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	out.Body, _ = out.GetBody()
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
