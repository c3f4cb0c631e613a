package credentials

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/jrsteele09/flashybank-client/storage"
	"golang.org/x/oauth2"
)

// Keys under which the credential pair and the saved login are persisted.
const (
	AccessTokenKey   = "accessToken"
	RefreshTokenKey  = "refreshToken"
	SavedUsernameKey = "savedUsername"
	SavedPasswordKey = "savedPassword"
)

const bearer = "Bearer"

// Store persists the credential pair issued by the backend. It is the only
// place the tokens are written, and every read goes to the underlying store
// so a token written by a refresh is immediately visible to the next request.
type Store struct {
	kv storage.Store
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Save overwrites both tokens.
func (s *Store) Save(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" || tok.RefreshToken == "" {
		return apperrors.Wrapf(apperrors.ErrMalformedToken, "[Store.Save] access and refresh tokens are required")
	}
	if err := s.kv.Set(ctx, AccessTokenKey, tok.AccessToken); err != nil {
		return fmt.Errorf("[Store.Save] access token: %w", err)
	}
	if err := s.kv.Set(ctx, RefreshTokenKey, tok.RefreshToken); err != nil {
		return fmt.Errorf("[Store.Save] refresh token: %w", err)
	}
	return nil
}

// Token returns the stored pair as an oauth2 bearer token. Expiry is filled in
// from the access token claims when it is a JWT.
func (s *Store) Token(ctx context.Context) (*oauth2.Token, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, apperrors.ErrNoCredentials
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    bearer,
	}
	if claims, err := ParseClaims(access); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok, nil
}

// AccessToken returns the stored access token or "" when there is none.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, AccessTokenKey)
}

// RefreshToken returns the stored refresh token or "" when there is none.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, RefreshTokenKey)
}

// HasTokens reports whether an access token is stored.
func (s *Store) HasTokens(ctx context.Context) (bool, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	return access != "", nil
}

// Clear deletes both tokens. Both deletes are attempted even if the first fails.
func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(
		s.kv.Delete(ctx, AccessTokenKey),
		s.kv.Delete(ctx, RefreshTokenKey),
	)
}

// SaveLogin keeps the last successful interactive login so it can be replayed
// after a biometric prompt. The password is stored as entered.
func (s *Store) SaveLogin(ctx context.Context, username, password string) error {
	if err := s.kv.Set(ctx, SavedUsernameKey, username); err != nil {
		return fmt.Errorf("[Store.SaveLogin] username: %w", err)
	}
	if err := s.kv.Set(ctx, SavedPasswordKey, password); err != nil {
		return fmt.Errorf("[Store.SaveLogin] password: %w", err)
	}
	return nil
}

// SavedLogin returns the saved login or ErrNoSavedLogin.
func (s *Store) SavedLogin(ctx context.Context) (username, password string, err error) {
	if username, err = s.get(ctx, SavedUsernameKey); err != nil {
		return "", "", err
	}
	if password, err = s.get(ctx, SavedPasswordKey); err != nil {
		return "", "", err
	}
	if username == "" || password == "" {
		return "", "", apperrors.ErrNoSavedLogin
	}
	return username, password, nil
}

// SavedUsername returns the remembered username, used to prefill a login form.
func (s *Store) SavedUsername(ctx context.Context) (string, error) {
	return s.get(ctx, SavedUsernameKey)
}

func (s *Store) ClearLogin(ctx context.Context) error {
	return errors.Join(
		s.kv.Delete(ctx, SavedUsernameKey),
		s.kv.Delete(ctx, SavedPasswordKey),
	)
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("[credentials.Store] get %s: %w", key, err)
	}
	return v, nil
}

// TokenSource adapts the store to oauth2.TokenSource for callers that want a
// plain token getter bound to ctx.
func (s *Store) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, store: s}
}

type tokenSource struct {
	ctx   context.Context
	store *Store
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	return ts.store.Token(ts.ctx)
}
