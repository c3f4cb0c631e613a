package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "login", username, password)
}

// Register creates the account and signs it in.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "register", username, password)
}

func (c *Client) authenticate(ctx context.Context, action, username, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, c.endpoint(nil, "api", "auth", action), credentialsRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("[Client.%s] %w", action, err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, fmt.Errorf("[Client.%s] response is missing tokens", action)
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new credential pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, errors.New("[Client.Refresh] refresh token is required")
	}
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, c.endpoint(nil, "api", "auth", "refresh"), refreshTokenRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, fmt.Errorf("[Client.Refresh] %w", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, errors.New("[Client.Refresh] response is missing tokens")
	}
	return &resp, nil
}

// RefreshToken is Refresh reduced to the credential pair
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	resp, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return resp.Token(), nil
}

// Logout invalidates refreshToken on the backend. accessToken is sent as the
// bearer so the backend can revoke it too; it is attached here rather than by
// a refreshing transport, so a rejected token never triggers a refresh.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	err := c.do(ctx, http.MethodPost, c.endpoint(nil, "api", "auth", "logout"),
		refreshTokenRequest{RefreshToken: refreshToken}, nil, withBearer(accessToken))
	if err != nil {
		return fmt.Errorf("[Client.Logout] %w", err)
	}
	return nil
}
