package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "users", "profile"), nil, &p); err != nil {
		return nil, fmt.Errorf("[Client.Profile] %w", err)
	}
	return &p, nil
}

// UpdateProfile changes the username of the signed-in user and returns the
// updated profile.
func (c *Client) UpdateProfile(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, errors.New("[Client.UpdateProfile] username is required")
	}
	var p Profile
	err := c.do(ctx, http.MethodPut, c.endpoint(nil, "api", "users", "profile"), updateProfileRequest{Username: username}, &p)
	if err != nil {
		return nil, fmt.Errorf("[Client.UpdateProfile] %w", err)
	}
	return &p, nil
}

// ValidateUser checks whether username can receive a transfer
func (c *Client) ValidateUser(ctx context.Context, username string) (*Validation, error) {
	var v Validation
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "users", "validate", username), nil, &v); err != nil {
		return nil, fmt.Errorf("[Client.ValidateUser] %w", err)
	}
	return &v, nil
}

func (c *Client) PublicUser(ctx context.Context, username string) (*PublicUser, error) {
	var u PublicUser
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "users", username), nil, &u); err != nil {
		return nil, fmt.Errorf("[Client.PublicUser] %w", err)
	}
	return &u, nil
}

// ListUsers pages through the public user directory. A non-positive size
// leaves the page size to the backend.
func (c *Client) ListUsers(ctx context.Context, page, size int, search string) (*UserPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(page, 0)))
	if size > 0 {
		query.Set("size", strconv.Itoa(size))
	}
	if search != "" {
		query.Set("search", search)
	}
	var p UserPage
	if err := c.do(ctx, http.MethodGet, c.endpoint(query, "api", "users"), nil, &p); err != nil {
		return nil, fmt.Errorf("[Client.ListUsers] %w", err)
	}
	return &p, nil
}
