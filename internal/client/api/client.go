// Package api is the HTTP adapter for the TaskDeck backend. It attaches the
// bearer credential to outbound requests, classifies failures into the
// client's error taxonomy, and exposes one typed method per endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/models"
)

// TokenSource supplies the current bearer credential. An empty string means
// no credential is set. The session store is the only implementation.
type TokenSource interface {
	Token() string
}

// Client performs HTTP calls against the backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	tokens TokenSource
	// onUnauthorized is invoked when an authenticated call returns 401,
	// before ErrUnauthorized is returned to the caller.
	onUnauthorized func()
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// SetHTTPClient replaces the underlying http.Client. Used by tests to inject
// a fake transport.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// SetTokenSource installs the credential provider for authenticated calls.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// SetUnauthorizedHandler installs the forced-logout hook fired on any 401
// response to an authenticated call.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.onUnauthorized = fn
}

// do performs one request. When authed is true the bearer credential is
// attached and a 401 response fires the unauthorized handler; login and
// registration pass authed=false so a rejected login cannot kill an
// unrelated live session.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	if authed && c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if authed && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		c.log.Debug("backend rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// Login exchanges credentials for a bearer token. A 401 is reported as
// *AuthError rather than a session invalidation.
func (c *Client) Login(ctx context.Context, username, password string) (models.Token, error) {
	var tok models.Token
	body := map[string]string{"username": username, "password": password}
	err := c.do(ctx, http.MethodPost, "/users/token", body, &tok, false)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return models.Token{}, &AuthError{Reason: "invalid username or password"}
		}
		var se *StatusError
		if errors.As(err, &se) {
			return models.Token{}, &AuthError{Reason: se.Body}
		}
		return models.Token{}, err
	}
	return tok, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, password string) (models.UserProfile, error) {
	var profile models.UserProfile
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
		"role":     models.RoleUser,
	}
	err := c.do(ctx, http.MethodPost, "/users/register", body, &profile, false)
	return profile, err
}

// Me fetches the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (models.UserProfile, error) {
	var profile models.UserProfile
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &profile, true)
	return profile, err
}

// AllUsers lists every user. Admin only.
func (c *Client) AllUsers(ctx context.Context) ([]models.UserProfile, error) {
	var users []models.UserProfile
	err := c.do(ctx, http.MethodGet, "/users/all", nil, &users, true)
	return users, err
}
