// Package api is the HTTP client for the notelock sync service.
//
// The core only ever talks to the remote from inside a sync pass or an
// account command, so everything here takes a context and returns plain
// errors for the dispatch layer to pass through. The endpoint is mutable at
// runtime (app:api:set-endpoint) and guarded for the syncer goroutines that
// read it concurrently.
package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/notelock/core/internal/store"
)

// Session is the authenticated state returned by login/join.
type Session struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// SyncBatch is one page of remote changes.
type SyncBatch struct {
	Items []*store.OutgoingItem `json:"items"`
	// Until is the sync marker to persist once Items are applied.
	Until int64 `json:"until"`
}

// Remote is the surface the core consumes. Tests substitute a stub.
type Remote interface {
	Login(ctx context.Context, username, password string) (*Session, error)
	Join(ctx context.Context, username, password string) (*Session, error)
	Logout(ctx context.Context, token string) error
	DeleteAccount(ctx context.Context, token string) error
	PushSync(ctx context.Context, token string, items []*store.OutgoingItem) error
	PullSync(ctx context.Context, token string, since int64) (*SyncBatch, error)
}

// Client talks to a notelock sync server over HTTP.
type Client struct {
	mu       sync.RWMutex
	endpoint string

	hc *http.Client
}

// NewClient creates a client against the given endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: 30 * time.Second},
	}
}

// Endpoint returns the current remote endpoint.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// SetEndpoint swaps the remote endpoint. Takes effect on the next request;
// in-flight requests finish against the old endpoint.
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()
}

// DeriveAuth computes the credential sent in place of the password. The
// password itself never leaves the process.
func DeriveAuth(username, password string) string {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte("notelock:auth:" + username))
	return hex.EncodeToString(mac.Sum(nil))
}

type authRequest struct {
	Username string `json:"username"`
	Auth     string `json:"auth"`
}

// Login authenticates an existing account.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var session Session
	err := c.post(ctx, "/auth/login", "", authRequest{
		Username: username,
		Auth:     DeriveAuth(username, password),
	}, &session)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &session, nil
}

// Join creates a new account and returns its session.
func (c *Client) Join(ctx context.Context, username, password string) (*Session, error) {
	var session Session
	err := c.post(ctx, "/auth/join", "", authRequest{
		Username: username,
		Auth:     DeriveAuth(username, password),
	}, &session)
	if err != nil {
		return nil, fmt.Errorf("join failed: %w", err)
	}
	return &session, nil
}

// Logout invalidates the session token server-side.
func (c *Client) Logout(ctx context.Context, token string) error {
	if err := c.post(ctx, "/auth/logout", token, nil, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// DeleteAccount destroys the account behind the session token.
func (c *Client) DeleteAccount(ctx context.Context, token string) error {
	if err := c.post(ctx, "/auth/delete", token, nil, nil); err != nil {
		return fmt.Errorf("delete account failed: %w", err)
	}
	return nil
}

// PushSync uploads queued local changes.
func (c *Client) PushSync(ctx context.Context, token string, items []*store.OutgoingItem) error {
	body := struct {
		Items []*store.OutgoingItem `json:"items"`
	}{Items: items}

	if err := c.post(ctx, "/sync/push", token, body, nil); err != nil {
		return fmt.Errorf("sync push failed: %w", err)
	}
	return nil
}

// PullSync downloads remote changes recorded after the since marker.
func (c *Client) PullSync(ctx context.Context, token string, since int64) (*SyncBatch, error) {
	body := struct {
		Since int64 `json:"since"`
	}{Since: since}

	var batch SyncBatch
	if err := c.post(ctx, "/sync/pull", token, body, &batch); err != nil {
		return nil, fmt.Errorf("sync pull failed: %w", err)
	}
	return &batch, nil
}

// post sends a JSON request and decodes the JSON response into out (when out
// is non-nil). Non-2xx statuses are errors carrying the response body.
func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint()+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
