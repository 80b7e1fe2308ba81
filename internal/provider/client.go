// Package provider talks to the wellness provider: the OAuth1-signed token
// exchange and the ordinary bearer-authenticated reads the syncers issue.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/errors"
	"github.com/biosync/biosync/internal/logging"
)

const maxErrorBody = 512

// Client issues bearer-authenticated GETs against the provider's API host.
// It performs no retries; a failed fetch is the caller's problem to contain.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.ProviderConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    newHTTPClient(timeout),
		logger:  logging.NewLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches a path with the given bearer token. A 204 (or an empty 200
// body) returns nil bytes and no error: absence of data is an ordinary
// outcome. Any non-2xx status returns an ErrProvider with the body text.
func (c *Client) Get(ctx context.Context, path, accessToken string) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.logger.DebugWithContext(ctx, "provider fetch",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errors.ErrProvider{
			Status: resp.StatusCode,
			Path:   path,
			Body:   truncate(string(body), maxErrorBody),
		}
	}

	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// SocialProfile fetches the account's profile and returns its display name.
// The display name keys every per-user API path.
func (c *Client) SocialProfile(ctx context.Context, accessToken string) (string, error) {
	body, err := c.Get(ctx, "/userprofile-service/socialProfile", accessToken)
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", fmt.Errorf("empty social profile response")
	}

	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", err
	}
	if profile.DisplayName == "" {
		return "", fmt.Errorf("social profile has no display name")
	}
	return profile.DisplayName, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
