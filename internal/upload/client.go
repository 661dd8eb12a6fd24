package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/claude/trelog/internal/backup"
)

// ErrRejected is returned when the server refuses a backup outright (bad
// JSON, unknown policy, nothing to replace). Rejections are not retried.
var ErrRejected = errors.New("server rejected backup")

// Result mirrors the server's import stats without importing the importer
// package (which would pull in the storage drivers).
type Result struct {
	SessionsReceived  int      `json:"sessionsReceived"`
	TemplatesReceived int      `json:"templatesReceived"`
	SessionsAdded     int      `json:"sessionsAdded"`
	SessionsUpdated   int      `json:"sessionsUpdated"`
	TemplatesAdded    int      `json:"templatesAdded"`
	TemplatesUpdated  int      `json:"templatesUpdated"`
	Warnings          []string `json:"warnings"`
}

// Client sends backups to a trelog server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

// NewClient creates a new HTTP client for the trelog server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

// Ping checks that the server is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/me", nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinging server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ping failed (status %d): %s", resp.StatusCode, body)
	}
	return nil
}

// SendBackup POSTs a backup file to the server's import endpoint.
// Retries up to 3 times with exponential backoff on transport and server
// errors; client errors fail immediately with ErrRejected.
func (c *Client) SendBackup(ctx context.Context, source string, data []byte, policy backup.Policy) (*Result, error) {
	path := "/api/v1/import?" + url.Values{"policy": {string(policy)}, "source": {source}}.Encode()

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := c.newRequest(ctx, http.MethodPost, path, data)
		if err != nil {
			return nil, fmt.Errorf("building import request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			var res Result
			if err := json.Unmarshal(body, &res); err != nil {
				return nil, fmt.Errorf("decoding import result: %w", err)
			}
			return &res, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fmt.Errorf("%w (status %d): %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(body))
		}
		lastErr = fmt.Errorf("import failed (status %d): %s", resp.StatusCode, body)
	}

	return nil, fmt.Errorf("after 3 attempts: %w", lastErr)
}
