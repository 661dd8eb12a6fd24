package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/trelog/internal/models"
	"github.com/claude/trelog/internal/storage"
)

// HTTPClient implements DataSource by calling the trelog REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the records live on a trelog server.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey
// is sent as X-API-Key when non-empty.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func getJSON[T any](ctx context.Context, c *HTTPClient, path string, params url.Values) (T, error) {
	var v T
	body, err := c.get(ctx, path, params)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return v, nil
}

// History fetches every stored session, newest first.
func (c *HTTPClient) History(ctx context.Context) ([]models.Session, error) {
	return getJSON[[]models.Session](ctx, c, "/api/v1/sessions", nil)
}

// Templates fetches every stored template.
func (c *HTTPClient) Templates(ctx context.Context) ([]models.Template, error) {
	return getJSON[[]models.Template](ctx, c, "/api/v1/templates", nil)
}

// ImportLogs fetches the most recent import logs.
func (c *HTTPClient) ImportLogs(ctx context.Context, limit int) ([]storage.ImportLog, error) {
	var params url.Values
	if limit > 0 {
		params = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	return getJSON[[]storage.ImportLog](ctx, c, "/api/v1/import-logs", params)
}
