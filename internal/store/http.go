package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/dentexa/import-cli/internal/resilience"
)

const listPageSize = 500

// APIError is a non-2xx response from the records API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("records api: status %d: %s", e.Status, e.Message)
}

// ClientOption configures the HTTP client.
type ClientOption func(*Client)

// WithRateLimit caps outgoing requests per second. Burst equals the
// integer portion of rps.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying http.Client (tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// Client implements RecordStore against the records REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a records API client for the given base URL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listResponse struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}

// ListAll pages through GET /api/v1/{entity} until every record is
// fetched.
func (c *Client) ListAll(ctx context.Context, entity Entity) ([]Record, error) {
	var all []Record
	offset := 0
	for {
		path := fmt.Sprintf("/api/v1/%s?offset=%d&limit=%d", entity, offset, listPageSize)
		var page listResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("store: list %s", entity))
		}
		all = append(all, page.Records...)
		offset += len(page.Records)
		if len(page.Records) < listPageSize || offset >= page.Total {
			return all, nil
		}
	}
}

// Create posts a new record.
func (c *Client) Create(ctx context.Context, entity Entity, fields Fields) (*Record, error) {
	body := map[string]any{"fields": fields}
	var rec Record
	if err := c.do(ctx, http.MethodPost, "/api/v1/"+string(entity), body, &rec); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("store: create %s", entity))
	}
	return &rec, nil
}

// Update patches an existing record.
func (c *Client) Update(ctx context.Context, entity Entity, id string, fields Fields) (*Record, error) {
	if id == "" {
		return nil, eris.New("store: update requires a record id")
	}
	body := map[string]any{"fields": fields}
	var rec Record
	path := fmt.Sprintf("/api/v1/%s/%s", entity, id)
	if err := c.do(ctx, http.MethodPatch, path, body, &rec); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("store: update %s %s", entity, id))
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "store: rate limit")
		}
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "store: encode request")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return eris.Wrap(err, "store: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable by nature;
		// Retryable() recognizes them without extra wrapping.
		return eris.Wrap(err, "store: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var decoded APIError
		if json.Unmarshal(data, &decoded) == nil && decoded.Message != "" {
			apiErr.Message = decoded.Message
		}
		if resilience.RetryableStatus(resp.StatusCode) {
			return resilience.MarkTransient(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "store: decode response")
	}
	return nil
}
