// Package client provides a typed Go SDK for the mua REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	apiPrefix        = "/api/v1"
	userAgent        = "mua-go"
	maxResponseBytes = 32 << 20
	defaultRetries   = 2
	retryBase        = 250 * time.Millisecond
	maxRetryWait     = 10 * time.Second
)

// Client is the top-level mua API client.
type Client struct {
	baseURL    string
	apiKey     string
	retries    int
	httpClient *http.Client

	Blocks         *BlockService
	Search         *SearchService
	Clarifications *ClarificationService
	People         *PeopleService
	Processing     *ProcessingService
	Artifacts      *ArtifactService
	Admin          *AdminService
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets how many times a GET answered with 429 or 503 is retried.
// Zero disables retries.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = max(n, 0) }
}

// New creates a client for the server at baseURL (e.g. "http://localhost:3040").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		retries:    defaultRetries,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, o := range opts {
		o(c)
	}

	c.Blocks = &BlockService{c: c}
	c.Search = &SearchService{c: c}
	c.Clarifications = &ClarificationService{c: c}
	c.People = &PeopleService{c: c}
	c.Processing = &ProcessingService{c: c}
	c.Artifacts = &ArtifactService{c: c}
	c.Admin = &AdminService{c: c}

	return c
}

// Health returns the liveness payload.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns aggregate store counts.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.get(ctx, "/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one API call, retrying throttled reads, and decodes the JSON
// response into result.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		status, header, respBody, err := c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}

		if status < 400 {
			if result != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, result); err != nil {
					return fmt.Errorf("decoding response: %w", err)
				}
			}
			return nil
		}

		if method != http.MethodGet || attempt >= c.retries || !retryable(status) {
			return parseAPIError(status, respBody)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay(header, attempt)):
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, http.Header, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, bodyReader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, resp.Header, data, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryDelay honors a Retry-After seconds header, else backs off exponentially.
func retryDelay(h http.Header, attempt int) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, maxRetryWait)
	}

	return min(retryBase<<attempt, maxRetryWait)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}
