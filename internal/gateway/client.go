// Package gateway is the HTTP client for the Sealbox REST gateway. It
// handles auth, retries with backoff, and error mapping; everything
// cryptographic lives above it.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.sealbox.dev"

// Client issues authenticated requests against the gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *RetryPolicy
}

// Option configures the gateway client.
type Option func(*Client)

// WithBaseURL overrides the gateway base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a gateway client for the given API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gateway: API key is required")
	}

	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do issues one request with retries and decodes a JSON response into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("gateway: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Err: err, URL: c.baseURL + path, Attempt: attempt}
			if attempt >= c.retry.MaxRetries {
				return lastErr
			}
			if err := c.retry.Wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := readError(resp)
			resp.Body.Close()
			if c.retry.ShouldRetry(attempt, resp.StatusCode) {
				lastErr = apiErr
				if err := c.retry.Wait(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return apiErr
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("gateway: decode response: %w", err)
		}
		return nil
	}
}

// readError parses the gateway's error body into an APIError.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		if msg != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: msg, RequestID: parsed.RequestID}
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
