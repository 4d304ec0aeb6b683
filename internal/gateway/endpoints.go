package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidAPIKey is returned by CheckKey when the gateway rejects the key.
var ErrInvalidAPIKey = errors.New("gateway: invalid API key")

// CheckKey validates the configured API key.
func (c *Client) CheckKey(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/ping", nil, &out); err != nil {
		return err
	}
	if !out.OK {
		return ErrInvalidAPIKey
	}
	return nil
}

// GetServerInfo fetches the server's signing key and limits.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	var out ServerInfo
	if err := c.do(ctx, http.MethodGet, "/v1/server", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateInbox registers a new inbox.
func (c *Client) CreateInbox(ctx context.Context, req *CreateInboxRequest) (*CreateInboxResponse, error) {
	var out CreateInboxResponse
	if err := c.do(ctx, http.MethodPost, "/v1/inboxes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteInbox deletes one inbox by address.
func (c *Client) DeleteInbox(ctx context.Context, address string) error {
	return c.do(ctx, http.MethodDelete, inboxPath(address), nil, nil)
}

// DeleteAllInboxes deletes every inbox owned by the API key and returns
// how many were removed.
func (c *Client) DeleteAllInboxes(ctx context.Context) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/v1/inboxes", nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// GetInboxStatus fetches the lightweight change-detection status.
func (c *Client) GetInboxStatus(ctx context.Context, address string) (*InboxStatus, error) {
	var out InboxStatus
	if err := c.do(ctx, http.MethodGet, inboxPath(address)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages lists the inbox's messages (sealed metadata only).
func (c *Client) ListMessages(ctx context.Context, address string) ([]Message, error) {
	var out []Message
	if err := c.do(ctx, http.MethodGet, inboxPath(address)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessage fetches one message including the sealed parsed body.
func (c *Client) GetMessage(ctx context.Context, address, id string) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodGet, messagePath(address, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessageSource fetches the sealed raw RFC 5322 source of a message.
func (c *Client) GetMessageSource(ctx context.Context, address, id string) (*SourceMessage, error) {
	var out SourceMessage
	if err := c.do(ctx, http.MethodGet, messagePath(address, id)+"/source", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkMessageRead marks one message as read.
func (c *Client) MarkMessageRead(ctx context.Context, address, id string) error {
	return c.do(ctx, http.MethodPatch, messagePath(address, id)+"/read", nil, nil)
}

// DeleteMessage deletes one message.
func (c *Client) DeleteMessage(ctx context.Context, address, id string) error {
	return c.do(ctx, http.MethodDelete, messagePath(address, id), nil, nil)
}

// OpenEventStream opens the push channel (SSE) for the given inbox hashes.
// The caller owns the response body.
func (c *Client) OpenEventStream(ctx context.Context, inboxHashes []string) (*http.Response, error) {
	path := "/v1/events?inboxes=" + url.QueryEscape(strings.Join(inboxHashes, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream is long-lived; the per-request timeout must not apply.
	stream := &http.Client{Transport: c.httpClient.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err, URL: c.baseURL + path}
	}
	if resp.StatusCode != http.StatusOK {
		err := readError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func inboxPath(address string) string {
	return fmt.Sprintf("/v1/inboxes/%s", url.PathEscape(address))
}

func messagePath(address, id string) string {
	return fmt.Sprintf("/v1/inboxes/%s/messages/%s", url.PathEscape(address), url.PathEscape(id))
}
