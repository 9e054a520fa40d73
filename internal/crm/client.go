// Package crm is the HTTP client for the Whise CRM contract endpoint.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/projectvak/contracthub/internal/apperr"
)

const (
	DefaultTimeout = 30 * time.Second
	contractsPath  = "/contracts"
	maxErrorBody   = 4 << 10
)

// Client pushes contracts to the CRM.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	newKey     func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			client.httpClient.Timeout = d
		}
	}
}

// NewClient creates a CRM client. An empty baseURL yields a client whose
// every push fails with apperr.ErrNotConfigured.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		newKey:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has somewhere to push to.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Push sends one contract. Each call carries a fresh Idempotency-Key so the
// CRM can recognise transport-level retries of the same request.
func (c *Client) Push(ctx context.Context, p Payload) (Receipt, error) {
	if !c.Configured() {
		return Receipt{}, fmt.Errorf("crm: push: base url: %w", apperr.ErrNotConfigured)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Receipt{}, fmt.Errorf("crm: encode payload: %w", err)
	}
	var rec Receipt
	if err := c.doRequest(ctx, http.MethodPost, contractsPath, body, &rec); err != nil {
		return Receipt{}, wrapError(err, "PushContract")
	}
	return rec, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, result any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", c.newKey())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if result != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// wrapError tags API errors with the operation name.
func wrapError(err error, op string) error {
	if apiErr, ok := err.(*Error); ok {
		apiErr.Op = op
		return apiErr
	}
	return fmt.Errorf("crm: %s: %w", op, err)
}
