// Package mailtm talks to a mail.tm compatible disposable-mailbox REST API.
// Every call goes through an Executor, which owns the retry policy.
package mailtm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultBaseURL is the public mail.tm API.
const defaultBaseURL = "https://api.mail.tm"

// defaultTimeout bounds a single HTTP attempt, not the whole retry budget.
const defaultTimeout = 30 * time.Second

// Request describes one retriable API call. It is a plain value so the
// Executor can issue it again on every attempt.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the part of an HTTP response the Executor classifies.
type Response struct {
	StatusCode int
	Body       []byte
}

// Doer performs a single attempt of a Request.
// Connection and timeout failures must be reported as *TransportError so
// they can be told apart from a received HTTP status.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// TransportError is a failure to obtain any HTTP response for an attempt.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPClientConfig holds the configuration for creating an HTTPClient.
type HTTPClientConfig struct {
	// BaseURL defaults to https://api.mail.tm.
	BaseURL string

	// Timeout is the per-attempt transport timeout. Defaults to 30s.
	Timeout time.Duration

	// Token, when set, is sent as a bearer token on every request.
	Token string
}

// HTTPClient is the net/http implementation of Doer.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTPClient with the given configuration.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// newWithHTTPClient creates an HTTPClient around a custom http.Client,
// used for testing.
func newWithHTTPClient(baseURL, token string, client *http.Client) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: client,
	}
}

// Do sends req once and returns the status code and full body.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = values
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		// A body cut off mid-read is a connection failure, not a status.
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
