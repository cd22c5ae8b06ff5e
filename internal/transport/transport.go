// Package transport executes single JSON request/response exchanges against the
// management service. It never retries; retry policy belongs to the callers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/izzyreal/nodeagent/internal/version"
)

const defaultRequestTimeout = 30 * time.Second

// MaxResponseBytes bounds how much of a response body Do reads.
const MaxResponseBytes = 4 << 20

// ErrResponseTooLarge is wrapped in a TransportError when a body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("response body too large")

// Requester is the narrow interface the protocol clients depend on.
type Requester interface {
	Do(ctx context.Context, method, path string, body any) (*Response, error)
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TransportError reports a network level failure: connection refused, timeouts,
// DNS and TLS errors, or a body that could not be read.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTP is a Requester backed by net/http. It is safe for concurrent use.
type HTTP struct {
	endpoint  string
	client    *http.Client
	userAgent string
}

// New builds an HTTP transport for endpoint using the TLS and timeout settings in opts.
func New(endpoint string, opts Options) (*HTTP, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	client, err := buildClient(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return NewWithClient(endpoint, client), nil
}

// NewWithClient wraps an existing client. Trailing slashes are stripped from endpoint.
func NewWithClient(endpoint string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTP{
		endpoint:  strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:    client,
		userAgent: version.UserAgent(),
	}
}

func (t *HTTP) Endpoint() string {
	return t.endpoint
}

func (t *HTTP) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	url := t.endpoint + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: fmt.Errorf("read response body: %w", err)}
	}
	if len(respBody) > MaxResponseBytes {
		return nil, &TransportError{Method: method, URL: url, Err: fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, MaxResponseBytes)}
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}
