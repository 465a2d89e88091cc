package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

const (
	defaultTimeout             = 30 * time.Second
	errorBodyReadLimit   int64 = 4096
	idempotencyKeyHeader       = "Idempotency-Key"
	requestIDHeader            = "X-Request-Id"
)

var errBaseURLRequired = errors.New("backend base url is required")

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AuthFailureHandler is invoked whenever the backend answers 401.
type AuthFailureHandler func(ctx context.Context, err error)

// Client talks to the storefront REST surface.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	tokens        TokenSource
	onAuthFailure AuthFailureHandler
	logger        *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithAuthFailureHandler registers the hook run on every 401.
func WithAuthFailureHandler(fn AuthFailureHandler) Option {
	return func(c *Client) {
		c.onAuthFailure = fn
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logger = logg
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.logger == nil {
		client.logger = logger.Nop()
	}
	return client, nil
}

// SetAuthFailureHandler swaps the 401 hook after construction, for callers
// whose handler depends on the client itself.
func (c *Client) SetAuthFailureHandler(fn AuthFailureHandler) {
	c.onAuthFailure = fn
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request body")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+"/"+strings.TrimLeft(req.path, "/"), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build backend request")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"method":      req.method,
		"path":        req.path,
		"request_id":  requestID,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	c.logger.Debug(logCtx, "backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		apiErr := statusError(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized && c.onAuthFailure != nil {
			c.onAuthFailure(ctx, apiErr)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, err)
	}
	if err := json.Unmarshal(unwrapEnvelope(raw), out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeBackend, err, "unexpected response from server")
	}
	return nil
}

// unwrapEnvelope strips a {"data": ...} success envelope when present so
// both enveloped and bare payloads decode the same way.
func unwrapEnvelope(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return trimmed
	}
	if data, ok := fields["data"]; ok && len(fields) == 1 {
		return data
	}
	return trimmed
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "request timed out")
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "request canceled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "request timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeBackend, err, "could not reach server")
}

// statusError maps a non-2xx response to a typed error carrying the
// server's own message: {"error":{"message"}} or {"detail"}.
func statusError(status int, raw []byte) error {
	msg := extractMessage(raw)
	cause := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(raw)))

	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeAuthExpired, cause, pkgerrors.MetadataFor(pkgerrors.CodeAuthExpired).PublicMessage)
	case http.StatusNotFound:
		if msg == "" {
			msg = "resource not found"
		}
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, msg)
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return pkgerrors.Wrap(pkgerrors.CodeBackend, cause, msg).WithDetails(map[string]any{"status": status})
}

func extractMessage(raw []byte) string {
	var payload types.ErrorEnvelope
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if payload.Error != nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(payload.Detail); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Message)
}
