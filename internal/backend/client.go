// Package backend talks JSON over HTTP to the users, social and multimedia
// services. Every failure is translated into the swipe error taxonomy: a
// transport failure wraps swipe.ErrConnectionFailed, and a non-success or
// unusable response becomes a *swipe.RejectedError.
package backend

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

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kingrea/standin/internal/swipe"
)

const (
	// RequestIDHeader correlates a client log line with the service's logs.
	RequestIDHeader = "X-Request-ID"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// errEmptyBody and errMalformedBody mark 2xx responses whose payload could
// not be used. Callers that tolerate them (SubmitLike) check with errors.Is.
var (
	errEmptyBody     = errors.New("empty response body")
	errMalformedBody = errors.New("malformed response body")
)

// Logger is satisfied by logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Client issues requests against one service base URL.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter throttles outbound requests. A nil limiter disables throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger records request failures.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type errorBody struct {
	Mensaje string `json:"mensaje"`
	Error   string `json:"error"`
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %s %s: %w: %w", c.service, method, path, swipe.ErrConnectionFailed, err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode %s body: %w", c.service, path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build %s %s: %w: %w", c.service, method, path, swipe.ErrConnectionFailed, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("%s: %s %s [%s] failed: %v", c.service, method, path, requestID, err)
		return fmt.Errorf("%s: %s %s: %w: %w", c.service, method, path, swipe.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read %s response: %w: %w", c.service, path, swipe.ErrConnectionFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &swipe.RejectedError{Status: resp.StatusCode, Message: serverMessage(data)}
		c.logger.Printf("%s: %s %s [%s] rejected: %v", c.service, method, path, requestID, rejected)
		return fmt.Errorf("%s: %s %s: %w", c.service, method, path, rejected)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 || !looksLikeJSON(resp.Header.Get("Content-Type"), data) {
		rejected := &swipe.RejectedError{Status: resp.StatusCode, Message: "empty or non-JSON response"}
		return fmt.Errorf("%s: %s %s: %w: %w", c.service, method, path, rejected, errEmptyBody)
	}
	if err := json.Unmarshal(data, out); err != nil {
		rejected := &swipe.RejectedError{Status: resp.StatusCode, Message: "malformed response"}
		c.logger.Printf("%s: %s %s [%s] decode: %v", c.service, method, path, requestID, err)
		return fmt.Errorf("%s: %s %s: %w: %w", c.service, method, path, rejected, errMalformedBody)
	}
	return nil
}

func serverMessage(data []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg := strings.TrimSpace(parsed.Mensaje); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(parsed.Error); msg != "" {
			return msg
		}
	}
	return ""
}

// looksLikeJSON accepts an explicit JSON content type, or a body that opens
// like a JSON document when the service omits the header.
func looksLikeJSON(contentType string, data []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
