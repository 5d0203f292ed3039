// Package collaborator holds the HTTP plumbing shared by the OCR, document
// analysis and ML clients: per-call timeouts, outbound rate limiting, a circuit
// breaker and a normalized error taxonomy. Calls are never retried.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"creditengine/internal/collaborator/metrics"
	"creditengine/pkg/platform/circuit"
)

const maxResponseBytes = 10 << 20

// Client is a thin HTTP client bound to one collaborator base URL.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *circuit.Breaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit bounds the outbound request rate. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 10, IdleConnTimeout: 90 * time.Second}},
		timeout:    30 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

// Part is one file in a multipart upload.
type Part struct {
	Field    string
	Filename string
	Content  []byte
}

// PostMultipart uploads files plus plain form fields and returns the 2xx body.
func (c *Client) PostMultipart(ctx context.Context, operation, path string, fields map[string]string, parts ...Part) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.Field, p.Filename)
		if err != nil {
			return nil, NewError(ErrorInternal, c.name, "build multipart body", err)
		}
		if _, err := fw.Write(p.Content); err != nil {
			return nil, NewError(ErrorInternal, c.name, "build multipart body", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, NewError(ErrorInternal, c.name, "build multipart body", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, NewError(ErrorInternal, c.name, "build multipart body", err)
	}
	payload := buf.Bytes()
	contentType := mw.FormDataContentType()

	return c.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

func (c *Client) PostJSON(ctx context.Context, operation, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(ErrorInternal, c.name, "encode request", err)
	}
	return c.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *Client) Get(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
}

// Decode unmarshals a collaborator response, reporting malformed payloads as bad data.
func Decode[T any](c *Client, body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, NewError(ErrorBadData, c.name, "malformed response body", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, operation string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()
	body, err := c.send(ctx, operation, build)
	outcome := "ok"
	if err != nil {
		outcome = string(CategoryOf(err))
	}
	c.metrics.ObserveCall(c.name, operation, outcome, time.Since(start))
	return body, err
}

func (c *Client) send(ctx context.Context, operation string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, NewError(ErrorCircuitOpen, c.name, "circuit open", nil)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewError(ErrorRateLimited, c.name, "outbound rate limit wait aborted", err)
		}
	}

	req, err := build(ctx)
	if err != nil {
		return nil, NewError(ErrorInternal, c.name, "build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cerr := NewError(classifyTransportError(ctx, err), c.name, operation+" request failed", err)
		c.recordOutcome(parent, cerr)
		return nil, cerr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		cerr := NewError(classifyTransportError(ctx, err), c.name, "read response body", err)
		c.recordOutcome(parent, cerr)
		return nil, cerr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cerr := NewError(classifyStatus(resp.StatusCode), c.name,
			fmt.Sprintf("%s returned status %d", operation, resp.StatusCode), nil)
		c.recordOutcome(parent, cerr)
		return nil, cerr
	}

	c.recordOutcome(parent, nil)
	return body, nil
}

// recordOutcome feeds the breaker. Only unavailability counts as a failure; a
// collaborator that answers with bad data is still up. A call abandoned because
// the caller's own context ended says nothing about the collaborator and is not
// recorded.
func (c *Client) recordOutcome(ctx context.Context, err error) {
	if c.breaker == nil {
		return
	}
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil && IsUnavailable(err) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.metrics.SetBreakerOpen(c.name, true)
			c.logger.WarnContext(ctx, "collaborator circuit opened",
				"collaborator", c.name,
				"error", err,
			)
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetBreakerOpen(c.name, false)
		c.logger.InfoContext(ctx, "collaborator circuit closed",
			"collaborator", c.name,
		)
	}
}
