package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// defaultMaxResponseBytes bounds how much of a provider response is read into memory.
const defaultMaxResponseBytes = 4 << 20

// NewHTTPClient builds the HTTP/2-capable client shared by every provider.
func NewHTTPClient(cfg models.HTTPConfig) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   cfg.DialTimeout,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure http2 transport: %w", err)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   cfg.RequestTimeout,
	}, nil
}

// Request describes one provider call. Path is joined to the client's base
// URL unless it is already absolute.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Header    http.Header
	Body      []byte
	Operation string
}

// Client is a rate-limited, instrumented HTTP client bound to one provider.
type Client struct {
	provider string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	recorder metrics.Recorder
	maxBody  int64
}

type Option func(*Client)

func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithRecorder(recorder metrics.Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// WithMaxResponseBytes overrides the response size limit.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

func New(provider, baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		recorder: metrics.NoopRecorder{},
		maxBody:  defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a request path against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

// Do sends the request and returns the response body. Non-2xx responses are
// returned as *TransportError carrying the body so adapters can inspect
// provider error payloads.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	operation := r.Operation
	if operation == "" {
		operation = method
	}
	labels := map[string]string{"provider": c.provider}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Provider: c.provider, Operation: operation, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(r.Path, r.Query), bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("unable to build %s request: %w", c.provider, err)
	}
	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if len(r.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.recorder.ObserveLatency(operation, time.Since(start), labels)
	if err != nil {
		c.recorder.IncCounter(metrics.ProviderRequest, map[string]string{"provider": c.provider, "outcome": "network"})
		zap.L().Debug("Provider request failed",
			zap.String("provider", c.provider),
			zap.String("operation", operation),
			zap.String("request_id", models.RequestId(ctx)),
			zap.Error(err))
		return nil, &TransportError{Provider: c.provider, Operation: operation, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.String("provider", c.provider), zap.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &TransportError{Provider: c.provider, Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		c.recorder.IncCounter(metrics.ProviderRequest, map[string]string{"provider": c.provider, "outcome": "too_large"})
		return nil, &TransportError{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recorder.IncCounter(metrics.ProviderRequest, map[string]string{"provider": c.provider, "outcome": fmt.Sprintf("%dxx", resp.StatusCode/100)})
		return body, &TransportError{Provider: c.provider, Operation: operation, StatusCode: resp.StatusCode, Body: body}
	}

	c.recorder.IncCounter(metrics.ProviderRequest, map[string]string{"provider": c.provider, "outcome": "ok"})
	return body, nil
}
