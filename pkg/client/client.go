// Package client provides the HTTP client for the retailer API with a hard
// per-request timeout, rate-limit gating, error classification and optional
// retries.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/Sternrassler/price-getter/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricegetter_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricegetter_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricegetter_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// maxBodyBytes bounds how much of an upstream body is read.
const maxBodyBytes = 4 << 20

// DefaultTimeout is the hard limit for a single outbound request.
const DefaultTimeout = 10 * time.Second

// Client is the retailer API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the retailer API, e.g. https://api.kroger.com/v1
	BaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout aborts a single request (not the whole retry sequence).
	Timeout time.Duration

	// Retry policy; a single attempt unless configured otherwise.
	Retry RetryConfig

	// RateLimiter gates requests during an upstream cooldown. Optional.
	RateLimiter *ratelimit.Tracker

	// HTTPClient overrides the underlying transport (tests). Its Timeout is
	// ignored; Config.Timeout applies.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
	}
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a new retailer API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     base,
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      logging.NewLogger(logging.ComponentClient),
	}, nil
}

// Get performs a GET request against path (relative to the base URL) with a
// bearer token.
func (c *Client) Get(ctx context.Context, path string, query url.Values, bearer string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Accept", "application/json")

	return c.Do(req)
}

// PostForm performs a form-encoded POST authenticated with HTTP Basic auth.
// It is sent once regardless of the retry policy.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, username, password string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.do(req, noRetry)
}

// Do performs an HTTP request with rate-limit gating, the per-request
// timeout, classification and retries. Any non-2xx answer is returned as an
// *UpstreamError carrying the upstream body.
func (c *Client) Do(req *http.Request) (*Response, error) {
	return c.do(req, c.config.Retry)
}

func (c *Client) do(req *http.Request, retry RetryConfig) (*Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, wait, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			// Unreadable cooldown state lets the request through.
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			upstreamRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			upstreamErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &UpstreamError{
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    fmt.Sprintf("upstream cooldown active, retry in %s", wait.Round(time.Second)),
			}
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing upstream request")

	var resp *Response
	err := retryWithBackoff(ctx, retry, c.logger, func(attempt int) (ErrorClass, error) {
		r, err := c.attempt(req, attempt)
		if err != nil {
			var upErr *UpstreamError
			if errors.As(err, &upErr) {
				return upErr.ErrorClass, err
			}
			return ErrorClassNetwork, err
		}
		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// attempt sends req once under the configured timeout and reads the body.
func (c *Client) attempt(req *http.Request, attempt int) (*Response, error) {
	parent := req.Context()
	ctx, cancel := context.WithTimeout(parent, c.config.Timeout)
	defer cancel()

	r := req.Clone(ctx)
	if attempt > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		r.Body = body
	}
	endpoint := r.URL.Path

	httpResp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, c.transportError(endpoint, ctx, parent, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(endpoint, ctx, parent, err)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromResponse(parent, httpResp.StatusCode, httpResp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit state")
		}
	}

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		errClass := ClassifyStatus(httpResp.StatusCode)
		upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")

		return nil, &UpstreamError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: errClass,
			Message:    httpResp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       body,
	}, nil
}

// transportError classifies a failure that produced no usable response.
func (c *Client) transportError(endpoint string, attemptCtx, parent context.Context, err error) error {
	errClass := ErrorClassNetwork
	cause := err
	message := "request failed"

	if isTimeout(attemptCtx, parent, err) {
		errClass = ErrorClassTimeout
		cause = fmt.Errorf("%w after %s", ErrTimeout, c.config.Timeout)
		message = "request timed out"
	}

	upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()
	upstreamRequestsTotal.WithLabelValues(endpoint, string(errClass)).Inc()

	c.logger.Error().
		Err(err).
		Str("endpoint", endpoint).
		Str("error_class", string(errClass)).
		Msg("Upstream request failed")

	return &UpstreamError{
		ErrorClass: errClass,
		Message:    message,
		Err:        cause,
	}
}

// isTimeout reports whether err came from our own per-request deadline
// rather than the caller cancelling.
func isTimeout(attemptCtx, parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
