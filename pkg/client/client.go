// Package client provides the signed HTTP transport to the Marvel API with
// pooled connections, optional outbound pacing, quota gating and metrics.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/auth"
	"github.com/Sternrassler/marvel-client/pkg/quota"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://gateway.marvel.com:443/v1/public"

// Prometheus metrics for upstream calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marvel_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; endpoints are appended to it.
	BaseURL string

	// Credentials sign every request. Both keys are required.
	Credentials auth.Credentials

	// UserAgent header sent upstream.
	UserAgent string

	// Timeout bounds a single upstream call.
	Timeout time.Duration

	// RateLimit caps outbound requests per second. 0 disables pacing.
	RateLimit float64

	// MaxIdleConnsPerHost sizes the keep-alive pool.
	MaxIdleConnsPerHost int

	// Quota gates calls against the daily budget. nil disables tracking.
	Quota *quota.Tracker
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(creds auth.Credentials) Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		Credentials:         creds,
		UserAgent:           "marvel-client/0.1.0",
		Timeout:             10 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// Client is a reusable, concurrency-safe upstream client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	signer     *auth.Signer
	limiter    *rate.Limiter
	quota      *quota.Tracker
	config     Config
	logger     zerolog.Logger
}

// New validates cfg and creates a client. Missing credentials are an error.
func New(cfg Config) (*Client, error) {
	signer, err := auth.NewSigner(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 16
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL: base,
		signer:  signer,
		limiter: limiter,
		quota:   cfg.Quota,
		config:  cfg,
		logger:  log.With().Str("component", "marvel-client").Logger(),
	}, nil
}

// Do signs and executes req. Non-200 responses are returned as-is; callers
// decide what a status means for their endpoint.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Quota gate
	allowed, err := c.quota.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Quota check failed")
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !allowed {
		c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by quota")
		requestsTotal.WithLabelValues(endpoint, "quota_blocked").Inc()
		return nil, ErrQuotaExhausted
	}

	// Step 2: Outbound pacing
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	// Step 3: Sign
	params := c.signer.Sign()
	q := req.URL.Query()
	params.Apply(q)
	req.URL.RawQuery = q.Encode()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("ts", params.Timestamp).
		Msg("Executing upstream request")

	// Step 4: Count the call, then execute
	if err := c.quota.RecordCall(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record quota call")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Upstream request failed")
		return nil, fmt.Errorf("upstream request %s: %w", endpoint, err)
	}

	// Step 5: Observe the outcome
	if err := c.quota.RecordResponse(ctx, resp.StatusCode); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record quota response")
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		errClass := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")
	}

	return resp, nil
}

// Get issues a signed GET for endpoint (relative to BaseURL) with params.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// GetJSON issues a signed GET and returns the body of a 200 response
// unmodified. Any other status yields an *UpstreamError carrying failMsg.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, failMsg string) ([]byte, error) {
	resp, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection goes back to the pool
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    failMsg,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	return body, nil
}

// classifyError categorizes an error for observability.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Ping checks the quota backend, if any.
func (c *Client) Ping(ctx context.Context) error {
	return c.quota.Ping(ctx)
}

// Close releases idle pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// endpointLabel turns a request path into a low-cardinality metric label:
// the /v1/public prefix is dropped and numeric ids become {id}.
func endpointLabel(path string) string {
	if i := strings.Index(path, "/v1/public"); i >= 0 {
		path = path[i+len("/v1/public"):]
	}
	path = numericSegment.ReplaceAllString(path, "/{id}$1")
	if path == "" {
		return "/"
	}
	return path
}

// IsTimeout reports whether err is a deadline or net timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
