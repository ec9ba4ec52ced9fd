// Package client provides the Customer.io App API client for segment
// membership pages, with outbound pacing and shared throttle tracking.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for Customer.io client operations.
var (
	cioRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cio_requests_total",
		Help: "Total Customer.io membership requests by status",
	}, []string{"status"})

	cioRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cio_request_duration_seconds",
		Help:    "Customer.io membership request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	cioErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cio_errors_total",
		Help: "Total Customer.io errors by class",
	}, []string{"class"})
)

// Page sizes used when the caller does not supply one.
const (
	DefaultAggregateLimit = 100
	DefaultPageSize       = 50
)

// maxErrorBody bounds how much of an error response is kept. Longer bodies
// are cut and a warning is logged.
const maxErrorBody = 1 << 20

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 throttling.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents undecodable 2xx bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// Throttle gates outbound calls on shared upstream throttle state.
// *ratelimit.Tracker implements it.
type Throttle interface {
	Wait(ctx context.Context) error
	Observe(ctx context.Context, status int, headers http.Header) error
}

// Page is one membership page as returned by Customer.io.
type Page struct {
	// Identifiers are passed through unmodified.
	Identifiers []json.RawMessage

	// Next is the cursor for the following page; empty when there is none.
	Next string
}

// HasNext reports whether the upstream returned a continuation cursor.
func (p *Page) HasNext() bool {
	return p.Next != ""
}

type membershipResponse struct {
	Identifiers []json.RawMessage `json:"identifiers"`
	Next        *string           `json:"next"`
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the App API root, e.g. https://api.customer.io/v1
	BaseURL string

	// APIKey is the App API bearer token.
	APIKey string

	UserAgent string

	// RequestsPerSecond paces outbound calls made through this client.
	RequestsPerSecond float64

	// Timeout bounds a single upstream call.
	Timeout time.Duration

	// Throttle is optional.
	Throttle Throttle
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:           "https://api.customer.io/v1",
		APIKey:            apiKey,
		UserAgent:         "cio-segment-proxy/0.1.0",
		RequestsPerSecond: 10,
		Timeout:           30 * time.Second,
	}
}

// Client is the Customer.io membership client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new Customer.io client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests_per_second must be > 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		config:  cfg,
		logger:  log.With().Str("component", "cio-client").Logger(),
	}, nil
}

// FetchPage requests one membership page. cursor is sent verbatim as start
// when non-empty. A non-2xx answer is returned as *UpstreamError.
func (c *Client) FetchPage(ctx context.Context, segmentID string, limit int, cursor string) (*Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidLimit, limit)
	}

	endpoint := c.membershipURL(segmentID, limit, cursor)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}
	if c.config.Throttle != nil {
		if err := c.config.Throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Info().
		Str("url", endpoint).
		Str("segment_id", segmentID).
		Str("cursor", cursor).
		Int("limit", limit).
		Msg("Customer.io API request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	cioRequestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		cioErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		cioRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).
			Str("segment_id", segmentID).
			Str("cursor", cursor).
			Msg("Customer.io API request failed")
		return nil, fmt.Errorf("request segment %s membership: %w", segmentID, err)
	}
	defer resp.Body.Close()

	cioRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.config.Throttle != nil {
		if err := c.config.Throttle.Observe(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record throttle state")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
			c.logger.Warn().
				Str("segment_id", segmentID).
				Int("status", resp.StatusCode).
				Int("kept_bytes", maxErrorBody).
				Msg("Customer.io error body exceeds limit - truncated")
		}
		class := classifyStatus(resp.StatusCode)
		cioErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Error().
			Str("segment_id", segmentID).
			Str("cursor", cursor).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Customer.io API request failed")

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Body:       body,
		}
	}

	var decoded membershipResponse
	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if errors.Is(err, io.EOF) {
		// Empty body: no identifiers and no cursor.
		return &Page{Identifiers: []json.RawMessage{}}, nil
	}
	if err != nil {
		cioErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		c.logger.Error().Err(err).
			Str("segment_id", segmentID).
			Str("cursor", cursor).
			Msg("Customer.io API response could not be decoded")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	page := &Page{Identifiers: decoded.Identifiers}
	if page.Identifiers == nil {
		page.Identifiers = []json.RawMessage{}
	}
	if decoded.Next != nil {
		page.Next = *decoded.Next
	}

	return page, nil
}

func (c *Client) membershipURL(segmentID string, limit int, cursor string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("start", cursor)
	}
	return c.baseURL + "/segments/" + url.PathEscape(segmentID) + "/membership?" + q.Encode()
}

// classifyStatus categorizes a non-2xx status for observability.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
