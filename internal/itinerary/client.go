// Package itinerary talks to the external itinerary generation service.
package itinerary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/model"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/metrics"
	"github.com/kultrip/story-travel/pkg/tracing"
)

const defaultTimeout = 60 * time.Second

// ErrInvalidResponse is returned when the service answers 2xx with a body that is not JSON.
var ErrInvalidResponse = errors.New("itinerary: response is not valid JSON")

// HTTPStatusError captures non-2xx responses from the itinerary service.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("itinerary: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// HTTPStatusCode returns the response status.
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts itinerary requests and returns the raw JSON result.
type Client struct {
	url        string
	httpClient *http.Client
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithLogger sets the logger for request failures.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a client for the service at url.
func NewClient(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("itinerary: url must not be empty")
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate sends req and returns the service's JSON payload unmodified.
func (c *Client) Generate(ctx context.Context, req *model.ItineraryRequest) (json.RawMessage, error) {
	ctx, span := tracing.Tracer("itinerary").Start(ctx, "itinerary.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("itinerary.destination", req.Destination),
		attribute.String("itinerary.inspiration", req.Inspiration),
		attribute.String("itinerary.duration", req.Duration),
	)

	start := time.Now()
	raw, err := c.generate(ctx, req)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			status = strconv.Itoa(statusErr.StatusCode)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("itinerary request failed",
			zap.String("destination", req.Destination),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	metrics.RecordItinerary(status, elapsed.Seconds())
	return raw, err
}

func (c *Client) generate(ctx context.Context, req *model.ItineraryRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("itinerary: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("itinerary: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("itinerary: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("itinerary: read response body: %w", err)
	}
	if !json.Valid(buf) {
		return nil, ErrInvalidResponse
	}
	return json.RawMessage(buf), nil
}
