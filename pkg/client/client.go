// Package client is a Go client for the story-travel HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kultrip/story-travel/internal/model"
)

const defaultTimeout = 90 * time.Second

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsBusy reports whether err means the session is waiting for an itinerary.
func IsBusy(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one server. A Client is bound to at most one session at a time.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the session token sent with session requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token.
func (c *Client) Token() string {
	return c.token
}

// CreateSession opens a session and keeps its token for later calls.
func (c *Client) CreateSession(ctx context.Context, travelStyle string) (*model.CreateSessionResponse, error) {
	var resp model.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", &model.CreateSessionRequest{TravelStyle: travelStyle}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// GetSession fetches the current view of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*model.SessionView, error) {
	var view model.SessionView
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ResetSession starts the conversation over.
func (c *Client) ResetSession(ctx context.Context, sessionID string) (*model.SessionView, error) {
	var view model.SessionView
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/reset"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID, ""), nil, nil)
}

// Send submits a free-text message and waits for the turn to settle.
func (c *Client) Send(ctx context.Context, sessionID, content string) (*model.TurnResult, error) {
	var res model.TurnResult
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/messages"), &model.SendMessageRequest{Content: content}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Suggest clicks a quick reply and waits for the turn to settle.
func (c *Client) Suggest(ctx context.Context, sessionID, suggestion string) (*model.TurnResult, error) {
	var res model.TurnResult
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/suggestions"), &model.SuggestionRequest{Suggestion: suggestion}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Destinations lists the destinations of the knowledge base.
func (c *Client) Destinations(ctx context.Context) ([]string, error) {
	var resp struct {
		Destinations []string `json:"destinations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/destinations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Destinations, nil
}

// Stories returns the stories set in a destination.
func (c *Client) Stories(ctx context.Context, destination string) (*model.DestinationStories, error) {
	var resp model.DestinationStories
	if err := c.do(ctx, http.MethodGet, "/api/v1/destinations/"+url.PathEscape(destination)+"/stories", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StoryDestination returns the destination best matching a story title.
func (c *Client) StoryDestination(ctx context.Context, story string) (*model.StoryDestination, error) {
	var resp model.StoryDestination
	if err := c.do(ctx, http.MethodGet, "/api/v1/stories/"+url.PathEscape(story)+"/destination", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(sessionID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
