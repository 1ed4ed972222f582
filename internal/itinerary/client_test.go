package itinerary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kultrip/story-travel/internal/model"
)

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}

func TestGenerate_PostsRequestAndReturnsPayload(t *testing.T) {
	var got model.ItineraryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"days":[{"title":"Day 1"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	req := model.NewItineraryRequest(model.Slots{Destination: "London", Story: "Harry Potter"})
	raw, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	require.JSONEq(t, `{"days":[{"title":"Day 1"}]}`, string(raw))

	require.Equal(t, model.ItineraryRequest{
		Destination:  "London",
		Inspiration:  "Harry Potter",
		TravelerType: "explorer",
		Duration:     "3 days",
		Interests:    "Harry Potter",
	}, got)
}

func TestGenerate_RequestBodyFieldNames(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), model.NewItineraryRequest(model.Slots{Destination: "Rome"}))
	require.NoError(t, err)

	require.Equal(t, map[string]any{
		"destination":  "Rome",
		"inspiration":  "none",
		"travelerType": "explorer",
		"duration":     "3 days",
		"interests":    "culture, sightseeing",
	}, body)
}

func TestGenerate_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), &model.ItineraryRequest{Destination: "Paris"})
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.HTTPStatusCode())
	require.Contains(t, statusErr.Body, "boom")
}

func TestGenerate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), &model.ItineraryRequest{Destination: "Paris"})
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), &model.ItineraryRequest{Destination: "Paris"})
	require.Error(t, err)
}

func TestGenerate_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Generate(ctx, &model.ItineraryRequest{Destination: "Paris"})
	require.ErrorIs(t, err, context.Canceled)
}
