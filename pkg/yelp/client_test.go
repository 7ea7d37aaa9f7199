package yelp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchBusinesses_Success(t *testing.T) {
	t.Parallel()

	want := SearchResponse{
		Businesses: []Business{{
			ID:          "golden-dragon-portland",
			Name:        "Golden Dragon",
			Rating:      4.5,
			ReviewCount: 120,
			Phone:       "+15035550188",
			Coordinates: &Coordinates{Latitude: 45.52, Longitude: -122.67},
			Location: Location{
				Address1:       "123 Main St",
				DisplayAddress: []string{"123 Main St", "Portland, OR 97201"},
			},
			Categories: []Category{{Alias: "chinese", Title: "Chinese"}},
		}},
		Total: 120,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/businesses/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "Portland, OR", q.Get("location"))
		assert.Equal(t, "restaurants", q.Get("term"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Empty(t, q.Get("offset"))

		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.SearchBusinesses(context.Background(), SearchParams{
		Location: "Portland, OR",
		Term:     "restaurants",
	})

	require.NoError(t, err)
	require.Len(t, got.Businesses, 1)
	assert.Equal(t, "Golden Dragon", got.Businesses[0].Name)
	assert.Equal(t, 120, got.Total)
}

func TestSearchBusinesses_OffsetAndLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "50", q.Get("offset"))
		json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchBusinesses(context.Background(), SearchParams{
		Location: "Portland, OR",
		Limit:    25,
		Offset:   50,
	})
	require.NoError(t, err)
}

func TestSearchBusinesses_ClampsOversizedLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchBusinesses(context.Background(), SearchParams{
		Location: "Portland, OR",
		Limit:    200,
	})
	require.NoError(t, err)
}

func TestSearchBusinesses_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"TOKEN_INVALID"}}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.SearchBusinesses(context.Background(), SearchParams{Location: "Portland, OR"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGetBusiness_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/golden-dragon-portland", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(Business{
			ID:     "golden-dragon-portland",
			Name:   "Golden Dragon",
			Photos: []string{"https://img.example.com/1.jpg"},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.GetBusiness(context.Background(), "golden-dragon-portland")

	require.NoError(t, err)
	assert.Equal(t, "Golden Dragon", got.Name)
	assert.Equal(t, []string{"https://img.example.com/1.jpg"}, got.Photos)
}

func TestGetBusiness_EscapesID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/caf%C3%A9-m%C3%BCnchen", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(Business{ID: "café-münchen"})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GetBusiness(context.Background(), "café-münchen")
	require.NoError(t, err)
}
