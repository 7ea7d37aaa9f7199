package foursquare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchPlaces_Success(t *testing.T) {
	t.Parallel()

	want := SearchResponse{
		Results: []Place{{
			FsqID:  "4b5f1a2c",
			Name:   "Golden Dragon",
			Tel:    "(503) 555-0188",
			Rating: 8.7,
			Stats:  &Stats{TotalRatings: 45},
			Location: Location{
				FormattedAddress: "123 Main St, Portland, OR 97201",
			},
			Geocodes:   &Geocodes{Main: &LatLng{Latitude: 45.52, Longitude: -122.67}},
			Categories: []Category{{ID: 13065, Name: "Chinese Restaurant"}},
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		q := r.URL.Query()
		assert.Equal(t, "Portland, OR", q.Get("near"))
		assert.Equal(t, "13065", q.Get("categories"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Empty(t, q.Get("query"))

		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.SearchPlaces(context.Background(), SearchParams{
		Near:       "Portland, OR",
		Categories: "13065",
	})

	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Golden Dragon", got.Results[0].Name)
	assert.Equal(t, 8.7, got.Results[0].Rating)
}

func TestSearchPlaces_CustomLimitAndQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "Golden Dragon", q.Get("query"))
		json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchPlaces(context.Background(), SearchParams{
		Near:  "Portland, OR",
		Query: "Golden Dragon",
		Limit: 25,
	})
	require.NoError(t, err)
}

func TestSearchPlaces_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"invalid auth"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.SearchPlaces(context.Background(), SearchParams{Near: "Portland, OR"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestGetPlace_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places/4b5f1a2c", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(Place{
			FsqID: "4b5f1a2c",
			Name:  "Golden Dragon",
			Photos: []Photo{{
				Prefix: "https://fastly.4sqi.net/img/general/",
				Suffix: "/photo.jpg",
			}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.GetPlace(context.Background(), "4b5f1a2c")

	require.NoError(t, err)
	assert.Equal(t, "Golden Dragon", got.Name)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, "https://fastly.4sqi.net/img/general/original/photo.jpg", got.Photos[0].URL())
}
