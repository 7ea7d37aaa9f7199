// Package foursquare is a minimal Foursquare Places API client. The search
// endpoint returns a single unpaged page of roughly ten results.
package foursquare

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.foursquare.com/v3"

// DefaultLimit is the page size requested on search.
const DefaultLimit = 10

// Client performs Foursquare Places API operations.
type Client interface {
	SearchPlaces(ctx context.Context, params SearchParams) (*SearchResponse, error)
	GetPlace(ctx context.Context, fsqID string) (*Place, error)
}

// SearchParams are the query parameters for place search.
type SearchParams struct {
	Near       string
	Query      string
	Categories string
	Limit      int
}

// SearchResponse holds place search results.
type SearchResponse struct {
	Results []Place `json:"results"`
}

// Place represents a place returned by the API.
type Place struct {
	FsqID      string     `json:"fsq_id"`
	Name       string     `json:"name"`
	Tel        string     `json:"tel"`
	Rating     float64    `json:"rating"`
	Stats      *Stats     `json:"stats,omitempty"`
	Location   Location   `json:"location"`
	Geocodes   *Geocodes  `json:"geocodes,omitempty"`
	Categories []Category `json:"categories"`
	Photos     []Photo    `json:"photos"`
}

// Stats holds engagement counts.
type Stats struct {
	TotalRatings int `json:"total_ratings"`
}

// Location holds the place address.
type Location struct {
	FormattedAddress string `json:"formatted_address"`
	Address          string `json:"address"`
	Locality         string `json:"locality"`
	Region           string `json:"region"`
	Postcode         string `json:"postcode"`
}

// Geocodes holds coordinate sets for a place.
type Geocodes struct {
	Main *LatLng `json:"main,omitempty"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Category is one place category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Photo is a photo resource reference.
type Photo struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// URL assembles the full photo URL at original size.
func (p Photo) URL() string {
	return p.Prefix + "original" + p.Suffix
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Foursquare Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchPlaces(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("near", params.Near)
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	if params.Categories != "" {
		q.Set("categories", params.Categories)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q.Set("limit", strconv.Itoa(limit))

	var result SearchResponse
	if err := c.get(ctx, "/places/search?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetPlace(ctx context.Context, fsqID string) (*Place, error) {
	var result Place
	if err := c.get(ctx, "/places/"+url.PathEscape(fsqID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "foursquare: create request")
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "foursquare: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "foursquare: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("foursquare: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "foursquare: unmarshal response")
	}
	return nil
}
