// Package yelp is a minimal Yelp Fusion API client covering business search
// with offset pagination and business details.
package yelp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.yelp.com/v3"

// MaxPageSize is the largest page the search endpoint accepts.
const MaxPageSize = 50

// Client performs Yelp Fusion API operations.
type Client interface {
	SearchBusinesses(ctx context.Context, params SearchParams) (*SearchResponse, error)
	GetBusiness(ctx context.Context, id string) (*Business, error)
}

// SearchParams are the query parameters for business search.
type SearchParams struct {
	Location   string
	Term       string
	Categories string
	Limit      int
	Offset     int
}

// SearchResponse is one page of business search results.
type SearchResponse struct {
	Businesses []Business `json:"businesses"`
	Total      int        `json:"total"`
}

// Business represents a business returned by the API.
type Business struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Rating      float64      `json:"rating"`
	ReviewCount int          `json:"review_count"`
	Phone       string       `json:"phone"`
	ImageURL    string       `json:"image_url"`
	Photos      []string     `json:"photos"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Location    Location     `json:"location"`
	Categories  []Category   `json:"categories"`
}

// Coordinates is a WGS84 coordinate pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location holds the business address.
type Location struct {
	Address1       string   `json:"address1"`
	City           string   `json:"city"`
	State          string   `json:"state"`
	ZipCode        string   `json:"zip_code"`
	DisplayAddress []string `json:"display_address"`
}

// Category is one business category.
type Category struct {
	Alias string `json:"alias"`
	Title string `json:"title"`
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

// NewClient creates a Yelp Fusion API client.
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

func (c *httpClient) SearchBusinesses(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("location", params.Location)
	if params.Term != "" {
		q.Set("term", params.Term)
	}
	if params.Categories != "" {
		q.Set("categories", params.Categories)
	}
	limit := params.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	q.Set("limit", strconv.Itoa(limit))
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	var result SearchResponse
	if err := c.get(ctx, "/businesses/search?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetBusiness(ctx context.Context, id string) (*Business, error) {
	var result Business
	if err := c.get(ctx, "/businesses/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "yelp: create request")
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "yelp: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "yelp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("yelp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "yelp: unmarshal response")
	}
	return nil
}
