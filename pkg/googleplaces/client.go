// Package googleplaces is a minimal Google Places API (New) client covering
// text search with token pagination and place details.
package googleplaces

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// searchFieldMask lists the place fields requested on text search.
const searchFieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.location,places.nationalPhoneNumber,places.rating," +
	"places.userRatingCount,places.types,nextPageToken"

// detailFieldMask lists the fields requested on place details.
const detailFieldMask = "id,displayName,formattedAddress,location," +
	"nationalPhoneNumber,rating,userRatingCount,types,photos"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query, pageToken string) (*TextSearchResponse, error)
	GetPlace(ctx context.Context, placeID string) (*Place, error)
}

// TextSearchResponse is one page of Places Text Search results.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                  string      `json:"id"`
	DisplayName         DisplayName `json:"displayName"`
	FormattedAddress    string      `json:"formattedAddress"`
	Location            *LatLng     `json:"location,omitempty"`
	NationalPhoneNumber string      `json:"nationalPhoneNumber"`
	Rating              float64     `json:"rating"`
	UserRatingCount     int         `json:"userRatingCount"`
	Types               []string    `json:"types"`
	Photos              []Photo     `json:"photos"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Photo is a photo resource reference.
type Photo struct {
	Name string `json:"name"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
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

// NewClient creates a Google Places API client.
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

type textSearchRequest struct {
	TextQuery string `json:"textQuery"`
	PageToken string `json:"pageToken,omitempty"`
}

func (c *httpClient) TextSearch(ctx context.Context, query, pageToken string) (*TextSearchResponse, error) {
	body, err := json.Marshal(textSearchRequest{TextQuery: query, PageToken: pageToken})
	if err != nil {
		return nil, eris.Wrap(err, "googleplaces: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "googleplaces: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", searchFieldMask)

	var result TextSearchResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetPlace(ctx context.Context, placeID string) (*Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+placeID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "googleplaces: create request")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", detailFieldMask)

	var result Place
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "googleplaces: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "googleplaces: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("googleplaces: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "googleplaces: unmarshal response")
	}
	return nil
}
