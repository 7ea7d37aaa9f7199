// Package provider defines the adapter contract each external listing source
// implements, plus the adapters for Google Places, Yelp Fusion, and
// Foursquare. Each adapter owns its source's pagination shape and rate limit;
// the orchestrator never computes pages itself.
package provider

import (
	"context"

	"github.com/sells-group/placematch/internal/model"
)

// Page is one page of area search results. NextPageToken is opaque to the
// caller: pass it back unchanged to get the next page, stop when it is empty.
type Page struct {
	Records []model.Record

	// NextPageToken requests the following page; empty means exhausted.
	NextPageToken string

	// EstimatedTotal is the source's estimate of total matching records,
	// or 0 when the source does not report one.
	EstimatedTotal int
}

// Adapter normalizes one external data source into the common record shape.
type Adapter interface {
	// Name returns the unique source identifier (e.g. "google", "yelp").
	Name() string

	// Configured reports whether credentials are present.
	Configured() bool

	// SearchByArea returns one page of records near a location. category is
	// optional. pageToken is empty for the first page.
	SearchByArea(ctx context.Context, location, category, pageToken string) (*Page, error)

	// SearchByName searches the source by establishment name, with location
	// as a hint. Used during reverse lookup.
	SearchByName(ctx context.Context, name, location string) ([]model.Record, error)

	// GetDetails fetches the full record for an external id, filling fields
	// the search response omits (GPS, phone, categories, photos).
	GetDetails(ctx context.Context, externalID string) (*model.Record, error)
}
