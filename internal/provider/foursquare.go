package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/placematch/internal/config"
	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/pkg/foursquare"
)

// foursquareRestaurants is the Foursquare category id for restaurants.
const foursquareRestaurants = "13065"

// FoursquareAdapter wraps the Places API. Search returns a single unpaged
// page of roughly ten results, so coverage is sparse and the adapter relies
// on the reverse-lookup phase to attach its ratings to known entities.
type FoursquareAdapter struct {
	client  foursquare.Client
	limiter *rate.Limiter
	key     string
}

// NewFoursquareAdapter creates the Foursquare adapter.
func NewFoursquareAdapter(cfg config.FoursquareConfig, client foursquare.Client) *FoursquareAdapter {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 5
	}
	return &FoursquareAdapter{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		key:     cfg.Key,
	}
}

// Name returns the source identifier.
func (a *FoursquareAdapter) Name() string { return "foursquare" }

// Configured reports whether an API key is present.
func (a *FoursquareAdapter) Configured() bool { return a.key != "" }

// SearchByArea returns the single page the API supports. NextPageToken is
// always empty.
func (a *FoursquareAdapter) SearchByArea(ctx context.Context, location, category, pageToken string) (*Page, error) {
	if pageToken != "" {
		return nil, eris.Errorf("foursquare: unexpected page token %q", pageToken)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := a.client.SearchPlaces(ctx, foursquare.SearchParams{
		Near:       location,
		Query:      category,
		Categories: foursquareRestaurants,
	})
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: search places")
	}

	page := &Page{Records: make([]model.Record, 0, len(resp.Results))}
	for _, p := range resp.Results {
		page.Records = append(page.Records, foursquareRecord(p))
	}
	return page, nil
}

// SearchByName searches by establishment name near a location.
func (a *FoursquareAdapter) SearchByName(ctx context.Context, name, location string) ([]model.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := a.client.SearchPlaces(ctx, foursquare.SearchParams{
		Near:  location,
		Query: name,
	})
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: search by name")
	}

	records := make([]model.Record, 0, len(resp.Results))
	for _, p := range resp.Results {
		records = append(records, foursquareRecord(p))
	}
	return records, nil
}

// GetDetails fetches the full place record.
func (a *FoursquareAdapter) GetDetails(ctx context.Context, externalID string) (*model.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	p, err := a.client.GetPlace(ctx, externalID)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: get place")
	}
	rec := foursquareRecord(*p)
	return &rec, nil
}

func foursquareRecord(p foursquare.Place) model.Record {
	addr := p.Location.FormattedAddress
	if addr == "" {
		addr = p.Location.Address
	}
	rec := model.Record{
		ExternalID: p.FsqID,
		Name:       p.Name,
		Address:    addr,
		Phone:      p.Tel,
	}
	if p.Geocodes != nil && p.Geocodes.Main != nil {
		lat, lng := p.Geocodes.Main.Latitude, p.Geocodes.Main.Longitude
		rec.Latitude = &lat
		rec.Longitude = &lng
	}
	if p.Rating > 0 {
		rating := p.Rating
		rec.Rating = &rating
	}
	if p.Stats != nil {
		rec.ReviewCount = p.Stats.TotalRatings
	}
	for _, c := range p.Categories {
		rec.Categories = append(rec.Categories, c.Name)
	}
	for _, ph := range p.Photos {
		rec.Photos = append(rec.Photos, ph.URL())
	}
	return rec
}
