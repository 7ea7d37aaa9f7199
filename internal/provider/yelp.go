package provider

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/placematch/internal/config"
	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/pkg/yelp"
)

// YelpAdapter wraps the Fusion API. Pagination is deep offset paging, capped
// at the configured max results (the API itself stops at offset 1000).
type YelpAdapter struct {
	client     yelp.Client
	limiter    *rate.Limiter
	key        string
	maxResults int
}

// NewYelpAdapter creates the Yelp Fusion adapter.
func NewYelpAdapter(cfg config.YelpConfig, client yelp.Client) *YelpAdapter {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 10
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 1000
	}
	return &YelpAdapter{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(rateLimit), 1),
		key:        cfg.Key,
		maxResults: maxResults,
	}
}

// Name returns the source identifier.
func (a *YelpAdapter) Name() string { return "yelp" }

// Configured reports whether an API key is present.
func (a *YelpAdapter) Configured() bool { return a.key != "" }

// SearchByArea pages through business search. The page token is the next
// offset rendered as a decimal string.
func (a *YelpAdapter) SearchByArea(ctx context.Context, location, category, pageToken string) (*Page, error) {
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, eris.Wrapf(err, "yelp: malformed page token %q", pageToken)
		}
		offset = n
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	term := "restaurants"
	if category != "" {
		term = category + " restaurants"
	}
	resp, err := a.client.SearchBusinesses(ctx, yelp.SearchParams{
		Location: location,
		Term:     term,
		Limit:    yelp.MaxPageSize,
		Offset:   offset,
	})
	if err != nil {
		return nil, eris.Wrap(err, "yelp: search businesses")
	}

	page := &Page{
		Records:        make([]model.Record, 0, len(resp.Businesses)),
		EstimatedTotal: resp.Total,
	}
	for _, b := range resp.Businesses {
		page.Records = append(page.Records, yelpRecord(b))
	}

	cap := resp.Total
	if cap > a.maxResults {
		cap = a.maxResults
	}
	next := offset + len(resp.Businesses)
	if len(resp.Businesses) > 0 && next < cap {
		page.NextPageToken = strconv.Itoa(next)
	}
	return page, nil
}

// SearchByName runs a single search page against a name term.
func (a *YelpAdapter) SearchByName(ctx context.Context, name, location string) ([]model.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := a.client.SearchBusinesses(ctx, yelp.SearchParams{
		Location: location,
		Term:     name,
		Limit:    10,
	})
	if err != nil {
		return nil, eris.Wrap(err, "yelp: search by name")
	}

	records := make([]model.Record, 0, len(resp.Businesses))
	for _, b := range resp.Businesses {
		records = append(records, yelpRecord(b))
	}
	return records, nil
}

// GetDetails fetches the full business record (adds photos).
func (a *YelpAdapter) GetDetails(ctx context.Context, externalID string) (*model.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	b, err := a.client.GetBusiness(ctx, externalID)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: get business")
	}
	rec := yelpRecord(*b)
	return &rec, nil
}

func yelpRecord(b yelp.Business) model.Record {
	rec := model.Record{
		ExternalID:  b.ID,
		Name:        b.Name,
		Address:     strings.Join(b.Location.DisplayAddress, ", "),
		Phone:       b.Phone,
		ReviewCount: b.ReviewCount,
		Photos:      b.Photos,
	}
	if b.Coordinates != nil {
		lat, lng := b.Coordinates.Latitude, b.Coordinates.Longitude
		rec.Latitude = &lat
		rec.Longitude = &lng
	}
	if b.Rating > 0 {
		rating := b.Rating
		rec.Rating = &rating
	}
	for _, c := range b.Categories {
		rec.Categories = append(rec.Categories, c.Title)
	}
	if len(rec.Photos) == 0 && b.ImageURL != "" {
		rec.Photos = []string{b.ImageURL}
	}
	return rec
}
