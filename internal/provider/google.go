package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/placematch/internal/config"
	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/pkg/googleplaces"
)

// GoogleAdapter wraps the Places API. Pagination is token-based with a short
// server-side warm-up before a nextPageToken becomes valid, so the adapter
// delays before fetching any page after the first.
type GoogleAdapter struct {
	client    googleplaces.Client
	limiter   *rate.Limiter
	key       string
	maxPages  int
	pageDelay time.Duration
}

// NewGoogleAdapter creates the Google Places adapter.
func NewGoogleAdapter(cfg config.GoogleConfig, client googleplaces.Client) *GoogleAdapter {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 10
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 3
	}
	pageDelay := time.Duration(cfg.PageDelayMS) * time.Millisecond
	if pageDelay <= 0 {
		pageDelay = 2 * time.Second
	}
	return &GoogleAdapter{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rateLimit), 1),
		key:       cfg.Key,
		maxPages:  maxPages,
		pageDelay: pageDelay,
	}
}

// Name returns the source identifier.
func (a *GoogleAdapter) Name() string { return "google" }

// Configured reports whether an API key is present.
func (a *GoogleAdapter) Configured() bool { return a.key != "" }

// SearchByArea pages through text search. The returned token carries the page
// number alongside the API token so the adapter can enforce its own page cap.
func (a *GoogleAdapter) SearchByArea(ctx context.Context, location, category, pageToken string) (*Page, error) {
	pageNum, apiToken, err := splitGoogleToken(pageToken)
	if err != nil {
		return nil, err
	}

	if apiToken != "" {
		// nextPageToken is not immediately valid server-side.
		timer := time.NewTimer(a.pageDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("restaurants in %s", location)
	if category != "" {
		query = fmt.Sprintf("%s restaurants in %s", category, location)
	}

	resp, err := a.client.TextSearch(ctx, query, apiToken)
	if err != nil {
		return nil, eris.Wrap(err, "google: text search")
	}

	page := &Page{Records: make([]model.Record, 0, len(resp.Places))}
	for _, p := range resp.Places {
		page.Records = append(page.Records, googleRecord(p))
	}
	if resp.NextPageToken != "" && pageNum+1 < a.maxPages {
		page.NextPageToken = fmt.Sprintf("%d|%s", pageNum+1, resp.NextPageToken)
	}
	return page, nil
}

// SearchByName runs a single-page text search for an establishment name.
func (a *GoogleAdapter) SearchByName(ctx context.Context, name, location string) ([]model.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := name
	if location != "" {
		query = fmt.Sprintf("%s %s", name, location)
	}
	resp, err := a.client.TextSearch(ctx, query, "")
	if err != nil {
		return nil, eris.Wrap(err, "google: search by name")
	}

	records := make([]model.Record, 0, len(resp.Places))
	for _, p := range resp.Places {
		records = append(records, googleRecord(p))
	}
	return records, nil
}

// GetDetails fetches the full place record.
func (a *GoogleAdapter) GetDetails(ctx context.Context, externalID string) (*model.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	p, err := a.client.GetPlace(ctx, externalID)
	if err != nil {
		return nil, eris.Wrap(err, "google: get place")
	}
	rec := googleRecord(*p)
	return &rec, nil
}

// googleTypeNoise lists generic place types that carry no category signal.
var googleTypeNoise = map[string]bool{
	"point_of_interest": true,
	"establishment":     true,
	"food":              true,
}

func googleRecord(p googleplaces.Place) model.Record {
	rec := model.Record{
		ExternalID:  p.ID,
		Name:        p.DisplayName.Text,
		Address:     p.FormattedAddress,
		Phone:       p.NationalPhoneNumber,
		ReviewCount: p.UserRatingCount,
	}
	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		rec.Latitude = &lat
		rec.Longitude = &lng
	}
	if p.Rating > 0 {
		rating := p.Rating
		rec.Rating = &rating
	}
	for _, t := range p.Types {
		if !googleTypeNoise[t] {
			rec.Categories = append(rec.Categories, strings.ReplaceAll(t, "_", " "))
		}
	}
	for _, ph := range p.Photos {
		rec.Photos = append(rec.Photos, ph.Name)
	}
	return rec
}

// splitGoogleToken decodes "pageNum|apiToken". An empty token is page zero.
func splitGoogleToken(token string) (int, string, error) {
	if token == "" {
		return 0, "", nil
	}
	idx := strings.IndexByte(token, '|')
	if idx < 0 {
		return 0, "", eris.Errorf("google: malformed page token %q", token)
	}
	n, err := strconv.Atoi(token[:idx])
	if err != nil {
		return 0, "", eris.Wrapf(err, "google: malformed page token %q", token)
	}
	return n, token[idx+1:], nil
}
