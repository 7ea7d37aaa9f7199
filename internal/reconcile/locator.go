// Package reconcile turns matcher decisions into store mutations: locating
// nearby candidates, creating new entities, and merging provider records into
// existing ones.
package reconcile

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/internal/store"
)

// DefaultRadiusDegrees is roughly ±1 km at mid latitudes.
const DefaultRadiusDegrees = 0.01

// Locator finds stored entities near a point as merge candidates.
type Locator struct {
	store  store.Store
	radius float64
}

// NewLocator creates a Locator with the given bounding half-width in degrees.
func NewLocator(st store.Store, radiusDegrees float64) *Locator {
	if radiusDegrees <= 0 {
		radiusDegrees = DefaultRadiusDegrees
	}
	return &Locator{store: st, radius: radiusDegrees}
}

// FindCandidates returns entities with coordinates inside a bounding box
// centered on the record. A record without GPS gets no candidates, which
// makes coordinate-less providers always create; the reverse-lookup phase
// exists to repair the duplicates that causes.
func (l *Locator) FindCandidates(ctx context.Context, rec *model.Record) ([]model.Candidate, error) {
	if !rec.HasGPS() {
		return nil, nil
	}

	bounds := geom.NewBounds(geom.XY)
	bounds.Extend(geom.NewPointFlat(geom.XY, []float64{*rec.Longitude - l.radius, *rec.Latitude - l.radius}))
	bounds.Extend(geom.NewPointFlat(geom.XY, []float64{*rec.Longitude + l.radius, *rec.Latitude + l.radius}))

	return l.store.FindCandidates(ctx, store.BBox{
		MinLat: bounds.Min(1),
		MaxLat: bounds.Max(1),
		MinLng: bounds.Min(0),
		MaxLng: bounds.Max(0),
	})
}
