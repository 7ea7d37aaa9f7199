package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/internal/store"
)

// Service is the job control surface used by the CLI and the HTTP handlers.
type Service struct {
	store    store.Store
	cacheTTL time.Duration
}

// NewService creates a Service with the given result freshness window.
func NewService(st store.Store, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Service{store: st, cacheTTL: cacheTTL}
}

// CreateOrReuse returns a recently completed job for the same location and
// category instead of creating a new one, unless force is set. The bool
// reports whether the returned job came from the cache.
func (s *Service) CreateOrReuse(ctx context.Context, location, category string, force bool) (*model.Job, bool, error) {
	if location == "" {
		return nil, false, eris.New("jobs: location is required")
	}

	if !force {
		recent, err := s.store.FindRecentCompleted(ctx, location, category, s.cacheTTL)
		if err != nil {
			return nil, false, eris.Wrap(err, "jobs: recent lookup")
		}
		if recent != nil {
			zap.L().Info("returning cached run",
				zap.String("job_id", recent.ID),
				zap.String("location", location),
			)
			return recent, true, nil
		}
	}

	job, err := s.store.CreateJob(ctx, location, category)
	if err != nil {
		return nil, false, eris.Wrap(err, "jobs: create")
	}
	return job, false, nil
}

// Get returns a job by id, or nil when unknown.
func (s *Service) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.store.GetJob(ctx, id)
}

// List returns recent jobs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]model.Job, error) {
	return s.store.ListJobs(ctx, limit)
}
