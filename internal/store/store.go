// Package store persists entities, jobs, and provider budgets. Two drivers
// are provided: SQLite for single-node deployments and Postgres for shared
// ones. Both give the same guarantees: job claims and budget increments are
// single atomic read-modify-write operations.
package store

import (
	"context"
	"time"

	"github.com/sells-group/placematch/internal/model"
)

// BBox is a latitude/longitude bounding box for candidate queries.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Store defines the persistence interface for the reconciliation pipeline.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id int64) (*model.Entity, error)
	UpdateEntity(ctx context.Context, e *model.Entity) error
	CountEntities(ctx context.Context) (int, error)

	// FindCandidates returns entities with non-null coordinates inside the
	// bounding box, ordered by id for deterministic tie-breaking.
	FindCandidates(ctx context.Context, box BBox) ([]model.Candidate, error)

	// EntitiesMissingSource returns entities that have no external ref for
	// the given source, ordered by id.
	EntitiesMissingSource(ctx context.Context, source string, limit int) ([]model.Entity, error)

	UpsertRating(ctx context.Context, entityID int64, source string, rating model.SourceRating) error
	UpsertExternalRef(ctx context.Context, entityID int64, source, externalID string) error
	HasExternalRef(ctx context.Context, entityID int64, source string) (bool, error)

	// Jobs
	CreateJob(ctx context.Context, location, category string) (*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)

	// ClaimNextPending atomically flips the oldest pending job to running
	// and returns it. Returns (nil, nil) when no job is pending.
	ClaimNextPending(ctx context.Context) (*model.Job, error)

	UpdateJobProgress(ctx context.Context, id string, p *model.Progress) error
	MarkJobCompleted(ctx context.Context, id string, result *model.JobResult) error
	MarkJobFailed(ctx context.Context, id string, errMsg string) error

	// FindRecentCompleted returns the most recent completed job for the
	// normalized (location, category) pair finished within the window, or
	// (nil, nil).
	FindRecentCompleted(ctx context.Context, location, category string, within time.Duration) (*model.Job, error)

	// Budgets

	// TryRecordCall atomically resets the provider's window if elapsed, then
	// increments its counter if under the limit. Returns false when the
	// budget is exhausted (no increment happens). A nil limit is unlimited.
	TryRecordCall(ctx context.Context, provider string, limit *int, window time.Duration) (bool, error)

	GetBudget(ctx context.Context, provider string) (*model.Budget, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
