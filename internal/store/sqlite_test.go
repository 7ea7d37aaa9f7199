package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placematch/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func fp(v float64) *float64 { return &v }

func TestNewSQLite_InvalidPath(t *testing.T) {
	s, err := NewSQLite("/nonexistent/dir/subdir/test.db")
	if err == nil {
		// Some platforms defer the failure to the first statement.
		_, err = s.db.Exec("SELECT 1")
		s.Close()
	}
	require.Error(t, err)
}

func TestSQLite_EntityRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	now := time.Now().UTC()
	e := &model.Entity{
		Name:           "Golden Dragon",
		Address:        "123 Main St",
		Latitude:       fp(45.5231),
		Longitude:      fp(-122.6765),
		Phone:          "5035550188",
		Categories:     []string{"chinese", "dim sum"},
		LastEnrichedAt: &now,
	}
	require.NoError(t, s.CreateEntity(ctx, e))
	require.NotZero(t, e.ID)

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Golden Dragon", got.Name)
	assert.Equal(t, "123 Main St", got.Address)
	assert.Equal(t, 45.5231, *got.Latitude)
	assert.Equal(t, []string{"chinese", "dim sum"}, got.Categories)
	require.NotNil(t, got.LastEnrichedAt)
}

func TestSQLite_GetEntityMissing(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.GetEntity(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateEntity(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	e := &model.Entity{Name: "Golden Dragon"}
	require.NoError(t, s.CreateEntity(ctx, e))

	e.Address = "123 Main St"
	e.Phone = "5035550188"
	require.NoError(t, s.UpdateEntity(ctx, e))

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "123 Main St", got.Address)
	assert.Equal(t, "5035550188", got.Phone)
}

func TestSQLite_UpdateEntityMissing(t *testing.T) {
	s := newTestSQLite(t)

	err := s.UpdateEntity(context.Background(), &model.Entity{ID: 999, Name: "ghost"})
	require.Error(t, err)
}

func TestSQLite_FindCandidates(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	in := &model.Entity{Name: "in box", Latitude: fp(45.52), Longitude: fp(-122.67), Phone: "555"}
	out := &model.Entity{Name: "out of box", Latitude: fp(45.60), Longitude: fp(-122.67)}
	noGPS := &model.Entity{Name: "no gps"}
	for _, e := range []*model.Entity{in, out, noGPS} {
		require.NoError(t, s.CreateEntity(ctx, e))
	}

	cands, err := s.FindCandidates(ctx, BBox{MinLat: 45.51, MaxLat: 45.53, MinLng: -122.68, MaxLng: -122.66})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, in.ID, cands[0].EntityID)
	assert.Equal(t, "in box", cands[0].Name)
	assert.Equal(t, "555", cands[0].Phone)
}

func TestSQLite_RatingsAndRefs(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	e := &model.Entity{Name: "Golden Dragon"}
	require.NoError(t, s.CreateEntity(ctx, e))

	require.NoError(t, s.UpsertExternalRef(ctx, e.ID, "yelp", "yelp-abc"))
	require.NoError(t, s.UpsertRating(ctx, e.ID, "yelp", model.SourceRating{Score: 4.5, ReviewCount: 100}))

	has, err := s.HasExternalRef(ctx, e.ID, "yelp")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasExternalRef(ctx, e.ID, "google")
	require.NoError(t, err)
	assert.False(t, has)

	// Upserts replace in place.
	require.NoError(t, s.UpsertRating(ctx, e.ID, "yelp", model.SourceRating{Score: 4.7, ReviewCount: 120}))
	require.NoError(t, s.UpsertExternalRef(ctx, e.ID, "yelp", "yelp-def"))

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.7, got.Ratings["yelp"].Score)
	assert.Equal(t, 120, got.Ratings["yelp"].ReviewCount)
	assert.Equal(t, "yelp-def", got.ExternalRefs["yelp"])
}

func TestSQLite_EntitiesMissingSource(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a := &model.Entity{Name: "has yelp"}
	b := &model.Entity{Name: "missing yelp"}
	require.NoError(t, s.CreateEntity(ctx, a))
	require.NoError(t, s.CreateEntity(ctx, b))
	require.NoError(t, s.UpsertExternalRef(ctx, a.ID, "yelp", "yelp-abc"))

	missing, err := s.EntitiesMissingSource(ctx, "yelp", 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, b.ID, missing[0].ID)

	missing, err = s.EntitiesMissingSource(ctx, "google", 10)
	require.NoError(t, err)
	assert.Len(t, missing, 2)
}

func TestSQLite_JobLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "Portland, OR", "sushi")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobPending, job.Status)

	claimed, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, model.JobRunning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	// Nothing left to claim.
	again, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	p := &model.Progress{Provider: "yelp", Phase: "indexing", Current: 3, Total: 10, Percent: 30}
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, p))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Progress)
	assert.Equal(t, "yelp", got.Progress.Provider)
	assert.Equal(t, 3, got.Progress.Current)

	result := &model.JobResult{Total: 10, Created: 6, Merged: 3, Updated: 1}
	require.NoError(t, s.MarkJobCompleted(ctx, job.ID, result))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, 10, got.Result.Total)
}

func TestSQLite_ClaimOrderIsFIFO(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.CreateJob(ctx, "Portland, OR", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.CreateJob(ctx, "Seattle, WA", "")
	require.NoError(t, err)

	claimed, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)

	claimed, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)
}

func TestSQLite_TerminalTransitionsAreGuarded(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "Portland, OR", "")
	require.NoError(t, err)

	// Pending jobs cannot jump straight to a terminal state.
	require.Error(t, s.MarkJobCompleted(ctx, job.ID, &model.JobResult{}))
	require.Error(t, s.MarkJobFailed(ctx, job.ID, "boom"))
	require.Error(t, s.UpdateJobProgress(ctx, job.ID, &model.Progress{}))

	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkJobFailed(ctx, job.ID, "boom"))

	// Terminal states are final.
	require.Error(t, s.MarkJobCompleted(ctx, job.ID, &model.JobResult{}))
	require.Error(t, s.UpdateJobProgress(ctx, job.ID, &model.Progress{}))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestSQLite_GetJobMissing(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.GetJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ListJobsNewestFirst(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, "Portland, OR", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newest, err := s.CreateJob(ctx, "Seattle, WA", "")
	require.NoError(t, err)

	jobs, err := s.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, newest.ID, jobs[0].ID)
}

func TestSQLite_FindRecentCompleted(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "Portland, OR", "sushi")
	require.NoError(t, err)
	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkJobCompleted(ctx, job.ID, &model.JobResult{Total: 5}))

	// Location comparison is case- and whitespace-insensitive.
	got, err := s.FindRecentCompleted(ctx, "  portland,   or ", "sushi", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)

	// Category must match exactly.
	got, err = s.FindRecentCompleted(ctx, "Portland, OR", "", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A zero window matches nothing.
	got, err = s.FindRecentCompleted(ctx, "Portland, OR", "sushi", -time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_TryRecordCall(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	limit := 2
	ok, err := s.TryRecordCall(ctx, "yelp", &limit, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryRecordCall(ctx, "yelp", &limit, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	// Third call exceeds the limit and does not increment.
	ok, err = s.TryRecordCall(ctx, "yelp", &limit, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := s.GetBudget(ctx, "yelp")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 2, b.Calls)
	require.NotNil(t, b.Limit)
	assert.Equal(t, 2, *b.Limit)
}

func TestSQLite_TryRecordCallUnlimited(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := s.TryRecordCall(ctx, "google", nil, time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
	}

	b, err := s.GetBudget(ctx, "google")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Calls)
	assert.Nil(t, b.Limit)
}

func TestSQLite_TryRecordCallWindowReset(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	limit := 1
	ok, err := s.TryRecordCall(ctx, "yelp", &limit, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)

	// The window elapsed, so the counter starts over.
	ok, err = s.TryRecordCall(ctx, "yelp", &limit, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	b, err := s.GetBudget(ctx, "yelp")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Calls)
}

func TestSQLite_GetBudgetMissing(t *testing.T) {
	s := newTestSQLite(t)

	b, err := s.GetBudget(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "portland, or", normalizeLocation("  Portland,   OR "))
	assert.Equal(t, normalizeLocation("Portland, OR"), normalizeLocation("portland, or"))
}
