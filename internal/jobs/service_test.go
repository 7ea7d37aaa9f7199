package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func completeJob(t *testing.T, st *store.SQLiteStore, location, category string) *model.Job {
	t.Helper()
	ctx := context.Background()
	job, err := st.CreateJob(ctx, location, category)
	require.NoError(t, err)
	_, err = st.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, st.MarkJobCompleted(ctx, job.ID, &model.JobResult{Total: 7}))
	return job
}

func TestCreateOrReuse_RequiresLocation(t *testing.T) {
	svc := NewService(newTestStore(t), time.Hour)

	_, _, err := svc.CreateOrReuse(context.Background(), "", "", false)
	require.Error(t, err)
}

func TestCreateOrReuse_CreatesWhenNoRecentRun(t *testing.T) {
	svc := NewService(newTestStore(t), time.Hour)

	job, cached, err := svc.CreateOrReuse(context.Background(), "Portland, OR", "sushi", false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, "Portland, OR", job.Location)
}

func TestCreateOrReuse_ReturnsCachedRun(t *testing.T) {
	st := newTestStore(t)
	done := completeJob(t, st, "Portland, OR", "sushi")
	svc := NewService(st, time.Hour)

	job, cached, err := svc.CreateOrReuse(context.Background(), "portland, or", "sushi", false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, done.ID, job.ID)
	require.NotNil(t, job.Result)
	assert.Equal(t, 7, job.Result.Total)
}

func TestCreateOrReuse_ForceBypassesCache(t *testing.T) {
	st := newTestStore(t)
	done := completeJob(t, st, "Portland, OR", "sushi")
	svc := NewService(st, time.Hour)

	job, cached, err := svc.CreateOrReuse(context.Background(), "Portland, OR", "sushi", true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotEqual(t, done.ID, job.ID)
	assert.Equal(t, model.JobPending, job.Status)
}

func TestCreateOrReuse_DifferentCategoryMisses(t *testing.T) {
	st := newTestStore(t)
	completeJob(t, st, "Portland, OR", "sushi")
	svc := NewService(st, time.Hour)

	_, cached, err := svc.CreateOrReuse(context.Background(), "Portland, OR", "ramen", false)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestGetAndList(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, time.Hour)
	ctx := context.Background()

	job, _, err := svc.CreateOrReuse(ctx, "Portland, OR", "", false)
	require.NoError(t, err)

	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)

	missing, err := svc.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := svc.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
