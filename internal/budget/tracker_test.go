package budget

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placematch/internal/store"
)

func newTestTracker(t *testing.T, limits map[string]*int) *Tracker {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return New(s, limits, time.Hour)
}

func intp(v int) *int { return &v }

func TestTracker_ConsumesUntilExhausted(t *testing.T) {
	tr := newTestTracker(t, map[string]*int{"yelp": intp(2)})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := tr.RecordCall(ctx, "yelp")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := tr.RecordCall(ctx, "yelp")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := tr.Remaining(ctx, "yelp")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestTracker_UnlimitedProvider(t *testing.T) {
	tr := newTestTracker(t, nil)
	ctx := context.Background()

	ok, err := tr.CanCall(ctx, "google")
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := tr.Remaining(ctx, "google")
	require.NoError(t, err)
	assert.Equal(t, -1, remaining)

	for i := 0; i < 5; i++ {
		ok, err := tr.RecordCall(ctx, "google")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestTracker_RemainingBeforeFirstCall(t *testing.T) {
	tr := newTestTracker(t, map[string]*int{"yelp": intp(100)})

	remaining, err := tr.Remaining(context.Background(), "yelp")
	require.NoError(t, err)
	assert.Equal(t, 100, remaining)
}

func TestTracker_CanCallDoesNotConsume(t *testing.T) {
	tr := newTestTracker(t, map[string]*int{"yelp": intp(1)})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := tr.CanCall(ctx, "yelp")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := tr.RecordCall(ctx, "yelp")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.CanCall(ctx, "yelp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_ZeroLimitBlocksImmediately(t *testing.T) {
	tr := newTestTracker(t, map[string]*int{"yelp": intp(0)})
	ctx := context.Background()

	ok, err := tr.CanCall(ctx, "yelp")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tr.RecordCall(ctx, "yelp")
	require.NoError(t, err)
	assert.False(t, ok)
}
