package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placematch/internal/budget"
	"github.com/sells-group/placematch/internal/jobs"
	"github.com/sells-group/placematch/internal/provider"
	"github.com/sells-group/placematch/internal/store"
)

func newTestEnv(t *testing.T) *env {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	return &env{
		Store:    st,
		Registry: provider.NewRegistry(),
		Budget:   budget.New(st, nil, budget.DefaultWindow),
		Jobs:     jobs.NewService(st, time.Hour),
	}
}

func TestRouter_Health(t *testing.T) {
	r := buildRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_GetJob_UnknownIDReturns404(t *testing.T) {
	r := buildRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/jobs/no-such-id", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "job not found", body["error"])
}

func TestRouter_CreateAndGetJob(t *testing.T) {
	r := buildRouter(newTestEnv(t))

	payload, _ := json.Marshal(map[string]string{"location": "Portland, OR"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id, ok := created["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "pending", created["status"])

	req = httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, id, got["id"])
	assert.Equal(t, "Portland, OR", got["location"])
}

func TestRouter_CreateJobRequiresLocation(t *testing.T) {
	r := buildRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_ListJobs(t *testing.T) {
	e := newTestEnv(t)
	r := buildRouter(e)

	_, _, err := e.Jobs.CreateOrReuse(context.Background(), "Portland, OR", "", false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}
