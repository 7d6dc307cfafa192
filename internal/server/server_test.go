package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/artifacts"
	"github.com/Gotti0/kimum-trade-sub000/internal/database"
	"github.com/Gotti0/kimum-trade-sub000/internal/jobs"
	"github.com/Gotti0/kimum-trade-sub000/internal/screener"
	"github.com/Gotti0/kimum-trade-sub000/internal/universe"
)

func newTestServer(t *testing.T, funcs map[jobs.Kind]jobs.Fn) (*Server, *artifacts.Store, *screener.Store) {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(database.Config{Path: filepath.Join(dir, "runs.db"), Name: "runs"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runIndex, err := artifacts.NewRunIndex(db, zerolog.Nop())
	require.NoError(t, err)
	repo, err := universe.NewRepository(db, zerolog.Nop())
	require.NoError(t, err)

	artifactStore := artifacts.NewStore(filepath.Join(dir, "results"), zerolog.Nop())
	screenStore := screener.NewStore(filepath.Join(dir, "screens"), zerolog.Nop())

	s := New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DataDir:   dir,
		Jobs:      jobs.NewManager(zerolog.Nop()),
		JobFuncs:  funcs,
		Artifacts: artifactStore,
		RunIndex:  runIndex,
		Screens:   screenStore,
		Universe:  repo,
		Databases: map[string]*database.DB{"runs": db},
	})
	return s, artifactStore, screenStore
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestStartUnknownJobKind(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodPost, "/api/jobs/nonsense/start")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	funcs := map[jobs.Kind]jobs.Fn{
		jobs.KindDataRefresh: func(ctx context.Context, log zerolog.Logger, progress func(int)) error {
			log.Info().Msg("refreshing")
			progress(50)
			return nil
		},
	}
	s, _, _ := newTestServer(t, funcs)

	rec := doRequest(t, s, http.MethodPost, "/api/jobs/data_refresh/start")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id, ok := decodeBody(t, rec)["id"].(string)
	require.True(t, ok)

	deadline := time.Now().Add(2 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		rec = doRequest(t, s, http.MethodGet, "/api/jobs/"+id)
		require.Equal(t, http.StatusOK, rec.Code)
		status, _ = decodeBody(t, rec)["status"].(string)
		if status == string(jobs.StatusSucceeded) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, string(jobs.StatusSucceeded), status)

	rec = doRequest(t, s, http.MethodGet, "/api/jobs/"+id+"/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	lines, ok := decodeBody(t, rec)["lines"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, lines)
	first, ok := lines[0].(string)
	require.True(t, ok)
	assert.Contains(t, first, "refreshing")

	rec = doRequest(t, s, http.MethodGet, "/api/jobs/")
	require.Equal(t, http.StatusOK, rec.Code)
	listed, ok := decodeBody(t, rec)["jobs"].([]any)
	require.True(t, ok)
	assert.Len(t, listed, 1)
}

func TestStopUnknownJob(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodPost, "/api/jobs/missing-id/stop")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestResultNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/results/domestic/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestResultRoundtrip(t *testing.T) {
	s, store, _ := newTestServer(t, nil)
	_, err := store.Save(&artifacts.RunArtifact{Strategy: "domestic", FinalValue: 123.0})
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, "/api/results/domestic/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "domestic", decodeBody(t, rec)["strategy"])
}

func TestLatestScreenRejectsUnknownKind(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/screens/bogus/latest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentRunsRejectsBadLimit(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/results/runs?limit=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/results/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	runs, ok := decodeBody(t, rec)["runs"].([]any)
	require.True(t, ok)
	assert.Empty(t, runs)
}

func TestUniverseEndpointEmpty(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/universe")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestSystemStats(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/system/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "memory_percent")
	assert.Contains(t, body, "goroutines")
}

func TestDatabaseStatsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/system/databases")
	require.Equal(t, http.StatusOK, rec.Code)
	dbs, ok := decodeBody(t, rec)["databases"].([]any)
	require.True(t, ok)
	require.Len(t, dbs, 1)
	first, ok := dbs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "runs", first["name"])
}
