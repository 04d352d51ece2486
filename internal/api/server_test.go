package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/checkpoint"
	"github.com/appdex/catalog-crawler/internal/clock"
	"github.com/appdex/catalog-crawler/internal/config"
	"github.com/appdex/catalog-crawler/internal/crawl"
	"github.com/appdex/catalog-crawler/internal/dataset"
	"github.com/appdex/catalog-crawler/internal/runner"
)

// stubJob blocks until released so tests can observe the running
// state deterministically.
type stubJob struct {
	kind    catalog.Kind
	started chan struct{}
	release chan struct{}
}

func newStubJob(kind catalog.Kind) *stubJob {
	return &stubJob{
		kind:    kind,
		started: make(chan struct{}, 8),
		release: make(chan struct{}, 8),
	}
}

func (j *stubJob) Kind() catalog.Kind { return j.kind }

func (j *stubJob) Run(_ context.Context, _ uuid.UUID, tracker crawl.Tracker, cancel *catalog.CancelToken) error {
	tracker.SetTotal(5)
	tracker.MarkRunning()
	j.started <- struct{}{}
	<-j.release
	if cancel.Cancelled() {
		return crawl.ErrCancelled
	}
	return nil
}

type fixture struct {
	server   *Server
	trending *stubJob
	catalog  *stubJob
	store    *checkpoint.Store
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	store := checkpoint.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Save(catalog.Apps{
		440: catalog.Record{"name": "Team Fortress 2", "type": "game"},
		620: catalog.Record{"name": "Portal 2", "type": "game"},
	}, catalog.IDList{7}, nil))

	retriever, err := dataset.NewRetriever(store, nil)
	require.NoError(t, err)

	trending := newStubJob(catalog.KindTrending)
	catalogJob := newStubJob(catalog.KindCatalog)
	run := runner.New(clock.System{}, nil, nil, trending, catalogJob)

	return &fixture{
		server:   NewServer(run, retriever, cfg, nil, nil),
		trending: trending,
		catalog:  catalogJob,
		store:    store,
	}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// TestHealthEndpoints verifies the liveness and readiness probes.
func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz").Code)
}

// TestStartCrawlAccepted verifies a start returns 202 with a progress
// snapshot.
func TestStartCrawlAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodPost, "/v1/crawls/trending/start")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "trending", decodeBody(t, rec)["kind"])

	<-f.trending.started
	f.trending.release <- struct{}{}
}

// TestStartCrawlConflict verifies 409 while any crawl is active, even
// of a different kind.
func TestStartCrawlConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/v1/crawls/trending/start").Code)
	<-f.trending.started

	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/crawls/catalog/start").Code)
	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/crawls/trending/start").Code)

	f.trending.release <- struct{}{}
}

// TestStartCrawlBadKind verifies unknown kinds are rejected.
func TestStartCrawlBadKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/crawls/everything/start").Code)
}

// TestPauseThenProgress verifies pause reports paused immediately and
// progress reflects it.
func TestPauseThenProgress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/v1/crawls/trending/start").Code)
	<-f.trending.started

	rec := f.do(t, http.MethodPost, "/v1/crawls/trending/pause")
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decodeBody(t, rec)["progress"].(map[string]any)
	require.Equal(t, "paused", progress["status"])

	f.trending.release <- struct{}{}
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/v1/crawls/trending/progress")
		body := decodeBody(t, rec)["progress"].(map[string]any)
		return body["status"] == "paused"
	}, 2*time.Second, 10*time.Millisecond)
}

// TestProgressIdleByDefault verifies a never-started kind reports the
// zero snapshot.
func TestProgressIdleByDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/v1/crawls/catalog/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decodeBody(t, rec)["progress"].(map[string]any)
	require.Equal(t, "idle", progress["status"])
	require.EqualValues(t, 0, progress["total"])
}

// TestAppDetailsEndpoint verifies lookup, not-found, and bad IDs.
func TestAppDetailsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	rec := f.do(t, http.MethodGet, "/v1/apps/440")
	require.Equal(t, http.StatusOK, rec.Code)
	details := decodeBody(t, rec)["details"].(map[string]any)
	require.Equal(t, "Team Fortress 2", details["name"])

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/apps/999").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/apps/abc").Code)
}

// TestQueryApps verifies the filter endpoints.
func TestQueryApps(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	rec := f.do(t, http.MethodGet, "/v1/apps/?name=portal")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/v1/apps/?type=game")
	require.EqualValues(t, 2, decodeBody(t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/v1/apps/")
	require.EqualValues(t, 2, decodeBody(t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/v1/apps/?min_price=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestStatsEndpoint verifies ledger counts.
func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.EqualValues(t, 2, body["total_apps"])
	require.EqualValues(t, 1, body["excluded_apps"])
}

// TestCategoriesEndpoint verifies the fixed category list in crawl
// order.
func TestCategoriesEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/v1/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, crawl.CategoryNames(), body.Categories)
}

// TestAPIKeyMiddleware verifies requests without the key are rejected
// and both header and query forms are accepted.
func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	f := newFixture(t, cfg)

	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v1/stats").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/stats?api_key=sekrit").Code)
}

// TestMetricsEndpoint verifies the metrics route serves the
// Prometheus text format.
func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
