package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/discovery"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/runner"
	"jobharvest-engine/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *store.DB
	hub     *events.Hub
	handler http.Handler
	status  *atomic.Value
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db.Pool))

	cfgVal := &atomic.Value{}
	cfgVal.Store(config.Default())
	status := &atomic.Value{}
	status.Store(RunStatus{})

	d := Deps{
		DB:        db,
		Hub:       events.NewHub(),
		Log:       zaptest.NewLogger(t),
		CfgVal:    cfgVal,
		RunStatus: status,
		Now:       func() time.Time { return fixedNow },
		RunOnce: func(context.Context, config.Config) (*runner.Result, error) {
			return &runner.Result{RunID: "r1"}, nil
		},
		Discover: func(_ context.Context, req discovery.Request) discovery.Result {
			return discovery.Result{CompanyName: req.CompanyName}
		},
	}
	if mutate != nil {
		mutate(&d)
	}
	return &testEnv{db: db, hub: d.Hub, handler: NewHandler(d), status: status}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Len(t, rec.Header().Get("X-Request-ID"), 26, "generated ids are ULIDs")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodDelete, "/jobs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	e := decodeAPIError(t, rec)
	assert.Equal(t, "method_not_allowed", e.Error.Code)
	assert.NotEmpty(t, e.Error.RequestID)
}

func TestRecoverWritesAPIError(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		RequestID, Recover(zaptest.NewLogger(t)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeAPIError(t, rec).Error.Code)
}

func TestJobsListEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/jobs?window=all&sort=title", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestOverridesLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.hub.Subscribe()
	defer env.hub.Unsubscribe(sub)

	rec := env.do(t, http.MethodPut, "/overrides/url:abc", `{"action":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_action", decodeAPIError(t, rec).Error.Code)

	rec = env.do(t, http.MethodPut, "/overrides/url:abc", `{"action":"bogus","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeAPIError(t, rec).Error.Code)

	rec = env.do(t, http.MethodPut, "/overrides/url:abc", `{"action":"Include","note":"looks good"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, <-sub, events.TypeOverrideChanged)

	rec = env.do(t, http.MethodGet, "/overrides", "")
	var list []store.Override
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "include", list[0].Action)
	assert.Equal(t, "looks good", list[0].Note)

	rec = env.do(t, http.MethodDelete, "/overrides/url:abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/overrides/url:abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsReadEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rc := store.RunContext{RunID: "run-1", SettingsHash: "h"}

	require.NoError(t, store.InsertRun(ctx, env.db.Pool, "run-1", fixedNow, fixedNow.Add(time.Minute), map[string]int{"kept": 1}))
	require.NoError(t, store.SaveRunSettings(ctx, env.db.Pool, store.RunSettings{RunID: "run-1", UserID: "local", SettingsHash: "h", SettingsJSON: "{}", CreatedAt: "x"}))
	require.NoError(t, store.WriteAudit(ctx, env.db.Pool, []store.AuditRow{
		store.NewAuditRow(rc, domain.NormalizedJob{DedupeKey: "k1", CompanyLabel: "Acme", Title: "A"}, true, []string{"remote_us:allowed"}, fixedNow),
		store.NewAuditRow(rc, domain.NormalizedJob{DedupeKey: "k2", CompanyLabel: "Acme", Title: "B"}, false, []string{"location:not_us"}, fixedNow),
	}))

	rec := env.do(t, http.MethodGet, "/runs", "")
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	rec = env.do(t, http.MethodGet, "/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"settings_hash":"h"`)

	rec = env.do(t, http.MethodGet, "/runs/run-1/audit?included=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []store.AuditRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"location:not_us"}, rows[0].Reasons)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/runs/run-1/audit?included=maybe", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/runs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/runs/run-1/nope", "").Code)
}

func TestStartRunReportsStatus(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, func(d *Deps) {
		d.RunOnce = func(context.Context, config.Config) (*runner.Result, error) {
			<-release
			res := &runner.Result{RunID: "r-42"}
			res.Stats.Kept = 3
			res.Stats.New = 2
			return res, nil
		}
	})

	rec := env.do(t, http.MethodPost, "/runs", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPost, "/runs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	require.Eventually(t, func() bool {
		return !env.status.Load().(RunStatus).Running
	}, 2*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/runs/status", "")
	var st RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "r-42", st.LastRunID)
	assert.Equal(t, 3, st.LastKept)
	assert.Equal(t, 2, st.LastNew)
	assert.Empty(t, st.LastError)
}

func TestDiscover(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/discover", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/discover", `{"company_name":"Acme"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res discovery.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Acme", res.CompanyName)
}

func TestConfigValidateRejectsBadPut(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/config", `{"app":{"port":0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "app.port must be 1..65535")
}
