package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/runner"
	"jobharvest-engine/internal/store"
)

type RunsHandler struct {
	DB        *store.DB
	CfgVal    *atomic.Value // config.Config
	RunStatus *atomic.Value // httpapi.RunStatus
	Hub       *events.Hub
	Log       *zap.Logger
	RunOnce   func(ctx context.Context, cfg config.Config) (*runner.Result, error)
	Now       func() time.Time
}

func (h RunsHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.RunStatus.Load().(RunStatus)
	writeJSON(w, st)
}

// Start triggers a run in the background. Progress arrives on /events.
func (h RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	st := h.RunStatus.Load().(RunStatus)
	if st.Running {
		WriteError(w, r, http.StatusConflict, "run_in_progress", "a run is already in progress")
		return
	}

	h.RunStatus.Store(RunStatus{
		LastRunAt: h.Now().Format(time.RFC3339),
		Running:   true,
		LastOkAt:  st.LastOkAt,
		LastRunID: st.LastRunID,
	})

	go func() {
		cfg := h.CfgVal.Load().(config.Config)
		res, err := h.RunOnce(context.Background(), cfg)

		now := h.Now().Format(time.RFC3339)
		next := h.RunStatus.Load().(RunStatus)
		next.Running = false
		next.LastRunAt = now
		if err != nil {
			h.Log.Warn("http: background run failed", zap.Error(err))
			next.LastError = err.Error()
		} else {
			next.LastError = ""
			next.LastOkAt = now
			next.LastRunID = res.RunID
			next.LastKept = res.Stats.Kept
			next.LastNew = res.Stats.New
		}
		h.RunStatus.Store(next)
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (h RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	runs, err := store.ListRuns(r.Context(), h.DB.Pool, queryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, runs)
}

// ByPath serves /runs/{id} and /runs/{id}/audit.
func (h RunsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r, "/runs/")
	id, sub, _ := strings.Cut(tail, "/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "missing run id")
		return
	}
	switch sub {
	case "":
		h.get(w, r, id)
	case "audit":
		h.audit(w, r, id)
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "unknown run resource")
	}
}

func (h RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := store.GetRun(r.Context(), h.DB.Pool, id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if run == nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "run not found")
		return
	}
	settings, err := store.GetRunSettings(r.Context(), h.DB.Pool, id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, map[string]any{"run": run, "settings": settings})
}

// audit accepts ?included=true|false to narrow the trail.
func (h RunsHandler) audit(w http.ResponseWriter, r *http.Request, id string) {
	var included *bool
	switch r.URL.Query().Get("included") {
	case "":
	case "true", "1":
		v := true
		included = &v
	case "false", "0":
		v := false
		included = &v
	default:
		WriteError(w, r, http.StatusBadRequest, "invalid_filter", "included must be true or false")
		return
	}

	rows, err := store.ListAudit(r.Context(), h.DB.Pool, id, included)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if rows == nil {
		rows = []store.AuditRow{}
	}
	writeJSON(w, rows)
}
