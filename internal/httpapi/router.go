package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// NewMux returns the raw mux so main() can still attach extra routes.
func NewMux(d Deps) *http.ServeMux {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{DB: d.DB}.Health,
	}))

	// Jobs
	jh := JobsHandler{DB: d.DB, Now: d.now}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))

	// Runs
	rh := RunsHandler{
		DB:        d.DB,
		CfgVal:    d.CfgVal,
		RunStatus: d.RunStatus,
		Hub:       d.Hub,
		Log:       d.Log,
		RunOnce:   d.RunOnce,
		Now:       d.now,
	}
	mux.HandleFunc("/runs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  rh.List,
		http.MethodPost: rh.Start,
	}))
	mux.HandleFunc("/runs/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.Status,
	}))
	mux.HandleFunc("/runs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.ByPath, // /runs/{id}, /runs/{id}/audit
	}))

	// Overrides
	oh := OverridesHandler{DB: d.DB, Hub: d.Hub, Now: d.now}
	mux.HandleFunc("/overrides", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: oh.List,
	}))
	mux.HandleFunc("/overrides/", methodMux(map[string]http.HandlerFunc{
		http.MethodPut:    oh.Put,
		http.MethodDelete: oh.Delete,
	}))

	// Discovery
	dh := DiscoverHandler{Discover: d.Discover}
	mux.HandleFunc("/discover", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dh.Run,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: DBHandler{DB: d.DB}.Checkpoint,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}

// NewHandler wraps the mux in the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return Chain(NewMux(d), RequestID, Recover(log), AccessLog(log), Cors)
}
