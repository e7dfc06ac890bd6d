package httpapi

import (
	"net/http"
	"strings"
	"time"

	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/store"
)

type OverridesHandler struct {
	DB  *store.DB
	Hub *events.Hub
	Now func() time.Time
}

func (h OverridesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := store.ListOverrides(r.Context(), h.DB.Pool)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if list == nil {
		list = []store.Override{}
	}
	writeJSON(w, list)
}

// Put expects /overrides/{dedupe_key} with {"action":"include|exclude","note":"..."}.
func (h OverridesHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := pathTail(r, "/overrides/")
	if key == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_key", "missing dedupe key")
		return
	}
	var body overrideBody
	if err := decodeStrict(r, &body); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	action := strings.ToLower(strings.TrimSpace(body.Action))
	if action != store.OverrideInclude && action != store.OverrideExclude {
		WriteError(w, r, http.StatusBadRequest, "invalid_action", "action must be include or exclude")
		return
	}
	if err := store.SetOverride(r.Context(), h.DB.Pool, key, action, body.Note, h.Now()); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	h.Hub.Emit(RequestIDFrom(r.Context()), events.TypeOverrideChanged, map[string]any{"dedupe_key": key, "action": action})
	writeJSON(w, map[string]any{"ok": true, "dedupe_key": key, "action": action})
}

func (h OverridesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := pathTail(r, "/overrides/")
	if key == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_key", "missing dedupe key")
		return
	}
	removed, err := store.DeleteOverride(r.Context(), h.DB.Pool, key)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if !removed {
		WriteError(w, r, http.StatusNotFound, "not_found", "no override for key")
		return
	}

	h.Hub.Emit(RequestIDFrom(r.Context()), events.TypeOverrideChanged, map[string]any{"dedupe_key": key, "action": "cleared"})
	writeJSON(w, map[string]any{"ok": true, "dedupe_key": key})
}
