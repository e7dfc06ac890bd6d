package httpapi

import (
	"net/http"

	"jobharvest-engine/internal/store"
)

type HealthHandler struct {
	DB *store.DB
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Pool.PingContext(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}
