package httpapi

import (
	"net"
	"net/http"

	"jobharvest-engine/internal/store"
)

type DBHandler struct {
	DB *store.DB
}

// Checkpoint folds the WAL into the main database file. Loopback only.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host != "127.0.0.1" && host != "::1" && host != "localhost" {
		WriteError(w, r, http.StatusForbidden, "forbidden", "checkpoint is loopback only")
		return
	}

	if _, err := h.DB.Pool.ExecContext(r.Context(), `PRAGMA wal_checkpoint(FULL);`); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
