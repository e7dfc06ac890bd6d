package httpapi

import (
	"net/http"
	"time"

	"jobharvest-engine/internal/store"
)

type JobsHandler struct {
	DB  *store.DB
	Now func() time.Time
}

// List serves the latest state, filtered by window and sorted as asked.
func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListJobsOpts{
		Sort:   q.Get("sort"),
		Window: q.Get("window"),
		Limit:  queryInt(r, "limit", 500),
	}
	if h.Now != nil {
		opts.Now = h.Now()
	}

	jobs, err := store.ListLatest(r.Context(), h.DB.Pool, opts)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []store.LatestJob{}
	}
	writeJSON(w, jobs)
}
