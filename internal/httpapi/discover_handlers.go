package httpapi

import (
	"context"
	"net/http"
	"strings"

	"jobharvest-engine/internal/discovery"
)

type DiscoverHandler struct {
	Discover func(ctx context.Context, req discovery.Request) discovery.Result
}

// Run finds and verifies ATS boards for one company. It never writes config;
// the caller decides what to keep from the recommendations.
func (h DiscoverHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req discovery.Request
	if err := decodeStrict(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.CompanyName) == "" && strings.TrimSpace(req.CareerURL) == "" && len(req.Seeds) == 0 {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "company_name, career_url or seed_sources is required")
		return
	}
	writeJSON(w, h.Discover(r.Context(), req))
}
