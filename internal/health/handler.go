package health

import (
	"net/http"

	"github.com/dkovalev/taskgw/internal/util"
)

// Handler serves the aggregate health endpoint. The endpoint never fails
// outright: a degraded fleet is still a well-formed 200 report, so that
// monitoring keeps receiving per-backend detail while backends misbehave.
func (p *Prober) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := p.CheckAll(r.Context())
		util.WriteJSON(w, http.StatusOK, report)
	}
}

// LivenessHandler serves a trivial process-alive check.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
