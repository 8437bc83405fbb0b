// Package health serves the liveness and readiness probes on the engine's
// diagnostics endpoint.
//
// Liveness (/healthz) only proves the process can still answer HTTP; it never
// consults the audio stack, so a wedged backend does not get the whole
// process restarted while graph-only output may still be flowing. Readiness
// (/readyz) runs the registered [Checker] probes — backend selector state,
// device subsystem reachability — and reports 503 until all of them pass.
//
// The response body is JSON: a top-level "status" of "ok" or "fail", and for
// readiness a "checks" map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness probe. Device enumeration can stall
// on a wedged platform audio subsystem; the probe reports that as a failure
// instead of hanging the endpoint.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil while the probed
// subsystem can serve and an error describing why not otherwise. It must
// honor ctx cancellation.
type Checker struct {
	// Name keys this probe's entry in the readiness response (e.g.
	// "backend", "devices").
	Name string

	Check func(ctx context.Context) error
}

// report is the wire format shared by both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers /healthz and /readyz. The checker set is fixed at
// construction; the handler itself is stateless and safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given probes. Readiness runs them in the
// order given.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200: the process is alive if it can run this
// handler.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every probe under a [checkTimeout] deadline and answers 200
// only when all pass, 503 with per-probe detail otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, rep)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
