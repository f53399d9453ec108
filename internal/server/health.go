package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/calpilot/internal/timeutil"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnreachable  = "unreachable"

	storePingTimeout = 2 * time.Second
)

// HealthChecker serves the liveness, readiness and detailed probes.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready. sc may be
// nil, in which case only the ready flag is checked.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse adds the calendar configuration to the readiness
// checks.
type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Uptime string            `json:"uptime"`

	Backend string `json:"backend,omitempty"`
	// FullUndo is false when the backend can only undo event creations.
	FullUndo     bool              `json:"full_undo"`
	ReadOnly     bool              `json:"read_only"`
	WorkingHours map[string]string `json:"working_hours,omitempty"`
	// PersonaUpdatedAt is empty until the first analysis.
	PersonaUpdatedAt string `json:"persona_updated_at,omitempty"`
}

// checks evaluates the ready flag, the server lifecycle and the store.
func (h *HealthChecker) checks(ctx context.Context) (map[string]string, bool) {
	checks := map[string]string{
		"ready":    healthStatusOK,
		"shutdown": healthStatusOK,
		"store":    healthStatusOK,
	}
	ok := true

	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		ok = false
	}

	sc := h.serverContext
	if sc == nil {
		return checks, ok
	}
	if sc.IsShutdown() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	}

	ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := sc.Ping(ctx); err != nil {
		checks["store"] = healthStatusUnreachable
		ok = false
	}
	return checks, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// LivenessHandler serves /healthz. It only reports that the process
// answers.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz. The server is ready when it is marked
// ready, not shutting down and the store answers a ping.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, ok := h.checks(r.Context())
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
	})
}

// DetailedHealthHandler serves /healthz/detailed.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks, ok := h.checks(r.Context())
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Checks: checks,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if sc := h.serverContext; sc != nil {
			engine := sc.Engine()
			caps := engine.Capabilities()
			resp.Backend = caps.Backend
			resp.FullUndo = caps.FullUndo
			resp.ReadOnly = sc.ReadOnly()
			start, end := sc.WorkingHours()
			resp.WorkingHours = map[string]string{"start": start, "end": end}

			if checks["store"] == healthStatusOK {
				if res, err := engine.GetPersona(r.Context()); err == nil && res.Persona != nil {
					resp.PersonaUpdatedAt = timeutil.FormatLocal(res.Persona.UpdatedAt)
				}
			}
		}

		code := http.StatusOK
		switch {
		case checks["shutdown"] == healthStatusShuttingDown:
			resp.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		case !ok:
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
