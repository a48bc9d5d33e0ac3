package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/signals", func(r chi.Router) {
			r.Get("/", s.handleListSignals)
			r.Get("/{id}", s.handleGetSignal)
			r.Get("/{id}/history", s.handleGetSignalHistory)
		})

		r.Route("/adapters", func(r chi.Router) {
			r.Get("/", s.handleListAdapters)
			r.Get("/{name}", s.handleGetAdapter)
		})

		r.Get("/events", s.handleEvents)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
//
// The service is "ok" when every adapter is delivering data, "degraded"
// otherwise. The status code is always 200: a down upstream platform does
// not make the API itself unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	states := s.adapters.States()
	healthy := 0
	for _, st := range states {
		if st.Phase.Healthy() {
			healthy++
		}
	}

	status := "ok"
	if healthy < len(states) {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"version":          s.version,
		"adapters_total":   len(states),
		"adapters_healthy": healthy,
		"signals":          s.signals.Len(),
	})
}
