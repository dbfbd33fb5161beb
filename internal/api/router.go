package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		writeNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w, "")
	})

	r.Get("/health", s.handleHealth)

	// Device queries; any method other than GET is answered with 405.
	r.HandleFunc("/devices", s.handleDevices)
	r.HandleFunc("/devices/{key}", s.handleDevice)

	if s.gsm.Enabled && s.ingester != nil {
		r.HandleFunc(s.gsm.UploadPath, s.handleGSMUpload)
	}

	if s.wsCfg.Enabled {
		r.Get(s.wsCfg.Path, s.handleWebSocket)
	}

	if s.metrics.Enabled {
		r.Handle(s.metrics.Path, promhttp.Handler())
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"devices":     s.registry.Count(),
		"subscribers": s.hub.ClientCount(),
	})
}
