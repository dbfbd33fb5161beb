package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// handleDevices returns every device as a JSON array.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.GetDevices())
}

// handleDevice returns the device whose unit or address matches {key}.
// An unknown key is a 404 whatever the method.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}

	d, ok := s.registry.GetDevice(key)
	if !ok {
		writeNotFound(w, "device not found: "+key)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
