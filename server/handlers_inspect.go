package server

import (
	"net/http"

	"github.com/teranos/ldschema/logger"
)

// handleInspect fetches a live page and validates its JSON-LD
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if s.inspector == nil {
		writeError(w, http.StatusServiceUnavailable, "page inspection is disabled")
		return
	}

	var req inspectRequest
	if err := s.readJSON(w, r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}

	insp, err := s.inspector.Inspect(r.Context(), req.URL)
	if err != nil {
		s.logger.Debugw("Inspection failed", logger.FieldURL, req.URL, logger.FieldError, err)
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

// handleCacheClear invalidates every cached completion and inspection by
// bumping the cache version
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache is disabled")
		return
	}

	version, err := s.cache.Clear(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheResponse{Version: version})
}
