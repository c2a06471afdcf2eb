package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/storage"
)

// handleRender renders a content item's structured data. ?format=html
// returns the script blocks alone; ?debug=1 adds the accepted and blocked
// registrations and needs a matching X-Debug-Token.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	debug := queryBool(r, "debug")
	if debug && !s.debugAllowed(r) {
		s.writeErr(w, r, errors.WithHint(
			errors.Wrap(ErrForbidden, "debug view"),
			"send the configured server.debug_token in the X-Debug-Token header"))
		return
	}

	page, err := s.renderer.Render(r.Context(), chi.URLParam(r, "id"), debug)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(page.HTML))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// debugAllowed compares the request token with the configured one in
// constant time. No configured token means nobody is allowed.
func (s *Server) debugAllowed(r *http.Request) bool {
	if s.debugToken == "" {
		return false
	}
	got := r.Header.Get(headerDebugToken)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.debugToken)) == 1
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	versions, err := s.history.List(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if versions == nil {
		versions = []storage.Version{}
	}
	writeJSON(w, http.StatusOK, historyResponse{ContentID: id, Versions: versions})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r, "index")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	out, err := s.workflow.Restore(r.Context(), chi.URLParam(r, "id"), index, actorFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
