package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/ldschema/jsonld/quality"
)

const defaultRecentEvents = 20

func (s *Server) handleReviewList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.review.Pending(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []quality.ReviewEntry{}
	}
	writeJSON(w, http.StatusOK, reviewResponse{Count: len(entries), Entries: entries})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	out, err := s.workflow.Approve(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	out, err := s.workflow.Discard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStats reports validation health, the review backlog and the most
// recent log events (?limit=n, default 20)
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultRecentEvents
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	stats, err := s.events.Stats(ctx)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	pending, err := s.review.Count(ctx)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	recent, err := s.events.Recent(ctx, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, PendingReview: pending, Recent: recent})
}
