package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/ldschema/logger"
)

// routes mounts every handler
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/validate", s.handleValidate)
		r.Post("/inspect", s.handleInspect)

		r.Route("/content/{id}", func(r chi.Router) {
			r.Post("/repair", s.handleRepair)
			r.Post("/generate", s.handleGenerate)
			r.Get("/render", s.handleRender)
			r.Get("/history", s.handleHistory)
			r.Post("/history/{index}/restore", s.handleRestore)
		})

		r.Get("/review", s.handleReviewList)
		r.Post("/review/{id}/approve", s.handleApprove)
		r.Post("/review/{id}/discard", s.handleDiscard)

		r.Get("/stats", s.handleStats)
		r.Delete("/cache", s.handleCacheClear)
	})
	return r
}

// requestLogger logs one line per request at debug, or at warn for 5xx
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		log := logger.FromContext(ctx, s.logger)
		fields := []interface{}{
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		}
		if ww.Status() >= http.StatusInternalServerError {
			log.Warnw("HTTP request", fields...)
			return
		}
		log.Debugw("HTTP request", fields...)
	})
}
