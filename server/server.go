// Package server exposes the pipeline over HTTP: validation, repair and
// generation, rendering with a token-gated debug view, the review queue,
// schema history, live-page inspection, stats and Prometheus metrics.
package server

import (
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/ldschema/cache"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/fetch"
	"github.com/teranos/ldschema/jsonld/quality"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/render"
	"github.com/teranos/ldschema/storage"
	"github.com/teranos/ldschema/workflow"
)

// Config wires a Server. Inspector and Cache are optional; their routes
// answer 503 without them. An empty DebugToken disables the debug view.
type Config struct {
	Workflow  *workflow.Service
	Renderer  *render.Renderer
	Repairer  *repair.Repairer
	History   *storage.HistoryStore
	Events    *storage.EventLog
	Review    *quality.ReviewQueue
	Inspector *fetch.Inspector
	Cache     *cache.Cache

	Gatherer   prometheus.Gatherer // nil = prometheus.DefaultGatherer
	DebugToken string
	Logger     *zap.SugaredLogger
}

// Server serves the HTTP API
type Server struct {
	workflow  *workflow.Service
	renderer  *render.Renderer
	repairer  *repair.Repairer
	history   *storage.HistoryStore
	events    *storage.EventLog
	review    *quality.ReviewQueue
	inspector *fetch.Inspector
	cache     *cache.Cache

	gatherer   prometheus.Gatherer
	debugToken string
	validate   *validator.Validate
	logger     *zap.SugaredLogger

	router chi.Router
	state  atomic.Int32
}

// New validates cfg and builds the router
func New(cfg Config) (*Server, error) {
	var missing []string
	if cfg.Workflow == nil {
		missing = append(missing, "workflow")
	}
	if cfg.Renderer == nil {
		missing = append(missing, "renderer")
	}
	if cfg.Repairer == nil {
		missing = append(missing, "repairer")
	}
	if cfg.History == nil || cfg.Events == nil {
		missing = append(missing, "storage")
	}
	if cfg.Review == nil {
		missing = append(missing, "review queue")
	}
	if len(missing) > 0 {
		return nil, errors.NewInvalidRequestError("server config missing %s", strings.Join(missing, ", "))
	}

	s := &Server{
		workflow:   cfg.Workflow,
		renderer:   cfg.Renderer,
		repairer:   cfg.Repairer,
		history:    cfg.History,
		events:     cfg.Events,
		review:     cfg.Review,
		inspector:  cfg.Inspector,
		cache:      cfg.Cache,
		gatherer:   cfg.Gatherer,
		debugToken: cfg.DebugToken,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     cfg.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	s.router = s.routes()
	s.state.Store(int32(ServerStateRunning))
	return s, nil
}
