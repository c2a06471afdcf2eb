// Package render produces the structured-data output of one page. Every
// call builds a fresh registry, feeds it the stored schema for the content
// item followed by the builders' nodes, and writes the accepted nodes as
// <script type="application/ld+json"> blocks.
package render

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teranos/ldschema/content"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/registry"
	"github.com/teranos/ldschema/jsonld/validate"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/storage"
)

// SourceStored labels nodes that come from the published schema record
const SourceStored = "stored"

// Skipped is a candidate left out because it failed validation
type Skipped struct {
	Type   string   `json:"type"`
	Source string   `json:"source"`
	Errors []string `json:"errors"`
}

// Page is the render result for one content item
type Page struct {
	ContentID string              `json:"content_id"`
	HTML      string              `json:"html"`
	Nodes     []jsonld.Node       `json:"nodes"`
	Skipped   []Skipped           `json:"skipped"`
	Debug     *registry.DebugView `json:"debug,omitempty"`
}

// Renderer renders pages. It holds no per-render state.
type Renderer struct {
	content   content.Source
	schemas   *storage.SchemaStore
	validator *validate.Validator
	builders  []Builder
	policy    registry.Policy
	recorder  registry.Recorder
	logger    *zap.SugaredLogger
}

// Option configures a Renderer
type Option func(*Renderer)

// WithBuilders appends node builders, run in order after the stored schema
func WithBuilders(b ...Builder) Option {
	return func(r *Renderer) { r.builders = append(r.builders, b...) }
}

// WithPolicy sets the type blocklist for every render
func WithPolicy(p registry.Policy) Option {
	return func(r *Renderer) { r.policy = p }
}

// WithRecorder observes registry decisions
func WithRecorder(rec registry.Recorder) Option {
	return func(r *Renderer) { r.recorder = rec }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Renderer
func New(src content.Source, schemas *storage.SchemaStore, v *validate.Validator, opts ...Option) *Renderer {
	r := &Renderer{
		content:   src,
		schemas:   schemas,
		validator: v,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders contentID. With debug set, the page carries the
// registry's accepted and blocked lists; callers gate who may see them.
func (r *Renderer) Render(ctx context.Context, contentID string, debug bool) (*Page, error) {
	c, err := r.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	reg := registry.New(
		registry.WithPolicy(r.policy),
		registry.WithRecorder(r.recorder),
		registry.WithLogger(r.logger),
	)
	page := &Page{ContentID: contentID, Skipped: []Skipped{}}

	stored, err := r.storedNodes(ctx, contentID)
	if err != nil {
		return nil, err
	}
	for _, node := range stored {
		r.offer(reg, page, node, SourceStored)
	}
	for _, b := range r.builders {
		for _, node := range b.Build(c) {
			r.offer(reg, page, node, b.Source())
		}
	}

	var buf bytes.Buffer
	if err := reg.Output(&buf); err != nil {
		return nil, errors.Wrapf(err, "render %s", contentID)
	}
	page.HTML = buf.String()
	page.Nodes = reg.Nodes()
	if debug {
		view := reg.Debug()
		page.Debug = &view
	}

	r.logger.Debugw("Rendered structured data",
		logger.FieldContentID, contentID,
		"accepted", len(page.Nodes),
		"blocked", len(reg.Blocked()),
		"skipped", len(page.Skipped))
	return page, nil
}

// offer validates a candidate and registers it when valid. Invalid nodes
// are left out of the page rather than failing the render.
func (r *Renderer) offer(reg *registry.Registry, page *Page, node any, source string) {
	report := jsonld.NewReport()
	if !r.validator.Validate(node, "", report) {
		n, _ := jsonld.AsNode(node)
		page.Skipped = append(page.Skipped, Skipped{Type: n.PrimaryType(), Source: source, Errors: report.Errors})
		r.logger.Debugw("Skipped invalid schema node",
			logger.FieldContentID, page.ContentID,
			logger.FieldSchemaType, n.PrimaryType(),
			logger.FieldSource, source,
			logger.FieldErrorCount, len(report.Errors))
		return
	}
	reg.Register(node, registry.Options{Source: source})
}

// storedNodes returns the published data as top-level nodes. A
// consolidated graph is registered node by node so the registry can
// deduplicate it against the builders.
func (r *Renderer) storedNodes(ctx context.Context, contentID string) ([]any, error) {
	if r.schemas == nil {
		return nil, nil
	}
	rec, err := r.schemas.Get(ctx, contentID)
	if errors.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(rec.Data, &doc); err != nil || doc == nil {
		return nil, nil
	}
	items, _ := jsonld.GraphItems(doc)
	return items, nil
}
