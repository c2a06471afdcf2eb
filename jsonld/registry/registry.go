// Package registry collects the structured-data nodes of one page render.
//
// A Registry is request-scoped: create one per render, pass it explicitly to
// every collaborator, and drop it when the render ends. It is not safe for
// concurrent use. Registration never fails with an error; every rejection is
// recorded in Blocked with a reason.
package registry

import (
	"bytes"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/logger"
)

// Block reasons
const (
	ReasonOutputDone    = "output already done"
	ReasonNoType        = "missing type"
	ReasonBlocklisted   = "blocklisted type"
	ReasonDuplicateID   = "duplicate id"
	ReasonDuplicateType = "duplicate type"
)

// DefaultRepeatable are types that may be registered more than once per page
var DefaultRepeatable = []string{"ImageObject", "ListItem", "Question", "Answer", "Review", "Service"}

// Policy decides whether a type is excluded outright
type Policy interface {
	Blocked(typ string) bool
}

// Recorder observes registry decisions, e.g. for metrics
type Recorder interface {
	Accepted(typ, source string)
	Blocked(typ, reason string)
}

// Options for one registration
type Options struct {
	AllowDuplicate bool
	Source         string
}

// Entry is an accepted node
type Entry struct {
	Node   jsonld.Node `json:"node"`
	Source string      `json:"source"`
}

// Block is a rejected registration
type Block struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// Registry holds the state of one render
type Registry struct {
	types      map[string]bool
	ids        map[string]bool
	accepted   []Entry
	blocked    []Block
	outputDone bool

	repeatable map[string]bool
	policy     Policy
	recorder   Recorder
	logger     *zap.SugaredLogger
}

// Option configures a Registry
type Option func(*Registry)

// WithPolicy sets the type blocklist collaborator
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithRecorder sets the decision observer
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// WithRepeatable replaces the repeatable-type allowlist
func WithRepeatable(types ...string) Option {
	return func(r *Registry) {
		r.repeatable = make(map[string]bool, len(types))
		for _, t := range types {
			r.repeatable[t] = true
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		types:  make(map[string]bool),
		ids:    make(map[string]bool),
		logger: zap.NewNop().Sugar(),
	}
	WithRepeatable(DefaultRepeatable...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register offers a candidate node. It returns false and records a Block
// when output already happened, the node has no type, the type is
// blocklisted, the id was seen, or the type was seen and may not repeat.
func (r *Registry) Register(value any, opts Options) bool {
	node, _ := jsonld.AsNode(value)
	typ := node.PrimaryType()
	id := node.ID()

	switch {
	case r.outputDone:
		return r.block(typ, id, ReasonOutputDone, opts.Source)
	case typ == "":
		return r.block(typ, id, ReasonNoType, opts.Source)
	case r.blocklisted(node):
		return r.block(typ, id, ReasonBlocklisted, opts.Source)
	case id != "" && r.ids[id]:
		return r.block(typ, id, ReasonDuplicateID, opts.Source)
	case r.types[typ] && !opts.AllowDuplicate && !r.repeatable[typ]:
		return r.block(typ, id, ReasonDuplicateType, opts.Source)
	}

	r.accepted = append(r.accepted, Entry{Node: node, Source: opts.Source})
	r.types[typ] = true
	if id != "" {
		r.ids[id] = true
	}
	if r.recorder != nil {
		r.recorder.Accepted(typ, opts.Source)
	}
	return true
}

func (r *Registry) blocklisted(node jsonld.Node) bool {
	if r.policy == nil {
		return false
	}
	for _, t := range node.Types() {
		if r.policy.Blocked(t) {
			return true
		}
	}
	return false
}

func (r *Registry) block(typ, id, reason, source string) bool {
	r.blocked = append(r.blocked, Block{Type: typ, ID: id, Reason: reason, Source: source})
	r.logger.Debugw("Schema registration blocked",
		logger.FieldSchemaType, typ,
		logger.FieldNodeID, id,
		logger.FieldReason, reason,
		logger.FieldSource, source)
	if r.recorder != nil {
		r.recorder.Blocked(typ, reason)
	}
	return false
}

// HasType reports whether a node of typ was accepted
func (r *Registry) HasType(typ string) bool {
	return r.types[typ]
}

// Output writes one <script type="application/ld+json"> block per accepted
// node, adding the schema.org @context where missing. Only the first call
// writes; later calls are no-ops.
func (r *Registry) Output(w io.Writer) error {
	if r.outputDone {
		return nil
	}
	r.outputDone = true

	for _, entry := range r.accepted {
		block, err := ScriptBlock(entry.Node)
		if err != nil {
			return errors.Wrapf(err, "encode %s from %s", entry.Node.PrimaryType(), entry.Source)
		}
		if _, err := w.Write(block); err != nil {
			return errors.Wrap(err, "write schema output")
		}
	}
	return nil
}

// OutputDone reports whether Output has run
func (r *Registry) OutputDone() bool {
	return r.outputDone
}

// Nodes returns the accepted nodes, each with @context set
func (r *Registry) Nodes() []jsonld.Node {
	out := make([]jsonld.Node, 0, len(r.accepted))
	for _, entry := range r.accepted {
		out = append(out, withContext(entry.Node))
	}
	return out
}

// Accepted returns a copy of the accepted entries
func (r *Registry) Accepted() []Entry {
	return append([]Entry(nil), r.accepted...)
}

// Blocked returns a copy of the rejected registrations
func (r *Registry) Blocked() []Block {
	return append([]Block(nil), r.blocked...)
}

// Clear resets all state, including the output flag
func (r *Registry) Clear() {
	r.types = make(map[string]bool)
	r.ids = make(map[string]bool)
	r.accepted = nil
	r.blocked = nil
	r.outputDone = false
}

func withContext(n jsonld.Node) jsonld.Node {
	if _, ok := n[jsonld.KeyContext]; ok {
		return n
	}
	out := n.Clone()
	out[jsonld.KeyContext] = jsonld.ContextURL
	return out
}

// ScriptBlock renders one node as a JSON-LD script element. Slashes and
// non-ASCII text are written as-is; "</" is escaped so the payload cannot
// close the element early.
func ScriptBlock(v any) ([]byte, error) {
	if n, ok := jsonld.AsNode(v); ok {
		v = withContext(n)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	payload = bytes.ReplaceAll(payload, []byte("</"), []byte(`<\/`))

	out := make([]byte, 0, len(payload)+64)
	out = append(out, `<script type="application/ld+json">`...)
	out = append(out, payload...)
	out = append(out, "</script>\n"...)
	return out, nil
}
