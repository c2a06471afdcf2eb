// Package validate checks JSON-LD nodes against the type catalog and the
// rich-result rules for each type. Validation never fails with an error: it
// returns a boolean and accumulates findings into a jsonld.Report.
package validate

import (
	"go.uber.org/zap"

	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/catalog"
)

// RuleFunc is a type-specific deep rule. path is the node's report path.
type RuleFunc func(v *Validator, node jsonld.Node, path string, report *jsonld.Report)

// Validator is safe for concurrent use once constructed
type Validator struct {
	catalog *catalog.Catalog
	rules   map[string]RuleFunc
	logger  *zap.SugaredLogger
}

// Option configures a Validator
type Option func(*Validator)

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithRule registers or replaces the deep rule for typ
func WithRule(typ string, fn RuleFunc) Option {
	return func(v *Validator) { v.rules[typ] = fn }
}

// New creates a validator over cat. A nil catalog means catalog.Default().
func New(cat *catalog.Catalog, opts ...Option) *Validator {
	if cat == nil {
		cat = catalog.Default()
	}
	v := &Validator{
		catalog: cat,
		rules:   defaultRules(),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Catalog returns the catalog the validator checks against
func (v *Validator) Catalog() *catalog.Catalog {
	return v.catalog
}

// nestedFields carry typed objects and are validated recursively
var nestedFields = []string{
	"author", "publisher", "provider", "hiringOrganization", "location",
	"address", "geo", "offers", "review", "aggregateRating", "mainEntity",
	"itemListElement",
}

// Validate checks one node and appends findings to report. context is the
// report path prefix, "" for a root node. A node wrapping @graph is
// validated as a graph.
func (v *Validator) Validate(value any, context string, report *jsonld.Report) bool {
	before := len(report.Errors)

	node, ok := jsonld.AsNode(value)
	if !ok {
		report.AddError(context, "Schema node must be an object")
		return false
	}
	if node.IsGraph() {
		// references are resolved once by the outermost graph
		items, _ := jsonld.GraphItems(node)
		v.validateNodes(items, context, report)
		return len(report.Errors) == before
	}

	types := node.Types()
	if len(types) == 0 {
		report.AddError(context, "Missing @type")
		return false
	}

	rule, known := v.ruleFor(types)
	if !known {
		report.AddWarning(context, "Unknown schema type %q", types[0])
	} else {
		for _, field := range rule.Required {
			if jsonld.IsEmpty(node[field]) {
				report.AddError(context, "Missing required field %q for %s", field, rule.Type)
			}
		}
		for _, field := range rule.Recommended {
			if jsonld.IsEmpty(node[field]) {
				report.AddWarning(context, "Missing recommended field %q for %s", field, rule.Type)
			}
		}
	}

	checkFieldValues(node, context, report)
	v.validateNested(node, context, report)

	for _, typ := range types {
		if fn, ok := v.rules[typ]; ok {
			fn(v, node, context, report)
			break
		}
	}

	return len(report.Errors) == before
}

// ruleFor picks the first declared type the catalog knows
func (v *Validator) ruleFor(types []string) (catalog.Rule, bool) {
	for _, typ := range types {
		if rule, ok := v.catalog.Rule(typ); ok {
			return rule, true
		}
	}
	return catalog.Rule{}, false
}

func (v *Validator) validateNested(node jsonld.Node, context string, report *jsonld.Report) {
	for _, field := range nestedFields {
		switch val := node[field].(type) {
		case []any:
			for i, item := range val {
				v.validateChild(item, jsonld.JoinPath(context, field, i), report)
			}
		case map[string]any, jsonld.Node:
			v.validateChild(val, jsonld.JoinPath(context, field, -1), report)
		}
	}
}

// validateChild skips scalars (e.g. an author given as a plain name) and
// pure references; references are checked at graph level.
func (v *Validator) validateChild(item any, path string, report *jsonld.Report) {
	child, ok := jsonld.AsNode(item)
	if !ok || child.IsReference() {
		return
	}
	v.Validate(child, path, report)
}

// ValidateGraph validates each node and then cross-node reference integrity
func (v *Validator) ValidateGraph(nodes []any, report *jsonld.Report) bool {
	before := len(report.Errors)
	v.validateNodes(nodes, "", report)
	checkReferences(nodes, report)
	return len(report.Errors) == before
}

func (v *Validator) validateNodes(nodes []any, context string, report *jsonld.Report) {
	for i, item := range nodes {
		if n, ok := jsonld.AsNode(item); ok && n.IsReference() {
			continue
		}
		v.Validate(item, jsonld.JoinPath(context, jsonld.KeyGraph, i), report)
	}
}

// ValidateDocument validates a parsed document: a single object, an @graph
// wrapper, or a top-level array.
func (v *Validator) ValidateDocument(doc any) jsonld.Report {
	report := jsonld.NewReport()
	switch d := doc.(type) {
	case []any:
		if len(jsonld.FlattenGraph(d)) == 0 {
			report.AddError("", "Document contains no nodes")
			break
		}
		v.ValidateGraph(d, report)
	default:
		node, ok := jsonld.AsNode(d)
		if !ok {
			report.AddError("", "Document must be a JSON object or array")
			break
		}
		if node.IsGraph() {
			items, _ := jsonld.GraphItems(node)
			if len(jsonld.FlattenGraph(items)) == 0 {
				report.AddError("", "Document contains no nodes")
				break
			}
			v.ValidateGraph(items, report)
			break
		}
		v.Validate(node, "", report)
		checkReferences([]any{node}, report)
	}

	v.logger.Debugw("Validated document",
		"valid", report.Valid,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings))
	return *report
}
