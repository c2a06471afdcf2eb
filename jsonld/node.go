package jsonld

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/ldschema/errors"
)

// Keyword and vocabulary constants
const (
	KeyContext = "@context"
	KeyType    = "@type"
	KeyID      = "@id"
	KeyGraph   = "@graph"

	ContextURL = "https://schema.org"
)

// Node is one JSON-LD object
type Node map[string]any

// Parse decodes a JSON-LD document with numbers preserved as json.Number
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode json-ld")
	}
	if dec.More() {
		return nil, errors.New("decode json-ld: trailing data after document")
	}
	return v, nil
}

// AsNode returns v as a Node when it is a JSON object
func AsNode(v any) (Node, bool) {
	switch n := v.(type) {
	case Node:
		return n, true
	case map[string]any:
		return Node(n), true
	}
	return nil, false
}

// Types returns the @type values in declaration order
func (n Node) Types() []string {
	switch t := n[KeyType].(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

// PrimaryType is the first declared type, used as the dedup key
func (n Node) PrimaryType() string {
	if types := n.Types(); len(types) > 0 {
		return types[0]
	}
	return ""
}

// HasType reports whether typ is among the node's declared types
func (n Node) HasType(typ string) bool {
	for _, t := range n.Types() {
		if t == typ {
			return true
		}
	}
	return false
}

// ID returns the @id, or "" when absent
func (n Node) ID() string {
	if id, ok := n[KeyID].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

// IsReference reports whether the node is a pointer: @id and nothing else
func (n Node) IsReference() bool {
	if len(n) != 1 {
		return false
	}
	return n.ID() != ""
}

// IsGraph reports whether the node wraps an @graph list
func (n Node) IsGraph() bool {
	_, ok := n[KeyGraph].([]any)
	return ok
}

// Clone copies the node one level deep; nested values are shared
func (n Node) Clone() Node {
	out := make(Node, len(n)+1)
	for k, v := range n {
		out[k] = v
	}
	return out
}

// GraphItems flattens a document into its top-level nodes: an @graph
// wrapper yields its list, an array yields itself, an object yields one item.
// The second result is false for scalars.
func GraphItems(doc any) ([]any, bool) {
	switch d := doc.(type) {
	case []any:
		return d, true
	case map[string]any, Node:
		n, _ := AsNode(d)
		if g, ok := n[KeyGraph].([]any); ok {
			return g, true
		}
		return []any{d}, true
	}
	return nil, false
}

// FlattenGraph lists the entity nodes of doc: lists and @graph wrappers are
// expanded recursively, so a wrapper nested in a list contributes its
// members rather than itself
func FlattenGraph(doc any) []any {
	var out []any
	var walk func(v any)
	walk = func(v any) {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				walk(item)
			}
			return
		}
		if n, ok := AsNode(v); ok && n.IsGraph() {
			walk(n[KeyGraph])
			return
		}
		out = append(out, v)
	}
	walk(doc)
	return out
}

// Items returns v as a list: lists as-is, nil as empty, anything else wrapped
func Items(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	}
	return []any{v}
}
