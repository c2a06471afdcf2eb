// Package catalog is the immutable table of known schema.org types: which
// fields each type requires or recommends, and the form-field metadata used
// by the generation path.
package catalog

import (
	_ "embed"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teranos/ldschema/errors"
)

// FieldKind describes how a field's value is entered and rendered
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindLongText FieldKind = "longtext"
	KindURL      FieldKind = "url"
	KindDate     FieldKind = "date"
	KindList     FieldKind = "list" // list of objects, see Field.Subfields
)

// Field is form metadata for one property
type Field struct {
	Name      string    `yaml:"name" json:"name"`
	Label     string    `yaml:"label" json:"label"`
	Kind      FieldKind `yaml:"kind" json:"kind"`
	Subfields []Field   `yaml:"subfields,omitempty" json:"subfields,omitempty"`
}

// Rule is the validation contract for one type
type Rule struct {
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Required    []string `json:"required"`
	Recommended []string `json:"recommended"`
	Fields      []Field  `json:"fields,omitempty"`
}

// Catalog is safe for concurrent use; it is never mutated after construction
type Catalog struct {
	rules map[string]Rule
}

type typeEntry struct {
	Label       string   `yaml:"label"`
	Parent      string   `yaml:"parent"`
	Required    []string `yaml:"required"`
	Recommended []string `yaml:"recommended"`
	Fields      []Field  `yaml:"fields"`
}

//go:embed types.yaml
var builtinTypes []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog built from the embedded type table
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(builtinTypes)
		if err != nil {
			panic(errors.Wrap(err, "embedded type table"))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load builds a catalog from a YAML type table
func Load(data []byte) (*Catalog, error) {
	var entries map[string]typeEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "parse type table")
	}

	c := &Catalog{rules: make(map[string]Rule, len(entries))}
	for name := range entries {
		if _, err := c.resolve(name, entries, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// resolve flattens inheritance; parents come first in field lists
func (c *Catalog) resolve(name string, entries map[string]typeEntry, visiting map[string]bool) (Rule, error) {
	if r, ok := c.rules[name]; ok {
		return r, nil
	}
	entry, ok := entries[name]
	if !ok {
		return Rule{}, errors.Newf("unknown parent type %q", name)
	}
	if visiting[name] {
		return Rule{}, errors.Newf("inheritance cycle at %q", name)
	}
	visiting[name] = true

	rule := Rule{Type: name, Label: entry.Label}
	if entry.Parent != "" {
		parent, err := c.resolve(entry.Parent, entries, visiting)
		if err != nil {
			return Rule{}, errors.Wrapf(err, "type %s", name)
		}
		rule.Required = append(rule.Required, parent.Required...)
		rule.Recommended = append(rule.Recommended, parent.Recommended...)
		rule.Fields = parent.Fields
	}
	rule.Required = appendUnique(rule.Required, entry.Required...)
	rule.Recommended = appendUnique(rule.Recommended, entry.Recommended...)
	if len(entry.Fields) > 0 {
		rule.Fields = entry.Fields
	}
	if rule.Label == "" {
		rule.Label = name
	}

	c.rules[name] = rule
	return rule, nil
}

// Rule returns the rule for typ
func (c *Catalog) Rule(typ string) (Rule, bool) {
	r, ok := c.rules[typ]
	return r, ok
}

// Known reports whether typ is in the catalog
func (c *Catalog) Known(typ string) bool {
	_, ok := c.rules[typ]
	return ok
}

// Fields returns generation-form metadata for typ
func (c *Catalog) Fields(typ string) []Field {
	return c.rules[typ].Fields
}

// Types lists every known type, sorted
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.rules))
	for name := range c.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Generatable lists the types that carry form metadata, sorted
func (c *Catalog) Generatable() []string {
	var out []string
	for name, r := range c.rules {
		if len(r.Fields) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		seen := false
		for _, d := range dst {
			if d == item {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, item)
		}
	}
	return dst
}
