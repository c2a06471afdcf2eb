package validate

import (
	"sort"
	"strings"

	"github.com/teranos/ldschema/jsonld"
)

// checkReferences warns about "#fragment" references that no node defines.
// A reference matches a defined id exactly or as a substring, so "#org"
// resolves against "https://example.com/#org". Non-fragment references may
// point outside the document and are not checked.
func checkReferences(nodes []any, report *jsonld.Report) {
	var defined, refs []string
	for _, n := range nodes {
		collectIDs(n, &defined, &refs)
	}

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if !strings.HasPrefix(ref, "#") || seen[ref] {
			continue
		}
		seen[ref] = true
		if !resolves(ref, defined) {
			report.AddWarning("", "Broken reference %q: no node in the graph defines it", ref)
		}
	}
}

func collectIDs(v any, defined, refs *[]string) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			collectIDs(item, defined, refs)
		}
	default:
		node, ok := jsonld.AsNode(v)
		if !ok {
			return
		}
		if node.IsReference() {
			*refs = append(*refs, node.ID())
			return
		}
		if id := node.ID(); id != "" {
			*defined = append(*defined, id)
		}
		keys := make([]string, 0, len(node))
		for key := range node {
			if key != jsonld.KeyContext {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			collectIDs(node[key], defined, refs)
		}
	}
}

func resolves(ref string, defined []string) bool {
	for _, id := range defined {
		if id == ref || strings.Contains(id, ref) {
			return true
		}
	}
	return false
}

// SingletonTypes may appear at most once in a consolidated graph
var SingletonTypes = []string{"Organization", "BreadcrumbList", "FAQPage", "WebPage"}

// CheckSingletons adds one error per singleton type that appears more than
// once among the top-level nodes. Subtypes count under their own name only.
func CheckSingletons(nodes []any, report *jsonld.Report, types ...string) bool {
	if len(types) == 0 {
		types = SingletonTypes
	}
	counts := make(map[string]int, len(types))
	for _, item := range nodes {
		n, ok := jsonld.AsNode(item)
		if !ok {
			continue
		}
		for _, typ := range types {
			if n.HasType(typ) {
				counts[typ]++
			}
		}
	}

	ok := true
	for _, typ := range types {
		if c := counts[typ]; c > 1 {
			report.AddError("", "Duplicate %s: %d nodes found, merge them into one", typ, c)
			ok = false
		}
	}
	return ok
}
