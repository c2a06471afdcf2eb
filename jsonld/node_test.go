package jsonld

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesNumbers(t *testing.T) {
	doc, err := Parse([]byte(`{"@type":"AggregateRating","ratingValue":4.50}`))
	require.NoError(t, err)

	n, ok := AsNode(doc)
	require.True(t, ok)
	assert.Equal(t, json.Number("4.50"), n["ratingValue"])
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"@type":"Organization"}{"@type":"Organization"}`))
	assert.Error(t, err)
}

func TestNodeAccessors(t *testing.T) {
	tests := []struct {
		name      string
		node      Node
		types     []string
		primary   string
		id        string
		reference bool
	}{
		{
			name:    "single type",
			node:    Node{"@type": "Organization", "name": "Acme"},
			types:   []string{"Organization"},
			primary: "Organization",
		},
		{
			name:    "multiple types keep order",
			node:    Node{"@type": []any{"LocalBusiness", "ChildCare"}, "@id": "#biz"},
			types:   []string{"LocalBusiness", "ChildCare"},
			primary: "LocalBusiness",
			id:      "#biz",
		},
		{
			name:      "lone id is a reference",
			node:      Node{"@id": "#hero"},
			id:        "#hero",
			reference: true,
		},
		{
			name: "blank type",
			node: Node{"@type": "  "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.types, tt.node.Types())
			assert.Equal(t, tt.primary, tt.node.PrimaryType())
			assert.Equal(t, tt.id, tt.node.ID())
			assert.Equal(t, tt.reference, tt.node.IsReference())
		})
	}
}

func TestGraphItems(t *testing.T) {
	graph := map[string]any{"@graph": []any{map[string]any{"@type": "WebPage"}, map[string]any{"@type": "WebSite"}}}
	items, ok := GraphItems(graph)
	require.True(t, ok)
	assert.Len(t, items, 2)

	items, ok = GraphItems([]any{1, 2, 3})
	require.True(t, ok)
	assert.Len(t, items, 3)

	items, ok = GraphItems(map[string]any{"@type": "Thing"})
	require.True(t, ok)
	assert.Len(t, items, 1)

	_, ok = GraphItems("nope")
	assert.False(t, ok)
}

func TestFlattenGraph(t *testing.T) {
	doc, err := Parse([]byte(`[
		{"@context":"https://schema.org","@graph":[{"@type":"Organization","name":"A"},{"@graph":[{"@type":"Organization","name":"B"}]}]},
		{"@type":"WebPage"}
	]`))
	require.NoError(t, err)

	nodes := FlattenGraph(doc)
	require.Len(t, nodes, 3)
	var types []string
	for _, item := range nodes {
		n, ok := AsNode(item)
		require.True(t, ok)
		types = append(types, n.PrimaryType())
	}
	assert.Equal(t, []string{"Organization", "Organization", "WebPage"}, types)

	assert.Empty(t, FlattenGraph([]any{}))
	assert.Empty(t, FlattenGraph(map[string]any{"@graph": []any{}}))
	assert.Len(t, FlattenGraph(map[string]any{"@type": "Thing"}), 1)
}

func TestValueHelpers(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty("   "))
	assert.True(t, IsEmpty([]any{}))
	assert.False(t, IsEmpty(json.Number("0")))
	assert.False(t, IsEmpty("x"))

	f, ok := Number(json.Number("4.5"))
	assert.True(t, ok)
	assert.Equal(t, 4.5, f)
	_, ok = Number("five")
	assert.False(t, ok)
	f, ok = Number(" 3 ")
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	assert.True(t, IsAbsoluteURL("https://example.com/logo.png"))
	assert.False(t, IsAbsoluteURL("/logo.png"))
	assert.False(t, IsAbsoluteURL("ftp://example.com"))

	for _, s := range []string{"2024-05-01", "2024-05-01T09:30:00Z", "2024-05-01T09:30", "2024-05-01T09:30:00+02:00"} {
		_, ok := ParseDate(s)
		assert.True(t, ok, s)
	}
	_, ok = ParseDate("next tuesday")
	assert.False(t, ok)

	assert.Equal(t, 10, DigitCount("+1 (555) 010-9999"))
}

func TestMarkup(t *testing.T) {
	assert.True(t, ContainsMarkup("<b>Home</b>"))
	assert.True(t, ContainsMarkup("Home<br/>"))
	assert.False(t, ContainsMarkup("Ages 3 < 5"))
	assert.False(t, ContainsMarkup("Plain"))

	assert.Equal(t, "Hello world", StripMarkup("<p>Hello <em>world</em></p>"))
	assert.Equal(t, "Safe", StripMarkup("Safe<script>alert(1)</script>"))

	doc := map[string]any{
		"@id":  "https://example.com/#org",
		"name": "<strong>Acme</strong>",
		"list": []any{"<i>a</i>", json.Number("1")},
	}
	StripMarkupDeep(doc)
	assert.Equal(t, "Acme", doc["name"])
	assert.Equal(t, []any{"a", json.Number("1")}, doc["list"])
	assert.Equal(t, "https://example.com/#org", doc["@id"])
}

func TestReport(t *testing.T) {
	r := NewReport()
	assert.True(t, r.Valid)

	r.AddWarning("", "Unknown schema type %q", "Foo")
	assert.True(t, r.Valid)

	r.AddError(JoinPath("", "mainEntity", 1), "acceptedAnswer text is empty")
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"mainEntity[1]: acceptedAnswer text is empty"}, r.Errors)

	other := NewReport()
	other.AddError(JoinPath("@graph[0]", "address", -1), "missing")
	r.Merge(*other)
	assert.Equal(t, 2, r.ErrorCount())
	assert.Equal(t, "@graph[0].address: missing", r.Errors[1])
	assert.Len(t, r.TopErrors(1), 1)
}
