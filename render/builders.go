package render

import (
	"github.com/teranos/ldschema/content"
	"github.com/teranos/ldschema/jsonld"
)

// Builder contributes candidate nodes for one page
type Builder interface {
	Source() string
	Build(c *content.Content) []any
}

// OrganizationBuilder emits the site-wide Organization
type OrganizationBuilder struct {
	Name string
	URL  string
	Logo string
}

func (OrganizationBuilder) Source() string { return "site" }

func (b OrganizationBuilder) Build(_ *content.Content) []any {
	if b.Name == "" {
		return nil
	}
	node := map[string]any{jsonld.KeyType: "Organization", "name": b.Name}
	if b.URL != "" {
		node["url"] = b.URL
		node[jsonld.KeyID] = b.URL + "#organization"
	}
	if b.Logo != "" {
		node["logo"] = b.Logo
	}
	return []any{node}
}

// WebPageBuilder emits a WebPage from the content's title, url and description
type WebPageBuilder struct{}

func (WebPageBuilder) Source() string { return "page" }

func (WebPageBuilder) Build(c *content.Content) []any {
	title := c.Text("title")
	if title == "" {
		return nil
	}
	node := map[string]any{jsonld.KeyType: "WebPage", "name": title}
	if url := c.Text("url"); url != "" {
		node["url"] = url
	}
	if desc := c.Text("description"); desc != "" {
		node["description"] = jsonld.StripMarkup(desc)
	}
	return []any{node}
}

// BreadcrumbBuilder emits a BreadcrumbList from metadata "breadcrumbs", a
// list of {name, url} objects in page order
type BreadcrumbBuilder struct{}

func (BreadcrumbBuilder) Source() string { return "breadcrumbs" }

func (BreadcrumbBuilder) Build(c *content.Content) []any {
	crumbs, _ := c.Metadata["breadcrumbs"].([]any)
	items := make([]any, 0, len(crumbs))
	for _, raw := range crumbs {
		crumb, ok := jsonld.AsNode(raw)
		if !ok {
			continue
		}
		name, _ := jsonld.String(crumb["name"])
		if name == "" {
			continue
		}
		item := map[string]any{
			jsonld.KeyType: "ListItem",
			"position":     len(items) + 1,
			"name":         name,
		}
		if url, ok := jsonld.String(crumb["url"]); ok && url != "" {
			item["item"] = url
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}
	return []any{map[string]any{jsonld.KeyType: "BreadcrumbList", "itemListElement": items}}
}
