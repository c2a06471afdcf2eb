package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teranos/ldschema/ai/completion"
	"github.com/teranos/ldschema/content"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
	"github.com/teranos/ldschema/jsonld/catalog"
	"github.com/teranos/ldschema/jsonld/repair"
	"github.com/teranos/ldschema/storage"
)

const (
	generateSystemPrompt = "You are an SEO expert. Output JSON only."

	// promptWordLimit trims page text sent for generation
	promptWordLimit = 500
)

// Generate asks the completion service for a schemaType object describing
// contentID, then validates, repairs, scores and publishes it like Repair
func (s *Service) Generate(ctx context.Context, contentID, schemaType string, actor storage.Actor) (*Outcome, error) {
	if s.completer == nil {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("generation is not configured"),
			"set completion.api_key to enable generation")
	}
	cat := s.validator.Catalog()
	if !cat.Known(schemaType) {
		return nil, errors.WithHintf(
			errors.NewInvalidRequestError("unknown schema type %q", schemaType),
			"generatable types: %s", strings.Join(cat.Generatable(), ", "))
	}

	c, err := s.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	resp, err := s.completer.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{Role: "system", Content: generateSystemPrompt},
			{Role: "user", Content: BuildGeneratePrompt(c, schemaType, cat.Fields(schemaType), s.siteName, s.siteURL)},
		},
		ResponseFormat: completion.JSONObject,
		OperationType:  OpGenerate,
		EntityType:     schemaType,
		EntityID:       contentID,
	})
	if err != nil {
		s.logSystemError(ctx, "generation failed", contentID, err)
		return nil, errors.Wrapf(err, "generate %s for %s", schemaType, contentID)
	}

	doc, err := repair.Normalize(resp.Content)
	if err != nil {
		return nil, errors.Wrapf(err, "generate %s for %s", schemaType, contentID)
	}
	doc = jsonld.StripMarkupDeep(withDefaults(doc, schemaType))

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encode generated schema")
	}
	return s.run(ctx, OpGenerate, contentID, doc, string(raw), c, actor)
}

// withDefaults turns a bare list into a graph and fills in @context, and
// @type on a lone untyped object
func withDefaults(doc any, schemaType string) any {
	if list, ok := doc.([]any); ok {
		if len(list) == 1 {
			doc = list[0]
		} else {
			doc = map[string]any{jsonld.KeyContext: jsonld.ContextURL, jsonld.KeyGraph: list}
		}
	}
	node, ok := jsonld.AsNode(doc)
	if !ok {
		return doc
	}
	if _, has := node[jsonld.KeyContext]; !has {
		node[jsonld.KeyContext] = jsonld.ContextURL
	}
	if !node.IsGraph() && len(node.Types()) == 0 {
		node[jsonld.KeyType] = schemaType
	}
	return map[string]any(node)
}

// BuildGeneratePrompt describes the page and the fields wanted for schemaType
func BuildGeneratePrompt(c *content.Content, schemaType string, fields []catalog.Field, siteName, siteURL string) string {
	var b strings.Builder
	b.WriteString("You are an SEO expert specializing in Schema.org structured data.\n")
	fmt.Fprintf(&b, "Analyze the content and produce one %q JSON-LD object.\n\n", schemaType)

	if siteName != "" {
		b.WriteString("=== SITE ===\n")
		fmt.Fprintf(&b, "- Organization: %s\n", siteName)
		if siteURL != "" {
			fmt.Fprintf(&b, "- URL: %s\n", siteURL)
		}
		if hint := organizationHint(schemaType, siteName); hint != "" {
			b.WriteString(hint)
		}
		b.WriteString("\n")
	}

	if len(fields) > 0 {
		b.WriteString("=== FIELDS ===\n")
		for _, f := range fields {
			fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, f.Kind, f.Label)
			for _, sub := range f.Subfields {
				fmt.Fprintf(&b, "  - %s (%s): %s\n", sub.Name, sub.Kind, sub.Label)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Use absolute URLs and ISO-8601 dates. Leave out fields the content does not support.\n")
	b.WriteString("Return ONLY valid JSON.\n")
	if title := c.Text("title"); title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if url := c.Text("url"); url != "" {
		fmt.Fprintf(&b, "URL: %s\n", url)
	}
	body := c.Text("content")
	if body == "" {
		body = c.Text("description")
	}
	b.WriteString("Main Content:\n")
	b.WriteString(trimWords(jsonld.StripMarkup(body), promptWordLimit))
	b.WriteString("\n")
	return b.String()
}

func organizationHint(schemaType, siteName string) string {
	switch schemaType {
	case "JobPosting":
		return fmt.Sprintf("- hiringOrganization should be %q.\n", siteName)
	case "Article", "NewsArticle", "BlogPosting":
		return fmt.Sprintf("- publisher defaults to the Organization %q.\n", siteName)
	case "Service":
		return fmt.Sprintf("- provider is the Organization %q.\n", siteName)
	case "LocalBusiness", "ChildCare", "Preschool":
		return fmt.Sprintf("- brand is %q.\n", siteName)
	}
	return ""
}

func trimWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
