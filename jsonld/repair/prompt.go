package repair

import (
	"strings"

	"github.com/teranos/ldschema/jsonld/validate"
)

const systemPrompt = "You are a Schema.org and JSON-LD expert. Output JSON only."

// BuildPrompt asks the service to consolidate and fix raw against errs
func BuildPrompt(raw string, errs []string) string {
	var b strings.Builder
	b.WriteString("Fix the following JSON-LD structured data.\n\n")
	b.WriteString("=== RULES ===\n")
	b.WriteString("- Return exactly one root JSON object.\n")
	b.WriteString("- Put every entity in a single \"@graph\" array and set \"@context\" to \"https://schema.org\".\n")
	b.WriteString("- De-duplicate aggressively: keep exactly one each of ")
	b.WriteString(strings.Join(validate.SingletonTypes, ", "))
	b.WriteString(". Merge the richer properties into the survivor and discard the rest.\n")
	b.WriteString("- Preserve existing valid data.\n")
	b.WriteString("- Strip HTML markup from text fields.\n")
	b.WriteString("- Use absolute URLs and ISO-8601 dates.\n")
	b.WriteString("- Number BreadcrumbList positions sequentially from 1.\n")

	if len(errs) > 0 {
		b.WriteString("\n=== ERRORS TO FIX ===\n")
		for _, e := range errs {
			b.WriteString("- ")
			b.WriteString(e)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n=== INPUT ===\n")
	b.WriteString(raw)
	b.WriteString("\n")
	return b.String()
}
