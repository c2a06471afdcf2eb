package validate

import (
	"strconv"

	"github.com/teranos/ldschema/jsonld"
)

var urlFields = []string{"url", "image", "logo", "sameAs", "thumbnailUrl", "contentUrl"}

var dateFields = []string{"datePublished", "dateModified", "datePosted", "startDate", "endDate", "uploadDate"}

// checkFieldValues runs the type-independent value checks
func checkFieldValues(node jsonld.Node, path string, report *jsonld.Report) {
	for _, field := range urlFields {
		for _, item := range jsonld.Items(node[field]) {
			s, ok := jsonld.String(item)
			if !ok || s == "" {
				continue // objects such as ImageObject are validated on their own
			}
			if !jsonld.IsAbsoluteURL(s) {
				report.AddWarning(path, "Field %q is not an absolute URL: %s", field, s)
			}
		}
	}

	for _, field := range dateFields {
		s, ok := jsonld.String(node[field])
		if !ok || s == "" {
			continue
		}
		if _, ok := jsonld.ParseDate(s); !ok {
			report.AddWarning(path, "Field %q is not a recognizable date: %s", field, s)
		}
	}

	if raw, present := node["ratingValue"]; present && !jsonld.IsEmpty(raw) {
		checkRatingValue(node, raw, path, report)
	}

	if s, ok := jsonld.String(node["telephone"]); ok && s != "" {
		if jsonld.DigitCount(s) < 5 {
			report.AddError(path, "Field \"telephone\" has fewer than 5 digits: %s", s)
		}
	}
}

func checkRatingValue(node jsonld.Node, raw any, path string, report *jsonld.Report) {
	value, ok := jsonld.Number(raw)
	if !ok {
		report.AddError(path, "Field \"ratingValue\" is not numeric: %v", raw)
		return
	}
	worst, best := 1.0, 5.0
	if w, ok := jsonld.Number(node["worstRating"]); ok {
		worst = w
	}
	if b, ok := jsonld.Number(node["bestRating"]); ok {
		best = b
	}
	if value < worst || value > best {
		report.AddError(path, "Field \"ratingValue\" %s is outside [%s, %s]",
			formatNumber(value), formatNumber(worst), formatNumber(best))
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
