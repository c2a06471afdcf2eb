package validate

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/teranos/ldschema/jsonld"
)

// defaultRules is the strategy table of type-specific deep rules
func defaultRules() map[string]RuleFunc {
	return map[string]RuleFunc{
		"FAQPage":                 faqPageRule,
		"BreadcrumbList":          breadcrumbListRule,
		"Event":                   eventRule,
		"HowTo":                   howToRule,
		"Organization":            organizationRule,
		"EducationalOrganization": organizationRule,
		"LocalBusiness":           localBusinessRule,
		"ChildCare":               localBusinessRule,
		"Preschool":               localBusinessRule,
		"VideoObject":             videoObjectRule,
		"AggregateRating":         aggregateRatingRule,
	}
}

// typedChild returns the item as a node when it is an object worth checking.
// Untyped objects are skipped since recursion already reported them.
func typedChild(item any) (jsonld.Node, bool) {
	n, ok := jsonld.AsNode(item)
	if !ok || n.IsReference() || len(n.Types()) == 0 {
		return nil, false
	}
	return n, true
}

func faqPageRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	for i, item := range jsonld.Items(node["mainEntity"]) {
		p := jsonld.JoinPath(path, "mainEntity", i)

		if _, isObj := jsonld.AsNode(item); !isObj {
			report.AddError(p, "FAQPage entry must be a Question object")
			continue
		}
		q, ok := typedChild(item)
		if !ok {
			continue
		}
		if !q.HasType("Question") {
			report.AddError(p, "FAQPage entry must be a Question, got %s", q.PrimaryType())
			continue
		}
		if jsonld.IsEmpty(q["name"]) {
			report.AddError(p, "Question is missing name")
		}

		answer, ok := jsonld.AsNode(q["acceptedAnswer"])
		if !ok {
			report.AddError(p, "Question must have a single acceptedAnswer object")
			continue
		}
		if !answer.HasType("Answer") {
			report.AddError(p, "acceptedAnswer must be an Answer")
		}
		if jsonld.IsEmpty(answer["text"]) {
			report.AddError(p, "acceptedAnswer text is empty")
		}
	}
}

func breadcrumbListRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	var positions []int

	for i, item := range jsonld.Items(node["itemListElement"]) {
		p := jsonld.JoinPath(path, "itemListElement", i)

		if _, isObj := jsonld.AsNode(item); !isObj {
			report.AddError(p, "BreadcrumbList entry must be a ListItem object")
			continue
		}
		li, ok := typedChild(item)
		if !ok {
			continue
		}
		if !li.HasType("ListItem") {
			report.AddError(p, "BreadcrumbList entry must be a ListItem, got %s", li.PrimaryType())
			continue
		}

		if pos, ok := jsonld.Number(li["position"]); ok {
			if pos != math.Trunc(pos) {
				report.AddWarning(p, "ListItem position %v is not a whole number", pos)
			} else {
				positions = append(positions, int(pos))
			}
		} else {
			report.AddError(p, "ListItem is missing a numeric position")
		}

		rawItem, hasItem := li["item"]
		if jsonld.IsEmpty(li["name"]) && !hasItem {
			report.AddError(p, "ListItem needs a name or an item")
		}
		if name, ok := jsonld.String(li["name"]); ok && jsonld.ContainsMarkup(name) {
			report.AddError(p, "ListItem name must not contain markup")
		}
		if hasItem {
			checkBreadcrumbItem(rawItem, p, report)
		}
	}

	if len(positions) == 0 {
		return
	}
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	for i, pos := range sorted {
		if pos != i+1 {
			report.AddWarning(path, "BreadcrumbList positions are not a contiguous sequence starting at 1: %v", positions)
			return
		}
	}
}

func checkBreadcrumbItem(raw any, path string, report *jsonld.Report) {
	switch it := raw.(type) {
	case string:
		s := strings.TrimSpace(it)
		if s == "" {
			report.AddError(path, "ListItem item must not be an empty string")
		} else if !jsonld.IsAbsoluteURL(s) {
			report.AddWarning(path, "ListItem item is not an absolute URL: %s", s)
		}
	default:
		if n, ok := jsonld.AsNode(raw); ok {
			if id := n.ID(); id != "" && !jsonld.IsAbsoluteURL(id) {
				report.AddWarning(path, "ListItem item @id is not an absolute URL: %s", id)
			}
		}
	}
}

func eventRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	start, startOK := eventDate(node, "startDate", path, report)
	end, endOK := eventDate(node, "endDate", path, report)
	if startOK && endOK && end.Before(start) {
		report.AddWarning(path, "Event endDate is before startDate")
	}

	for i, item := range jsonld.Items(node["location"]) {
		p := jsonld.JoinPath(path, "location", -1)
		if _, isList := node["location"].([]any); isList {
			p = jsonld.JoinPath(path, "location", i)
		}

		if _, isObj := jsonld.AsNode(item); !isObj {
			report.AddWarning(p, "Event location should be a Place or VirtualLocation object")
			continue
		}
		loc, ok := typedChild(item)
		if !ok {
			continue
		}
		if !loc.HasType("Place") && !loc.HasType("VirtualLocation") {
			report.AddWarning(p, "Event location should be a Place or VirtualLocation, got %s", loc.PrimaryType())
			continue
		}
		if loc.HasType("Place") {
			addr := loc["address"]
			if an, ok := jsonld.AsNode(addr); ok {
				if len(an.Types()) > 0 && !an.HasType("PostalAddress") {
					report.AddWarning(p, "Place address should be a PostalAddress, got %s", an.PrimaryType())
				}
			} else if !jsonld.IsEmpty(addr) {
				report.AddWarning(p, "Place address should be a PostalAddress object")
			}
		}
	}
}

// eventDate reports unparseable event dates as errors, stricter than the
// generic date warning
func eventDate(node jsonld.Node, field, path string, report *jsonld.Report) (t time.Time, ok bool) {
	raw := node[field]
	if jsonld.IsEmpty(raw) {
		return t, false
	}
	s, isString := jsonld.String(raw)
	if !isString {
		report.AddError(path, "Event %s must be an ISO-8601 date string", field)
		return t, false
	}
	parsed, ok := jsonld.ParseDate(s)
	if !ok {
		report.AddError(path, "Event %s is not a valid date: %s", field, s)
		return t, false
	}
	return parsed, true
}

var stepContentFields = []string{"text", "image", "video", "url", "itemListElement"}

func howToRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	raw := node["step"]
	if jsonld.IsEmpty(raw) {
		return
	}
	steps, ok := raw.([]any)
	if !ok {
		report.AddError(path, "HowTo step must be a list")
		return
	}

	for i, item := range steps {
		p := jsonld.JoinPath(path, "step", i)
		if s, isString := jsonld.String(item); isString {
			if s == "" {
				report.AddError(p, "HowTo step is empty")
			}
			continue
		}
		step, ok := jsonld.AsNode(item)
		if !ok {
			report.AddError(p, "HowTo step must be a HowToStep or text")
			continue
		}
		switch {
		case step.HasType("HowToStep"):
			if !hasAny(step, stepContentFields) {
				report.AddError(p, "HowToStep needs one of text, image, video, url or itemListElement")
			}
		case step.HasType("HowToSection"):
			if jsonld.IsEmpty(step["itemListElement"]) {
				report.AddError(p, "HowToSection needs itemListElement steps")
			}
		default:
			report.AddError(p, "HowTo step must be a HowToStep or HowToSection")
		}
	}
}

func organizationRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	raw := node["sameAs"]
	if jsonld.IsEmpty(raw) {
		return
	}
	switch s := raw.(type) {
	case string:
		report.AddWarning(path, "sameAs should be a list of URLs")
	case []any:
		for i, item := range s {
			if _, ok := item.(string); !ok {
				report.AddWarning(jsonld.JoinPath(path, "sameAs", i), "sameAs entries must be URL strings")
			}
		}
	default:
		report.AddWarning(path, "sameAs should be a list of URLs")
	}
}

func localBusinessRule(v *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	organizationRule(v, node, path, report)

	switch addr := node["address"].(type) {
	case nil:
	case string:
		if strings.TrimSpace(addr) != "" {
			report.AddError(path, "address must be a PostalAddress object, not text")
		}
	default:
		if an, ok := typedChild(addr); ok && !an.HasType("PostalAddress") {
			report.AddError(path, "address must be a PostalAddress, got %s", an.PrimaryType())
		}
	}

	geoRaw := node["geo"]
	if jsonld.IsEmpty(geoRaw) {
		return
	}
	geo, ok := jsonld.AsNode(geoRaw)
	if !ok {
		report.AddError(path, "geo must be a GeoCoordinates object")
		return
	}
	p := jsonld.JoinPath(path, "geo", -1)
	if types := geo.Types(); len(types) > 0 && !geo.HasType("GeoCoordinates") {
		report.AddError(p, "geo must be GeoCoordinates, got %s", geo.PrimaryType())
		return
	}
	checkCoordinate(geo, "latitude", 90, p, report)
	checkCoordinate(geo, "longitude", 180, p, report)
}

// checkCoordinate bounds-checks a present coordinate; absence is the
// GeoCoordinates required-field check's job
func checkCoordinate(geo jsonld.Node, field string, limit float64, path string, report *jsonld.Report) {
	raw := geo[field]
	if jsonld.IsEmpty(raw) {
		return
	}
	f, ok := jsonld.Number(raw)
	if !ok {
		report.AddError(path, "%s is not numeric: %v", field, raw)
		return
	}
	if f < -limit || f > limit {
		report.AddError(path, "%s %s is out of range", field, formatNumber(f))
	}
}

func videoObjectRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	if jsonld.IsEmpty(node["contentUrl"]) && jsonld.IsEmpty(node["embedUrl"]) {
		report.AddWarning(path, "VideoObject should provide contentUrl or embedUrl")
	}
	raw := node["thumbnailUrl"]
	if jsonld.IsEmpty(raw) {
		return
	}
	for i, item := range jsonld.Items(raw) {
		if s, ok := jsonld.String(item); !ok || s == "" {
			report.AddError(jsonld.JoinPath(path, "thumbnailUrl", i), "thumbnailUrl entries must be URL strings")
		}
	}
}

func aggregateRatingRule(_ *Validator, node jsonld.Node, path string, report *jsonld.Report) {
	hasCount := false
	for _, field := range []string{"ratingCount", "reviewCount"} {
		raw := node[field]
		if jsonld.IsEmpty(raw) {
			continue
		}
		hasCount = true
		n, ok := jsonld.Number(raw)
		if !ok || n < 0 {
			report.AddError(path, "%s must be a non-negative number", field)
		}
	}
	if !hasCount {
		report.AddWarning(path, "AggregateRating should include ratingCount or reviewCount")
	}
}

func hasAny(node jsonld.Node, fields []string) bool {
	for _, f := range fields {
		if !jsonld.IsEmpty(node[f]) {
			return true
		}
	}
	return false
}
