// Package quality scores generated structured data and parks low-confidence
// or unfixable results in a review queue for a human decision.
package quality

import (
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/teranos/ldschema/jsonld"
)

// DefaultThreshold is the overall confidence below which a result needs review
const DefaultThreshold = 0.7

// Per-field scores
const (
	ScoreEmpty     = 0.0
	ScoreExact     = 1.0
	ScoreSubstring = 0.8
	ScoreTrusted   = 0.9
	ScoreFuzzy     = 0.6
	ScoreBaseline  = 0.5
)

// trustedFields are usually copied from page metadata and rarely wrong
var trustedFields = map[string]bool{"name": true, "url": true, "telephone": true, "address": true}

// fuzzyFields are paraphrased or synthesized and deserve less trust
var fuzzyFields = map[string]bool{"description": true, "aggregateRating": true, "review": true}

// ConfidenceMap is a per-field score in [0, 1]
type ConfidenceMap map[string]float64

// Score rates every generated field against the source fields:
//
//	empty generated value             0.0
//	equal to the source value         1.0
//	contains the source value         0.8
//	name, url, telephone, address     0.9
//	description, aggregateRating,
//	review with a differing source    0.6
//	anything else                     0.5
//
// JSON-LD keywords (@context, @type, @id) are not scored.
func Score(generated, source map[string]any) ConfidenceMap {
	out := make(ConfidenceMap, len(generated))
	for field, value := range generated {
		if strings.HasPrefix(field, "@") {
			continue
		}
		out[field] = scoreField(field, value, source)
	}
	return out
}

func scoreField(field string, value any, source map[string]any) float64 {
	if jsonld.IsEmpty(value) {
		return ScoreEmpty
	}

	src, hasSource := source[field]
	hasSource = hasSource && !jsonld.IsEmpty(src)

	if hasSource {
		if sameValue(value, src) {
			return ScoreExact
		}
		gen, genOK := jsonld.String(value)
		want, wantOK := jsonld.String(src)
		if genOK && wantOK && strings.Contains(gen, want) {
			return ScoreSubstring
		}
	}

	switch {
	case trustedFields[field]:
		return ScoreTrusted
	case fuzzyFields[field] && hasSource:
		return ScoreFuzzy
	}
	return ScoreBaseline
}

func sameValue(a, b any) bool {
	as, aok := jsonld.String(a)
	bs, bok := jsonld.String(b)
	if aok && bok {
		return as == bs
	}
	if an, ok := jsonld.Number(a); ok {
		if bn, ok := jsonld.Number(b); ok {
			return an == bn
		}
	}
	return reflect.DeepEqual(a, b)
}

// Overall is the mean score rounded to two decimals, 0 for an empty map
func Overall(cm ConfidenceMap) float64 {
	if len(cm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range cm {
		sum += s
	}
	return round2(sum / float64(len(cm)))
}

// NeedsReview reports whether the overall score is below threshold
func NeedsReview(cm ConfidenceMap, threshold float64) bool {
	return Overall(cm) < threshold
}

// LowFields lists fields scoring below threshold, for review reasons
func LowFields(cm ConfidenceMap, threshold float64) []string {
	var out []string
	for field, s := range cm {
		if s < threshold {
			out = append(out, field)
		}
	}
	sort.Strings(out)
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
