package repair

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/jsonld"
)

// previewLen bounds the response excerpt carried by ParseError
const previewLen = 200

// ParseError means the completion service returned text that is not JSON
// even after normalization. It is surfaced to the caller and never retried.
type ParseError struct {
	Preview string
	cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", errors.ErrAIResponseParse.Error(), e.Preview)
}

// Unwrap returns ErrAIResponseParse, annotated with the decoder failure
func (e *ParseError) Unwrap() error {
	return errors.Wrap(errors.ErrAIResponseParse, e.cause.Error())
}

var (
	fencePattern  = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*\\s*\\n?(.*?)\\s*```$")
	scriptPattern = regexp.MustCompile(`(?is)^<script[^>]*>(.*?)</script>$`)
	joinPattern   = regexp.MustCompile(`\}\s*\{`)
)

// Normalize turns completion output into a parsed JSON-LD document.
//
// Code fences and a wrapping <script> tag are stripped. Text that still
// fails to parse is retried once as concatenated objects: every "}{" becomes
// "},{" and the whole is wrapped in a list. One recovered object is returned
// bare; several become a {"@context", "@graph"} document.
func Normalize(text string) (any, error) {
	cleaned := unwrap(text)

	doc, err := jsonld.Parse([]byte(cleaned))
	if err == nil {
		return doc, nil
	}

	joined := "[" + joinPattern.ReplaceAllString(cleaned, "},{") + "]"
	recovered, joinErr := jsonld.Parse([]byte(joined))
	if joinErr == nil {
		if items, ok := recovered.([]any); ok && len(items) > 0 {
			if len(items) == 1 {
				return items[0], nil
			}
			return map[string]any{
				jsonld.KeyContext: jsonld.ContextURL,
				jsonld.KeyGraph:   items,
			}, nil
		}
	}

	return nil, &ParseError{Preview: preview(cleaned), cause: err}
}

// unwrap removes fences and script wrappers, in either nesting order
func unwrap(text string) string {
	s := strings.TrimSpace(text)
	for {
		if m := fencePattern.FindStringSubmatch(s); m != nil {
			s = strings.TrimSpace(m[1])
			continue
		}
		if m := scriptPattern.FindStringSubmatch(s); m != nil {
			s = strings.TrimSpace(m[1])
			continue
		}
		return s
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	r := []rune(s)
	return string(r[:previewLen])
}
