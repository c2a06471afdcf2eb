package jsonld

import (
	"strings"

	"golang.org/x/net/html"
)

// ContainsMarkup reports whether s contains any HTML tag
func ContainsMarkup(s string) bool {
	if !strings.ContainsRune(s, '<') {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			return true
		}
	}
}

// StripMarkup returns the text content of s with tags removed and
// whitespace collapsed.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "script" || string(name) == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if (string(name) == "script" || string(name) == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// StripMarkupDeep strips markup from every string value under v, in place
// for objects and lists. @id and @context values are left alone.
func StripMarkupDeep(v any) any {
	switch t := v.(type) {
	case string:
		return StripMarkup(t)
	case []any:
		for i := range t {
			t[i] = StripMarkupDeep(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			if k == KeyContext || k == KeyID {
				continue
			}
			t[k] = StripMarkupDeep(val)
		}
		return t
	case Node:
		StripMarkupDeep(map[string]any(t))
		return t
	}
	return v
}
