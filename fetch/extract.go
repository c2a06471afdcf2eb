package fetch

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// ExtractBlocks returns the text of every <script type="application/ld+json">
// element in document order. Malformed HTML is parsed leniently.
func ExtractBlocks(page []byte) []string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			if isLDJSON(n) {
				var b strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						b.WriteString(c.Data)
					}
				}
				if text := strings.TrimSpace(b.String()); text != "" {
					blocks = append(blocks, text)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks
}

func isLDJSON(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "type" {
			continue
		}
		// tolerate "application/ld+json; charset=utf-8"
		mediaType, _, _ := strings.Cut(attr.Val, ";")
		return strings.EqualFold(strings.TrimSpace(mediaType), "application/ld+json")
	}
	return false
}
