package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// pageMeta holds the head-level metadata of an HTML document.
type pageMeta struct {
	Title string
	Tags  map[string]string
}

// Get returns the first non-empty value among the given meta keys.
func (m pageMeta) Get(keys ...string) string {
	for _, k := range keys {
		if v := m.Tags[k]; v != "" {
			return v
		}
	}
	return ""
}

// parsePageMeta extracts the <title> element and all <meta> tags keyed
// by their property or name attribute. Open Graph tags end up under
// their og:* keys.
func parsePageMeta(body []byte) pageMeta {
	meta := pageMeta{Tags: make(map[string]string)}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return meta
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if meta.Title == "" && n.FirstChild != nil {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var key, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property", "name":
						if key == "" {
							key = attr.Val
						}
					case "content":
						content = attr.Val
					}
				}
				if key != "" && content != "" {
					if _, seen := meta.Tags[key]; !seen {
						meta.Tags[key] = content
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

// extractParagraphs collects the text of <p> elements as a crude body
// fallback for pages readability cannot handle.
func extractParagraphs(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "p":
				if text := nodeText(n); text != "" {
					parts = append(parts, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, "\n\n")
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
