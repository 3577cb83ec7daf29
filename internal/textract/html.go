package textract

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Selector matches an element by tag name ("li") or class (".pharmacy").
type Selector string

// ParseSelectors splits a comma-separated selector list.
func ParseSelectors(list string) []Selector {
	var out []Selector
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, Selector(strings.ToLower(s)))
		}
	}
	return out
}

func (s Selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if cls, ok := strings.CutPrefix(string(s), "."); ok {
		for _, a := range n.Attr {
			if a.Key == "class" {
				for _, c := range strings.Fields(a.Val) {
					if strings.EqualFold(c, cls) {
						return true
					}
				}
			}
		}
		return false
	}
	return strings.EqualFold(n.Data, string(s))
}

// Blocks returns the whitespace-collapsed text of every element matching any
// selector, in document order. Nested matches each yield their own block.
func Blocks(doc []byte, selectors []Selector) ([]string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, eris.Wrap(err, "textract: parse html")
	}

	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for _, s := range selectors {
			if s.matches(n) {
				if t := Text(n); t != "" {
					out = append(out, t)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

// Text returns the collapsed text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
