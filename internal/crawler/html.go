package crawler

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML reduces an HTML page to its visible text, dropping script and
// style subtrees and collapsing whitespace. Unparseable input is returned
// unchanged rather than lost.
func StripHTML(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return page
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(b.String()), " ")
}
