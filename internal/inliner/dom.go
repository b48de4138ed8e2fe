package inliner

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}

func inHead(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Head {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func isStylesheet(n *html.Node) bool {
	for _, rel := range strings.Fields(strings.ToLower(getAttr(n, "rel"))) {
		if rel == "stylesheet" {
			return true
		}
	}
	return false
}

func isRemote(href string) bool {
	lower := strings.ToLower(href)
	return href == "" || strings.HasPrefix(lower, "http:") || strings.HasPrefix(lower, "https:") ||
		strings.HasPrefix(lower, "//") || strings.HasPrefix(lower, "data:")
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// applyWidth mirrors a pixel or percentage CSS width onto the width
// attribute of table cells and images, unless one is already set.
func applyWidth(n *html.Node, c *cascade) {
	switch n.DataAtom {
	case atom.Table, atom.Td, atom.Th, atom.Img:
	default:
		return
	}
	if hasAttr(n, "width") {
		return
	}
	w, ok := c.value("width")
	if !ok {
		return
	}
	w = strings.TrimSpace(w)
	switch {
	case strings.HasSuffix(w, "px"):
		setAttr(n, "width", strings.TrimSpace(strings.TrimSuffix(w, "px")))
	case strings.HasSuffix(w, "%"):
		setAttr(n, "width", w)
	}
}

var tableAttributes = map[string]string{
	"background-color": "bgcolor",
	"text-align":       "align",
	"vertical-align":   "valign",
}

// applyTableAttributes copies presentational CSS onto the legacy table
// attributes some clients still honor.
func applyTableAttributes(n *html.Node, c *cascade) {
	switch n.DataAtom {
	case atom.Table, atom.Td, atom.Th:
	default:
		return
	}
	for prop, attr := range tableAttributes {
		if hasAttr(n, attr) {
			continue
		}
		if v, ok := c.value(prop); ok {
			setAttr(n, attr, v)
		}
	}
}
