// Package inky expands Foundation for Emails markup (<container>, <row>,
// <columns>, <button>, ...) into the nested tables email clients render
// reliably.
package inky

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultColumnCount is the grid width used to size columns.
const DefaultColumnCount = 12

// Transformer converts Inky components to tables.
type Transformer struct {
	ColumnCount int
}

// New creates a Transformer with the default 12-column grid.
func New() *Transformer {
	return &Transformer{ColumnCount: DefaultColumnCount}
}

var components = map[string]bool{
	"container":  true,
	"row":        true,
	"columns":    true,
	"button":     true,
	"callout":    true,
	"spacer":     true,
	"wrapper":    true,
	"center":     true,
	"menu":       true,
	"item":       true,
	"h-line":     true,
	"block-grid": true,
}

// Transform expands every component in src. Documents without components
// are returned unchanged. Fragments (no <html> element) stay fragments.
func (t *Transformer) Transform(src string) (string, error) {
	if !containsComponent(src) {
		return src, nil
	}

	if isDocument(src) {
		doc, err := html.Parse(strings.NewReader(src))
		if err != nil {
			return "", fmt.Errorf("parsing document: %w", err)
		}
		t.walk(doc)
		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err != nil {
			return "", fmt.Errorf("rendering document: %w", err)
		}
		return buf.String(), nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return "", fmt.Errorf("parsing fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	t.walk(body)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rendering fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func containsComponent(src string) bool {
	lower := strings.ToLower(src)
	for name := range components {
		if strings.Contains(lower, "<"+name+">") || strings.Contains(lower, "<"+name+" ") {
			return true
		}
	}
	return false
}

func isDocument(src string) bool {
	lower := strings.ToLower(src)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype")
}

// walk expands components bottom-up so that a component's children are
// already tables when the component itself is replaced.
func (t *Transformer) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		t.walk(c)
		c = next
	}

	if n.Type != html.ElementNode || !components[n.Data] {
		return
	}
	if n.Data == "center" && getAttr(n, "data-parsed") != "" {
		return
	}

	// Void-looking components written as <spacer /> swallow their
	// following siblings during parsing; hand them back.
	if n.Data == "spacer" || n.Data == "h-line" {
		hoistChildren(n)
	}

	var replacement *html.Node
	switch n.Data {
	case "container":
		replacement = t.container(n)
	case "row":
		replacement = t.row(n)
	case "columns":
		replacement = t.columns(n)
	case "button":
		replacement = t.button(n)
	case "callout":
		replacement = t.callout(n)
	case "spacer":
		replacement = t.spacer(n)
	case "wrapper":
		replacement = t.wrapper(n)
	case "center":
		t.center(n)
		return
	case "menu":
		replacement = t.menu(n)
	case "item":
		replacement = t.item(n)
	case "h-line":
		replacement = t.hline(n)
	case "block-grid":
		replacement = t.blockGrid(n)
	}

	if replacement != nil && n.Parent != nil {
		n.Parent.InsertBefore(replacement, n)
		n.Parent.RemoveChild(n)
	}
}

func (t *Transformer) container(n *html.Node) *html.Node {
	table := element("table", attr("align", "center"), attr("class", classes("container", getAttr(n, "class"))))
	td := tableRow(table, "td")
	moveChildren(n, td)
	return table
}

func (t *Transformer) row(n *html.Node) *html.Node {
	table := element("table", attr("class", classes("row", getAttr(n, "class"))))
	tbody := element("tbody")
	tr := element("tr")
	table.AppendChild(tbody)
	tbody.AppendChild(tr)
	moveChildren(n, tr)
	return table
}

func (t *Transformer) columns(n *html.Node) *html.Node {
	count := t.ColumnCount
	if count <= 0 {
		count = DefaultColumnCount
	}

	siblings := countSiblingColumns(n)
	small := getAttr(n, "small")
	if small == "" {
		small = strconv.Itoa(count)
	}
	large := getAttr(n, "large")
	if large == "" {
		large = getAttr(n, "small")
	}
	if large == "" {
		large = strconv.Itoa(count / siblings)
	}

	class := classes("small-"+small, "large-"+large, "columns")
	if prevColumn(n) == nil {
		class = classes(class, "first")
	}
	if nextColumn(n) == nil {
		class = classes(class, "last")
	}
	class = classes(class, getAttr(n, "class"))

	th := element("th", attr("class", class))
	inner := element("table")
	th.AppendChild(inner)
	innerRow := tableRow(inner, "th")
	moveChildren(n, innerRow)

	if large == strconv.Itoa(count) && getAttr(n, "no-expander") == "" && !hasAttr(n, "no-expander") {
		innerRow.Parent.AppendChild(element("th", attr("class", "expander")))
	}
	return th
}

func (t *Transformer) button(n *html.Node) *html.Node {
	class := getAttr(n, "class")
	expanded := hasClass(class, "expand") || hasClass(class, "expanded")

	table := element("table", attr("class", classes("button", class)))
	outer := tableRow(table, "td")
	inner := element("table")
	outer.AppendChild(inner)
	cell := tableRow(inner, "td")

	var content *html.Node = cell
	if expanded {
		center := element("center", attr("data-parsed", ""))
		cell.AppendChild(center)
		content = center
	}

	if href := getAttr(n, "href"); href != "" {
		attrs := []html.Attribute{attr("href", href)}
		if target := getAttr(n, "target"); target != "" {
			attrs = append(attrs, attr("target", target))
		}
		if expanded {
			attrs = append(attrs, attr("align", "center"), attr("class", "float-center"))
		}
		a := element("a", attrs...)
		content.AppendChild(a)
		moveChildren(n, a)
	} else {
		moveChildren(n, content)
	}

	if expanded {
		outer.Parent.AppendChild(element("td", attr("class", "expander")))
	}
	return table
}

func (t *Transformer) callout(n *html.Node) *html.Node {
	table := element("table", attr("class", "callout"))
	th := tableRow(table, "th")
	th.Attr = append(th.Attr, attr("class", classes("callout-inner", getAttr(n, "class"))))
	moveChildren(n, th)
	th.Parent.AppendChild(element("th", attr("class", "expander")))
	return table
}

func (t *Transformer) spacer(n *html.Node) *html.Node {
	size := getAttr(n, "size")
	if _, err := strconv.Atoi(size); err != nil {
		size = "16"
	}
	table := element("table", attr("class", classes("spacer", getAttr(n, "class"))))
	td := tableRow(table, "td")
	td.Attr = append(td.Attr,
		attr("height", size),
		attr("style", fmt.Sprintf("font-size:%spx;line-height:%spx;", size, size)),
	)
	td.AppendChild(&html.Node{Type: html.TextNode, Data: "\u00a0"})
	return table
}

func (t *Transformer) wrapper(n *html.Node) *html.Node {
	table := element("table", attr("class", classes("wrapper", getAttr(n, "class"))), attr("align", "center"))
	td := tableRow(table, "td")
	td.Attr = append(td.Attr, attr("class", "wrapper-inner"))
	moveChildren(n, td)
	return table
}

// center keeps the element and marks its children as centered.
func (t *Transformer) center(n *html.Node) {
	setAttr(n, "data-parsed", "")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		setAttr(c, "align", "center")
		setAttr(c, "class", classes(getAttr(c, "class"), "float-center"))
	}
}

func (t *Transformer) menu(n *html.Node) *html.Node {
	table := element("table", attr("class", classes("menu", getAttr(n, "class"))))
	td := tableRow(table, "td")
	inner := element("table")
	td.AppendChild(inner)
	tbody := element("tbody")
	tr := element("tr")
	inner.AppendChild(tbody)
	tbody.AppendChild(tr)
	moveChildren(n, tr)
	return table
}

func (t *Transformer) item(n *html.Node) *html.Node {
	th := element("th", attr("class", classes("menu-item", getAttr(n, "class"))))
	attrs := []html.Attribute{attr("href", getAttr(n, "href"))}
	if target := getAttr(n, "target"); target != "" {
		attrs = append(attrs, attr("target", target))
	}
	a := element("a", attrs...)
	th.AppendChild(a)
	moveChildren(n, a)
	return th
}

func (t *Transformer) hline(n *html.Node) *html.Node {
	table := element("table", attr("class", classes("h-line", getAttr(n, "class"))))
	th := tableRow(table, "th")
	th.AppendChild(&html.Node{Type: html.TextNode, Data: "\u00a0"})
	return table
}

func (t *Transformer) blockGrid(n *html.Node) *html.Node {
	table := element("table", attr("class", classes("block-grid", "up-"+getAttr(n, "up"), getAttr(n, "class"))))
	tbody := element("tbody")
	tr := element("tr")
	table.AppendChild(tbody)
	tbody.AppendChild(tr)
	moveChildren(n, tr)
	return table
}

// tableRow appends tbody > tr > cell to table and returns the cell.
func tableRow(table *html.Node, cell string) *html.Node {
	tbody := element("tbody")
	tr := element("tr")
	c := element(cell)
	table.AppendChild(tbody)
	tbody.AppendChild(tr)
	tr.AppendChild(c)
	return c
}

func countSiblingColumns(n *html.Node) int {
	if n.Parent == nil {
		return 1
	}
	count := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if isColumn(c) {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

// isColumn matches both unexpanded <columns> and columns already expanded
// to <th class="... columns ...">.
func isColumn(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.Data == "columns" {
		return true
	}
	return n.Data == "th" && hasClass(getAttr(n, "class"), "columns")
}

func prevColumn(n *html.Node) *html.Node {
	for c := n.PrevSibling; c != nil; c = c.PrevSibling {
		if isColumn(c) {
			return c
		}
	}
	return nil
}

func nextColumn(n *html.Node) *html.Node {
	for c := n.NextSibling; c != nil; c = c.NextSibling {
		if isColumn(c) {
			return c
		}
	}
	return nil
}

func element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func moveChildren(from, to *html.Node) {
	for c := from.FirstChild; c != nil; {
		next := c.NextSibling
		from.RemoveChild(c)
		to.AppendChild(c)
		c = next
	}
}

func hoistChildren(n *html.Node) {
	if n.Parent == nil {
		return
	}
	for c := n.LastChild; c != nil; {
		prev := c.PrevSibling
		n.RemoveChild(c)
		n.Parent.InsertBefore(c, n.NextSibling)
		c = prev
	}
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
	n.Attr = append(n.Attr, attr(key, val))
}

func hasClass(classList, class string) bool {
	for _, c := range strings.Fields(classList) {
		if c == class {
			return true
		}
	}
	return false
}

func classes(parts ...string) string {
	var out []string
	for _, p := range parts {
		out = append(out, strings.Fields(p)...)
	}
	return strings.Join(out, " ")
}
