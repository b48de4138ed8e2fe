package inliner

import (
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// declaration is one candidate value for a property on one element.
type declaration struct {
	property    string
	value       string
	important   bool
	inline      bool
	specificity cascadia.Specificity
	order       int
}

// beats reports whether d wins the cascade against other.
func (d declaration) beats(other declaration) bool {
	if d.important != other.important {
		return d.important
	}
	if d.inline != other.inline {
		return d.inline
	}
	if d.specificity.Less(other.specificity) {
		return false
	}
	if other.specificity.Less(d.specificity) {
		return true
	}
	return d.order > other.order
}

// cascade holds the winning declaration per property for one element.
type cascade struct {
	winners map[string]declaration
}

func newCascade() *cascade {
	return &cascade{winners: map[string]declaration{}}
}

func (c *cascade) add(d declaration) {
	if d.property == "" || d.value == "" {
		return
	}
	key := strings.ToLower(d.property)
	if cur, ok := c.winners[key]; ok && !d.beats(cur) {
		return
	}
	c.winners[key] = d
}

// addInline seeds the cascade with an element's existing style attribute.
// Inline declarations come after every rule in source order.
func (c *cascade) addInline(style string, base int) {
	style = strings.TrimSpace(style)
	if style == "" {
		return
	}
	// The parser drops the value of an unterminated last declaration.
	if !strings.HasSuffix(style, ";") {
		style += ";"
	}
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return
	}
	for i, d := range decls {
		c.add(fromCSS(d, true, cascadia.Specificity{}, base+i))
	}
}

// value returns the winning value for property, if any.
func (c *cascade) value(property string) (string, bool) {
	d, ok := c.winners[property]
	if !ok {
		return "", false
	}
	return d.value, true
}

// String renders the winners as a style attribute, ordered by the position
// of the winning declaration.
func (c *cascade) String() string {
	decls := make([]declaration, 0, len(c.winners))
	for _, d := range c.winners {
		decls = append(decls, d)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].order < decls[j].order })

	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		s := d.property + ": " + d.value
		if d.important {
			s += " !important"
		}
		parts = append(parts, s+";")
	}
	return strings.Join(parts, " ")
}

func fromCSS(d *css.Declaration, inline bool, spec cascadia.Specificity, order int) declaration {
	return declaration{
		property:    strings.TrimSpace(d.Property),
		value:       strings.TrimSpace(d.Value),
		important:   d.Important,
		inline:      inline,
		specificity: spec,
		order:       order,
	}
}
