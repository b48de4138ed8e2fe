// Package inliner moves stylesheet rules into style attributes so the HTML
// renders in clients that ignore <style> and <link>. Rules that cannot be
// inlined, such as @media queries and :hover selectors, are kept in a single
// <style> block in <head>.
package inliner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/fileset"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minhtml "github.com/tdewolff/minify/v2/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dynamicPseudos only apply on interaction, so they stay in the stylesheet.
var dynamicPseudos = []string{":hover", ":active", ":focus", ":visited", ":link", ":target", ":checked"}

// Inliner is the inline stage. It rewrites every HTML file under the output
// root in place.
type Inliner struct {
	root     string
	opts     config.InlineConfig
	minifier *minify.M
	logger   logging.Logger
}

// New creates an Inliner for cfg's output root.
func New(cfg *config.Config, logger logging.Logger) *Inliner {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	m.Add("text/html", &minhtml.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})

	return &Inliner{
		root:     cfg.Paths.Output,
		opts:     cfg.Inline,
		minifier: m,
		logger:   logger.WithComponent("inline"),
	}
}

func (in *Inliner) Name() pipeline.StageName { return pipeline.StageInline }

// Run inlines every HTML file under the output root. Files that fail are
// left as they were; their errors are joined.
func (in *Inliner) Run(ctx context.Context) error {
	set := fileset.New(in.root, []string{"**/*.html"})
	files, err := set.Files()
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRead, "listing output pages", err).WithPath(in.root)
	}

	errs := errors.NewCollector()
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := set.Abs(rel)
		if err := in.InlineFile(path); err != nil {
			in.logger.Error(ctx, err, "Inlining failed", "page", path)
			errs.Add(err)
		}
	}

	in.logger.Info(ctx, "Inlined pages", "pages", len(files), "failed", errs.Len())
	return errs.Err()
}

// InlineFile rewrites the HTML file at path.
func (in *Inliner) InlineFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRead, "reading page", err).WithPath(path)
	}

	out, err := in.Inline(string(src), filepath.Dir(path))
	if err != nil {
		if pe, ok := err.(*errors.PipelineError); ok && pe.Path == "" {
			pe.Path = path
		}
		return err
	}

	if err := fileset.WriteFile(path, []byte(out)); err != nil {
		return errors.NewFilesystemError(errors.ErrCodeWrite, "writing page", err).WithPath(path)
	}
	return nil
}

// source is one stylesheet found in the document.
type source struct {
	node   *html.Node
	css    string
	remove bool
}

// Inline returns doc with its stylesheets applied. dir is the directory
// the document lives in, used to resolve relative <link> hrefs.
func (in *Inliner) Inline(doc string, dir string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", errors.NewInlineError(errors.ErrCodeInlineParse, "parsing html", err)
	}

	sources, err := in.collect(root, dir)
	if err != nil {
		return "", err
	}

	cascades := map[*html.Node]*cascade{}
	var retained []string
	order := 0

	for _, s := range sources {
		sheet, err := parser.Parse(stripCommentWrapper(s.css))
		if err != nil {
			return "", errors.NewInlineError(errors.ErrCodeStylesheet, "parsing stylesheet", err)
		}
		for _, rule := range sheet.Rules {
			if rule.Kind == css.AtRule {
				if in.opts.PreserveMediaQueries && keepAtRule(rule) {
					retained = append(retained, rule.String())
				}
				continue
			}

			var keep []string
			for _, selector := range rule.Selectors {
				sel, ok := compile(selector)
				if !ok {
					keep = append(keep, selector)
					continue
				}
				spec := sel.Specificity()
				for _, n := range cascadia.QueryAll(root, sel) {
					if inHead(n) {
						continue
					}
					c := cascades[n]
					if c == nil {
						c = newCascade()
						cascades[n] = c
					}
					for i, d := range rule.Declarations {
						c.add(fromCSS(d, false, spec, order+i))
					}
				}
			}
			order += len(rule.Declarations)

			if len(keep) > 0 {
				kept := &css.Rule{
					Kind:         css.QualifiedRule,
					Prelude:      strings.Join(keep, ", "),
					Selectors:    keep,
					Declarations: rule.Declarations,
				}
				retained = append(retained, kept.String())
			}
		}
	}

	for n, c := range cascades {
		if style := getAttr(n, "style"); style != "" {
			c.addInline(style, order)
		}
		if style := c.String(); style != "" {
			setAttr(n, "style", style)
		}
		if in.opts.ApplyWidthAttributes {
			applyWidth(n, c)
		}
		if in.opts.ApplyTableAttributes {
			applyTableAttributes(n, c)
		}
	}

	for _, s := range sources {
		if s.remove && s.node.Parent != nil {
			s.node.Parent.RemoveChild(s.node)
		}
	}

	if len(retained) > 0 {
		appendStyle(root, strings.Join(retained, "\n"))
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", errors.NewInlineError(errors.ErrCodeInlineParse, "rendering html", err)
	}

	if !in.opts.Minify {
		return buf.String(), nil
	}
	out, err := in.minifier.String("text/html", buf.String())
	if err != nil {
		return "", errors.NewInlineError(errors.ErrCodeMinify, "minifying html", err)
	}
	return out, nil
}

// collect gathers the stylesheets to apply, in document order.
func (in *Inliner) collect(root *html.Node, dir string) ([]source, error) {
	var sources []source
	var walkErr error

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Style:
				if in.opts.ApplyStyleTags && !hasAttr(n, "data-embed") {
					sources = append(sources, source{node: n, css: textContent(n), remove: in.opts.RemoveStyleTags})
				}
			case atom.Link:
				if in.opts.ApplyLinkTags && isStylesheet(n) {
					href := getAttr(n, "href")
					if isRemote(href) {
						break
					}
					data, err := in.readLinked(href, dir)
					if err != nil {
						walkErr = err
						return
					}
					sources = append(sources, source{node: n, css: data, remove: in.opts.RemoveLinkTags})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return sources, walkErr
}

// readLinked loads a local stylesheet, trying the page's directory first
// and then the output root.
func (in *Inliner) readLinked(href, dir string) (string, error) {
	clean := href
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}

	candidates := []string{filepath.Join(in.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))}
	if !strings.HasPrefix(clean, "/") {
		candidates = append([]string{filepath.Join(dir, filepath.FromSlash(clean))}, candidates...)
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data), nil
		}
	}
	return "", errors.NewInlineError(errors.ErrCodeStylesheet,
		fmt.Sprintf("linked stylesheet %q not found", href), nil)
}

// compile parses selector and reports whether it can be inlined.
func compile(selector string) (cascadia.Sel, bool) {
	lower := strings.ToLower(selector)
	for _, p := range dynamicPseudos {
		if strings.Contains(lower, p) {
			return nil, false
		}
	}
	sel, err := cascadia.Parse(selector)
	if err != nil || sel.PseudoElement() != "" {
		return nil, false
	}
	return sel, true
}

// keepAtRule reports whether an at-rule belongs in the retained block.
// @charset is only valid at the top of a file.
func keepAtRule(rule *css.Rule) bool {
	return !strings.EqualFold(rule.Name, "@charset")
}

func stripCommentWrapper(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<!--")
	s = strings.TrimSuffix(s, "-->")
	return s
}

func appendStyle(root *html.Node, text string) {
	head := find(root, atom.Head)
	if head == nil {
		return
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	head.AppendChild(style)
}
