// Package templates implements the page compiler: Handlebars pages with YAML
// front matter are wrapped in a layout, rendered with partials, helpers and
// data files, optionally expanded by Inky, and written under the output root
// at the same relative path.
package templates

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/fileset"
	"github.com/mailwright/mailwright/internal/inky"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
)

const (
	bodyPartial = "body"
	noLayout    = "none"
)

// Compiler renders every page under the pages directory.
type Compiler struct {
	paths         config.PathsConfig
	defaultLayout string
	inky          *inky.Transformer
	logger        logging.Logger
}

// New creates a Compiler from cfg.
func New(cfg *config.Config, logger logging.Logger) *Compiler {
	c := &Compiler{
		paths:         cfg.Paths,
		defaultLayout: cfg.Templates.DefaultLayout,
		logger:        logger.WithComponent("templates"),
	}
	if cfg.Templates.Inky {
		c.inky = inky.New()
	}
	return c
}

func (c *Compiler) Name() pipeline.StageName { return pipeline.StageTemplates }

// Pages returns the page set: every .html file under the pages directory
// except the archive and any helper or data directory nested inside it.
func (c *Compiler) Pages() fileset.Set {
	exclude := c.paths.ArchiveExclude()
	for _, dir := range []string{c.paths.Helpers, c.paths.Data} {
		if dir == "" {
			continue
		}
		if rel, err := filepath.Rel(c.paths.Pages, dir); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
			exclude = append(exclude, filepath.ToSlash(rel)+"/**")
		}
	}
	return fileset.New(c.paths.Pages, []string{"**/*.html"}, exclude...)
}

// Run reloads the library and renders all pages. A failing page does not
// stop the others; no output is written for it and its error is included
// in the joined result.
func (c *Compiler) Run(ctx context.Context) error {
	lib, err := LoadLibrary(c.paths)
	if err != nil {
		return err
	}

	pages := c.Pages()
	files, err := pages.Files()
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRead, "listing pages", err).WithPath(c.paths.Pages)
	}

	errs := errors.NewCollector()
	rendered := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		abs := pages.Abs(rel)
		out, err := c.RenderPage(lib, rel)
		if err != nil {
			c.logger.Error(ctx, err, "Page failed", "page", abs)
			errs.Add(withPath(err, abs))
			continue
		}

		dest := filepath.Join(c.paths.Output, filepath.FromSlash(rel))
		if err := fileset.WriteFile(dest, []byte(out)); err != nil {
			errs.Add(errors.NewFilesystemError(errors.ErrCodeWrite, "writing page", err).WithPath(dest))
			continue
		}
		rendered++
	}

	c.logger.Info(ctx, "Rendered pages", "rendered", rendered, "failed", errs.Len())
	return errs.Err()
}

// RenderPage renders the page at rel (relative to the pages directory).
func (c *Compiler) RenderPage(lib *Library, rel string) (string, error) {
	src, err := os.ReadFile(filepath.Join(c.paths.Pages, filepath.FromSlash(rel)))
	if err != nil {
		return "", errors.NewFilesystemError(errors.ErrCodeRead, "reading page", err)
	}
	return c.render(lib, rel, src)
}

func (c *Compiler) render(lib *Library, rel string, src []byte) (string, error) {
	meta, body, err := splitFrontMatter(src)
	if err != nil {
		return "", errors.NewTemplateError(errors.ErrCodeFrontMatter, "invalid front matter", err)
	}

	page := stripExt(path.Base(rel))
	layout := c.defaultLayout
	if name, ok := meta["layout"].(string); ok && name != "" {
		layout = name
	}

	data := pageContext(lib.Data, meta, page, layout, rel)

	var helperErr error
	helpers := builtinHelpers(page)
	for name, hsrc := range lib.Helpers {
		helpers[name] = fileHelper(name, hsrc, page, func(err error) {
			if helperErr == nil {
				helperErr = err
			}
		})
	}

	pageTpl, err := raymond.Parse(string(body))
	if err != nil {
		return "", errors.NewTemplateError(errors.ErrCodeTemplateParse, "parsing page", err)
	}
	pageTpl.RegisterHelpers(helpers)
	for name, p := range lib.Partials {
		pageTpl.RegisterPartialTemplate(name, p)
	}

	root := pageTpl
	if layout != noLayout {
		lsrc, ok := lib.Layouts[layout]
		if !ok {
			return "", errors.NewTemplateError(errors.ErrCodeLayoutNotFound,
				fmt.Sprintf("layout %q not found", layout), nil)
		}
		layoutTpl, err := raymond.Parse(lsrc)
		if err != nil {
			return "", errors.NewTemplateError(errors.ErrCodeTemplateParse, "parsing layout "+layout, err)
		}
		layoutTpl.RegisterHelpers(helpers)
		for name, p := range lib.Partials {
			layoutTpl.RegisterPartialTemplate(name, p)
		}
		layoutTpl.RegisterPartialTemplate(bodyPartial, pageTpl)
		root = layoutTpl
	}

	out, err := root.Exec(data)
	if err != nil {
		return "", errors.NewTemplateError(errors.ErrCodeTemplateRender, "rendering page", err)
	}
	if helperErr != nil {
		return "", errors.NewTemplateError(errors.ErrCodeTemplateRender, "rendering page", helperErr)
	}

	if c.inky != nil {
		out, err = c.inky.Transform(out)
		if err != nil {
			return "", errors.NewTemplateError(errors.ErrCodeTemplateRender, "expanding inky markup", err)
		}
	}
	return out, nil
}

// pageContext merges global data, front matter and the page variables.
// Front matter overrides data files; the page variables override both.
func pageContext(data map[string]interface{}, meta map[string]interface{}, page, layout, rel string) map[string]interface{} {
	ctx := make(map[string]interface{}, len(data)+len(meta)+3)
	for k, v := range data {
		ctx[k] = v
	}
	for k, v := range meta {
		ctx[k] = v
	}
	ctx["page"] = page
	ctx["layout"] = layout
	ctx["root"] = relativeRoot(rel)
	return ctx
}

// relativeRoot is the prefix leading from a page's output directory back to
// the output root: "" for top-level pages, "../" one level down.
func relativeRoot(rel string) string {
	depth := strings.Count(path.Clean(rel), "/")
	return strings.Repeat("../", depth)
}

func withPath(err error, p string) error {
	if pe, ok := err.(*errors.PipelineError); ok {
		if pe.Path == "" {
			pe.Path = p
		}
		return pe
	}
	return err
}
