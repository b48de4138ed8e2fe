package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type project struct {
	t   *testing.T
	dir string
	cfg *config.Config
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	src := filepath.Join(dir, "src")
	cfg.Paths.Source = src
	cfg.Paths.Output = filepath.Join(dir, "docs")
	cfg.Paths.Pages = filepath.Join(src, "pages")
	cfg.Paths.Layouts = filepath.Join(src, "layouts")
	cfg.Paths.Partials = filepath.Join(src, "partials")
	cfg.Paths.Helpers = filepath.Join(src, "pages", "helpers")
	cfg.Paths.Data = filepath.Join(src, "pages", "data")
	cfg.Templates.Inky = false

	return &project{t: t, dir: dir, cfg: cfg}
}

func (p *project) write(rel, content string) {
	p.t.Helper()
	path := filepath.Join(p.dir, filepath.FromSlash(rel))
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(p.t, os.WriteFile(path, []byte(content), 0644))
}

func (p *project) output(rel string) string {
	p.t.Helper()
	data, err := os.ReadFile(filepath.Join(p.cfg.Paths.Output, filepath.FromSlash(rel)))
	require.NoError(p.t, err)
	return string(data)
}

func (p *project) run() error {
	return New(p.cfg, logging.Discard()).Run(context.Background())
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMeta map[string]interface{}
		wantBody string
		wantErr  bool
	}{
		{
			name:     "no front matter",
			input:    "<p>hi</p>",
			wantBody: "<p>hi</p>",
		},
		{
			name:     "front matter",
			input:    "---\nlayout: plain\ntitle: Hello\n---\n<p>hi</p>",
			wantMeta: map[string]interface{}{"layout": "plain", "title": "Hello"},
			wantBody: "<p>hi</p>",
		},
		{
			name:     "crlf line endings",
			input:    "---\r\ntitle: Hi\r\n---\r\nbody",
			wantMeta: map[string]interface{}{"title": "Hi"},
			wantBody: "body",
		},
		{
			name:     "empty front matter",
			input:    "---\n---\nbody",
			wantMeta: map[string]interface{}{},
			wantBody: "body",
		},
		{
			name:    "unterminated",
			input:   "---\ntitle: Hi\nbody",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			input:   "---\ntitle: [unclosed\n---\nbody",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, err := splitFrontMatter([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeta, meta)
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestRunRendersLayoutPartialsAndData(t *testing.T) {
	p := newProject(t)
	p.write("src/layouts/default.html", `<html><body>{{> body}}</body></html>`)
	p.write("src/partials/header.html", `<h1>{{title}}</h1>`)
	p.write("src/pages/data/company.yml", "name: Acme\n")
	p.write("src/pages/index.html", "---\ntitle: Hello\n---\n{{> header}}<p>{{company.name}}</p>")

	require.NoError(t, p.run())

	assert.Equal(t, `<html><body><h1>Hello</h1><p>Acme</p></body></html>`, p.output("index.html"))
}

func TestRunNestedPageVariables(t *testing.T) {
	p := newProject(t)
	p.write("src/pages/news/march.html", "---\nlayout: none\n---\n{{root}}css/app.css|{{page}}|{{layout}}")

	require.NoError(t, p.run())

	assert.Equal(t, "../css/app.css|march|none", p.output("news/march.html"))
}

func TestRunNamedLayout(t *testing.T) {
	p := newProject(t)
	p.write("src/layouts/default.html", `default:{{> body}}`)
	p.write("src/layouts/email/plain.html", `plain:{{> body}}`)
	p.write("src/pages/a.html", "---\nlayout: email/plain\n---\nA")
	p.write("src/pages/b.html", "B")

	require.NoError(t, p.run())

	assert.Equal(t, "plain:A", p.output("a.html"))
	assert.Equal(t, "default:B", p.output("b.html"))
}

func TestRunSkipsArchiveAndHelperDirs(t *testing.T) {
	p := newProject(t)
	p.write("src/layouts/default.html", `{{> body}}`)
	p.write("src/pages/index.html", "index")
	p.write("src/pages/archive/old.html", "old")
	p.write("src/pages/helpers/stray.html", "stray")

	require.NoError(t, p.run())

	assert.FileExists(t, filepath.Join(p.cfg.Paths.Output, "index.html"))
	assert.NoFileExists(t, filepath.Join(p.cfg.Paths.Output, "archive", "old.html"))
	assert.NoFileExists(t, filepath.Join(p.cfg.Paths.Output, "helpers", "stray.html"))
}

func TestRunReportsFailingPagesAndContinues(t *testing.T) {
	p := newProject(t)
	p.write("src/layouts/default.html", `{{> body}}`)
	p.write("src/pages/good.html", "good")
	p.write("src/pages/missing.html", "---\nlayout: nope\n---\nbad")
	p.write("src/pages/broken.html", "{{#if}}")

	err := p.run()
	require.Error(t, err)
	assert.True(t, errors.IsTemplateError(err))

	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeTemplate, Code: errors.ErrCodeLayoutNotFound})
	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeTemplate, Code: errors.ErrCodeTemplateParse})
	assert.Contains(t, err.Error(), filepath.Join(p.cfg.Paths.Pages, "missing.html"))

	assert.Equal(t, "good", p.output("good.html"))
	assert.NoFileExists(t, filepath.Join(p.cfg.Paths.Output, "missing.html"))
	assert.NoFileExists(t, filepath.Join(p.cfg.Paths.Output, "broken.html"))
}

func TestRunInvalidFrontMatter(t *testing.T) {
	p := newProject(t)
	p.write("src/pages/index.html", "---\nlayout: [\n---\nx")

	err := p.run()
	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeTemplate, Code: errors.ErrCodeFrontMatter})
	assert.Equal(t, filepath.Join(p.cfg.Paths.Pages, "index.html"), errors.PathOf(err))
}

func TestRunPicksUpLibraryChanges(t *testing.T) {
	p := newProject(t)
	p.write("src/layouts/default.html", `{{> body}}`)
	p.write("src/partials/footer.html", "v1")
	p.write("src/pages/index.html", "{{> footer}}")

	require.NoError(t, p.run())
	assert.Equal(t, "v1", p.output("index.html"))

	p.write("src/partials/footer.html", "v2")
	require.NoError(t, p.run())
	assert.Equal(t, "v2", p.output("index.html"))
}

func TestBuiltinHelpers(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"ifpage match", `{{#ifpage "index,about"}}yes{{else}}no{{/ifpage}}`, "yes"},
		{"ifpage miss", `{{#ifpage "about"}}yes{{else}}no{{/ifpage}}`, "no"},
		{"unlesspage", `{{#unlesspage "about"}}shown{{/unlesspage}}`, "shown"},
		{"ifequal", `{{#ifequal page "index"}}eq{{else}}ne{{/ifequal}}`, "eq"},
		{"repeat", `{{#repeat 3}}x{{/repeat}}`, "xxx"},
		{"upper", `{{upper "mail"}}`, "MAIL"},
		{"lower", `{{lower "MAIL"}}`, "mail"},
		{"titlecase", `{{titlecase "hello world"}}`, "Hello World"},
		{"markdown", `{{#markdown}}# Hi{{/markdown}}`, "<h1>Hi</h1>\n"},
		{"code", `{{#code "html"}}<b>x</b>{{/code}}`, `<pre><code class="language-html">&lt;b&gt;x&lt;/b&gt;</code></pre>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProject(t)
			p.write("src/pages/index.html", "---\nlayout: none\n---\n"+tt.page)

			require.NoError(t, p.run())
			assert.Equal(t, tt.want, p.output("index.html"))
		})
	}
}

func TestBuiltinHelperMisuseFailsRender(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		wantMsg string
	}{
		{"upper without argument", `{{upper}}`, "helper upper: missing argument"},
		{"lower without argument", `{{lower}}`, "helper lower: missing argument"},
		{"titlecase without argument", `{{titlecase}}`, "helper titlecase: missing argument"},
		{"repeat with text count", `{{#repeat "many"}}x{{/repeat}}`, `helper repeat: invalid count "many"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProject(t)
			p.write("src/pages/index.html", "---\nlayout: none\n---\n"+tt.page)

			err := p.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeTemplate, Code: errors.ErrCodeTemplateRender})
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.NoFileExists(t, filepath.Join(p.cfg.Paths.Output, "index.html"))
		})
	}
}

func TestFileHelper(t *testing.T) {
	p := newProject(t)
	p.write("src/pages/helpers/callout.hbs", `<div class="{{kind}}">{{{content}}}</div>`)
	p.write("src/pages/index.html", "---\nlayout: none\n---\n{{#callout kind=\"note\"}}<b>Read</b>{{/callout}}")

	require.NoError(t, p.run())
	assert.Equal(t, `<div class="note"><b>Read</b></div>`, p.output("index.html"))
}

func TestLoadLibraryRejectsShadowedHelper(t *testing.T) {
	p := newProject(t)
	p.write("src/pages/helpers/upper.hbs", `x`)

	_, err := LoadLibrary(p.cfg.Paths)
	require.Error(t, err)
	assert.True(t, errors.IsTemplateError(err))
	assert.Equal(t, filepath.Join(p.cfg.Paths.Helpers, "upper.hbs"), errors.PathOf(err))
}

func TestLoadLibraryReportsBadDataFile(t *testing.T) {
	p := newProject(t)
	p.write("src/pages/data/site.json", `{"name": "Acme", "tags": ["a", "b"]}`)
	p.write("src/pages/data/broken.yml", "key: [")

	_, err := LoadLibrary(p.cfg.Paths)
	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeTemplate, Code: errors.ErrCodeDataFile})

	p.write("src/pages/data/broken.yml", "key: ok\n")
	lib, err := LoadLibrary(p.cfg.Paths)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "Acme", "tags": []interface{}{"a", "b"}}, lib.Data["site"])
	assert.Equal(t, map[string]interface{}{"key": "ok"}, lib.Data["broken"])
}

func TestRunWithInky(t *testing.T) {
	p := newProject(t)
	p.cfg.Templates.Inky = true
	p.write("src/pages/index.html", "---\nlayout: none\n---\n<container>{{page}}</container>")

	require.NoError(t, p.run())

	out := p.output("index.html")
	assert.Contains(t, out, `<table align="center" class="container">`)
	assert.Contains(t, out, "<td>index</td>")
}

func TestRelativeRoot(t *testing.T) {
	assert.Equal(t, "", relativeRoot("index.html"))
	assert.Equal(t, "../", relativeRoot("a/index.html"))
	assert.Equal(t, "../../", relativeRoot("a/b/index.html"))
}
