package inliner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInliner(t *testing.T, mutate func(cfg *config.Config)) (*Inliner, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	cfg.Inline.Minify = false
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, logging.Discard()), cfg
}

func page(style, body string) string {
	return "<!DOCTYPE html><html><head><style>" + style + "</style></head><body>" + body + "</body></html>"
}

func TestInlineCascade(t *testing.T) {
	tests := []struct {
		name  string
		style string
		body  string
		want  string
	}{
		{
			name:  "simple rules merge",
			style: "p { color: red; } .big { font-size: 20px; }",
			body:  `<p class="big">x</p>`,
			want:  `<p class="big" style="color: red; font-size: 20px;">`,
		},
		{
			name:  "specificity beats order",
			style: "#lead { color: blue; } p { color: red; }",
			body:  `<p id="lead">x</p>`,
			want:  `<p id="lead" style="color: blue;">`,
		},
		{
			name:  "later rule wins on equal specificity",
			style: "p { color: red; } p { color: green; }",
			body:  `<p>x</p>`,
			want:  `<p style="color: green;">`,
		},
		{
			name:  "important beats specificity",
			style: "p { color: red !important; } #lead { color: blue; }",
			body:  `<p id="lead">x</p>`,
			want:  `<p id="lead" style="color: red !important;">`,
		},
		{
			name:  "existing inline style beats rules",
			style: "p { color: red; margin: 0; }",
			body:  `<p style="color: black">x</p>`,
			want:  `<p style="margin: 0; color: black;">`,
		},
		{
			name:  "unterminated inline declarations keep their values",
			style: "p { margin: 0; }",
			body:  `<p style="padding: 0; color: black">x</p>`,
			want:  `<p style="margin: 0; padding: 0; color: black;">`,
		},
		{
			name:  "compact inline style",
			style: "td { color: red; }",
			body:  `<table><tr><td style="width:600px">x</td></tr></table>`,
			want:  `<td style="color: red; width: 600px;"`,
		},
		{
			name:  "important rule beats inline style",
			style: "p { color: red !important; }",
			body:  `<p style="color: black">x</p>`,
			want:  `<p style="color: red !important;">`,
		},
		{
			name:  "descendant selector",
			style: "td a { text-decoration: none; }",
			body:  `<table><tr><td><a href="#">x</a></td></tr></table>`,
			want:  `<a href="#" style="text-decoration: none;">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := newInliner(t, nil)
			out, err := in.Inline(page(tt.style, tt.body), "")
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
			assert.NotContains(t, out, "<style>")
		})
	}
}

func TestInlinePreservesMediaQueriesAndPseudos(t *testing.T) {
	in, _ := newInliner(t, nil)
	style := `
		.col { width: 300px; }
		a:hover { color: red; }
		p::first-line { font-weight: bold; }
		@media only screen and (max-width: 600px) {
			.col { width: 100% !important; }
		}`

	out, err := in.Inline(page(style, `<table><tr><td class="col"><a href="#">x</a></td></tr></table>`), "")
	require.NoError(t, err)

	head := out[:strings.Index(out, "</head>")]
	assert.Contains(t, head, "<style>")
	assert.Contains(t, head, "@media only screen and (max-width: 600px)")
	assert.Contains(t, head, "width: 100% !important")
	assert.Contains(t, head, "a:hover")
	assert.Contains(t, head, "p::first-line")

	assert.Contains(t, out, `<td class="col" style="width: 300px;" width="300">`)
	assert.Contains(t, out, `<a href="#">x</a>`)
	assert.Equal(t, 1, strings.Count(out, "<style>"))
}

func TestInlineDropsMediaQueriesWhenDisabled(t *testing.T) {
	in, _ := newInliner(t, func(cfg *config.Config) { cfg.Inline.PreserveMediaQueries = false })
	out, err := in.Inline(page("@media print { p { color: red; } }", "<p>x</p>"), "")
	require.NoError(t, err)
	assert.NotContains(t, out, "@media")
	assert.NotContains(t, out, "<style")
}

func TestInlineLeavesEmbeddedStylesAlone(t *testing.T) {
	in, _ := newInliner(t, nil)
	doc := `<html><head><style data-embed>p { color: red; }</style></head><body><p>x</p></body></html>`

	out, err := in.Inline(doc, "")
	require.NoError(t, err)
	assert.Contains(t, out, `<style data-embed="">p { color: red; }</style>`)
	assert.Contains(t, out, "<p>x</p>")
}

func TestInlineTableAttributes(t *testing.T) {
	in, _ := newInliner(t, func(cfg *config.Config) { cfg.Inline.ApplyTableAttributes = true })
	out, err := in.Inline(page("td { background-color: #eee; text-align: center; }", `<table><tr><td>x</td></tr></table>`), "")
	require.NoError(t, err)
	assert.Contains(t, out, `bgcolor="#eee"`)
	assert.Contains(t, out, `align="center"`)
}

func TestInlineMinifies(t *testing.T) {
	in, _ := newInliner(t, func(cfg *config.Config) { cfg.Inline.Minify = true })
	doc := page("p { color: red; }\n@media (max-width: 600px) { p { color: blue; } }", "\n  <p>\n    hello\n  </p>\n")

	out, err := in.Inline(doc, "")
	require.NoError(t, err)
	assert.Contains(t, out, `style="color:red"`)
	assert.Contains(t, out, "@media")
	assert.NotContains(t, out, "\n  ")
	assert.Contains(t, out, "hello")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRunAppliesLinkedStylesheets(t *testing.T) {
	in, cfg := newInliner(t, nil)
	root := cfg.Paths.Output

	writeFile(t, filepath.Join(root, "css", "app.css"), ".btn { color: white; }")
	writeFile(t, filepath.Join(root, "index.html"),
		`<html><head><link rel="stylesheet" href="css/app.css"></head><body><a class="btn">a</a></body></html>`)
	writeFile(t, filepath.Join(root, "news", "march.html"),
		`<html><head><link rel="stylesheet" href="../css/app.css"></head><body><a class="btn">b</a></body></html>`)
	writeFile(t, filepath.Join(root, "news", "april.html"),
		`<html><head><link rel="stylesheet" href="/css/app.css?v=2"></head><body><a class="btn">c</a></body></html>`)

	require.NoError(t, in.Run(context.Background()))

	for _, rel := range []string{"index.html", "news/march.html", "news/april.html"} {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		out := string(data)
		assert.Contains(t, out, `style="color: white;"`, rel)
		assert.NotContains(t, out, "<link", rel)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	in, cfg := newInliner(t, nil)
	path := filepath.Join(cfg.Paths.Output, "index.html")
	writeFile(t, path, page("p { color: red; } @media (max-width: 600px) { p { color: blue; } }", "<p>x</p>"))

	require.NoError(t, in.Run(context.Background()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// The retained media block is re-applied on the second pass; inlinable
	// rules are gone so the body must not change.
	require.NoError(t, in.Run(context.Background()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(second), `<p style="color: red;">`)
	assert.Equal(t, strings.Count(string(first), "@media"), strings.Count(string(second), "@media"))
}

func TestRunKeepsRemoteLinks(t *testing.T) {
	in, cfg := newInliner(t, nil)
	path := filepath.Join(cfg.Paths.Output, "index.html")
	writeFile(t, path, `<html><head><link rel="stylesheet" href="https://fonts.example.test/a.css"></head><body></body></html>`)

	require.NoError(t, in.Run(context.Background()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `href="https://fonts.example.test/a.css"`)
}

func TestRunMissingStylesheet(t *testing.T) {
	in, cfg := newInliner(t, nil)
	path := filepath.Join(cfg.Paths.Output, "index.html")
	original := `<html><head><link rel="stylesheet" href="css/missing.css"></head><body></body></html>`
	writeFile(t, path, original)

	err := in.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeInline, Code: errors.ErrCodeStylesheet})
	assert.Equal(t, path, errors.PathOf(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}
