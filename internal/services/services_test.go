package services

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/styles"
	"github.com/stretchr/testify/require"
)

// echoCompiler returns the Sass source as CSS. Sources containing "@error"
// fail.
type echoCompiler struct{}

func (echoCompiler) Compile(source string, opts styles.CompileOptions) (string, error) {
	if strings.Contains(source, "@error") {
		return "", fmt.Errorf("%s: explicit @error", opts.URL)
	}
	return source, nil
}

func (echoCompiler) Close() error { return nil }

const layout = `<!DOCTYPE html>
<html><head><link rel="stylesheet" href="css/app.css"></head>
<body>{{> body}}</body></html>
`

// newProject lays out a minimal project in a temp dir, makes it the working
// directory and returns the default configuration for it.
func newProject(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	write(t, "src/layouts/default.html", layout)
	write(t, "src/pages/index.html", `<p class="greeting">Hello {{site.name}}</p>`)
	write(t, "src/pages/data/site.yml", "name: Acme\n")
	write(t, "src/pages/archive/old.html", `<p>{{#if}}</p>`)
	write(t, "src/assets/scss/app.scss", "p { color: red; }\n")

	img := imaging.New(8, 8, color.NRGBA{R: 200, A: 255})
	require.NoError(t, os.MkdirAll(filepath.Join("src", "assets", "img"), 0755))
	require.NoError(t, imaging.Save(img, filepath.Join("src", "assets", "img", "logo.png")))

	cfg := config.Default()
	cfg.Inline.Minify = false
	return cfg
}

func write(t *testing.T, name, content string) {
	t.Helper()
	p := filepath.FromSlash(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.FromSlash(name))
	require.NoError(t, err)
	return string(data)
}
