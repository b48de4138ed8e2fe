package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// execute runs the root command with args in a fresh temp working
// directory and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile = ""
	versionFormat = "text"
	versionShort = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	p := filepath.FromSlash(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestVersionUnknownFormat(t *testing.T) {
	_, err := execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestConfigPrintsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "config")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "docs", cfg.Paths.Output)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Templates.Inky)
}

func TestConfigFileEnvAndFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, ".mailwright.yml", "paths:\n  output: dist\nserver:\n  port: 4000\n")
	t.Setenv("MAILWRIGHT_IMAGES_JPEG_QUALITY", "65")

	out, err := execute(t, "config", "--log-level", "debug")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "dist", cfg.Paths.Output)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 65, cfg.Images.JPEGQuality)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfigFromEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, "conf/custom.yml", "paths:\n  output: public\n")
	t.Setenv("MAILWRIGHT_CONFIG_FILE", filepath.Join("conf", "custom.yml"))

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "output: public")
}

func TestConfigMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "config", "--config", "nope.yml")
	assert.Error(t, err)
}

func TestConfigInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, ".mailwright.yml", "images:\n  jpeg_quality: 500\n")

	_, err := execute(t, "config")
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, "docs/index.html", "old")

	out, err := execute(t, "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed docs")
	assert.NoDirExists(t, "docs")
}

func TestBuildWithoutSass(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, "src/layouts/default.html", "<html><body>{{> body}}</body></html>")
	writeFile(t, "src/pages/index.html", "<p>Hi</p>")
	writeFile(t, "src/assets/scss/app.scss", "p { color: red; }")
	t.Setenv("MAILWRIGHT_STYLES_DART_SASS_BINARY", filepath.Join(t.TempDir(), "no-such-sass"))

	_, err := execute(t, "build")
	require.Error(t, err)
	assert.True(t, errors.IsStyleError(err))
	assert.FileExists(t, filepath.Join("docs", "index.html"))
}
