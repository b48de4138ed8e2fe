// Package config provides configuration management for mailwright using
// Viper for loading from files, environment variables and command-line flags.
//
// The resulting Config is read-only after Load returns: every stage receives
// the same *Config and none of them mutate it. It describes the source and
// output layout, per-stage options, the watch groups and the dev server.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mailwright/mailwright/internal/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Styles    StylesConfig    `mapstructure:"styles" yaml:"styles"`
	Images    ImagesConfig    `mapstructure:"images" yaml:"images"`
	Inline    InlineConfig    `mapstructure:"inline" yaml:"inline"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// PathsConfig is the source and output layout.
type PathsConfig struct {
	Source       string `mapstructure:"source" yaml:"source"`
	Output       string `mapstructure:"output" yaml:"output"`
	Pages        string `mapstructure:"pages" yaml:"pages"`
	Layouts      string `mapstructure:"layouts" yaml:"layouts"`
	Partials     string `mapstructure:"partials" yaml:"partials"`
	Helpers      string `mapstructure:"helpers" yaml:"helpers"`
	Data         string `mapstructure:"data" yaml:"data"`
	Archive      string `mapstructure:"archive" yaml:"archive"`
	StylesEntry  string `mapstructure:"styles_entry" yaml:"styles_entry"`
	StylesOutput string `mapstructure:"styles_output" yaml:"styles_output"`
	Images       string `mapstructure:"images" yaml:"images"`
	ImagesOutput string `mapstructure:"images_output" yaml:"images_output"`
}

// StylesOutputDir is where the compiled CSS is written.
func (p PathsConfig) StylesOutputDir() string {
	return filepath.Join(p.Output, p.StylesOutput)
}

// ImagesOutputDir is where optimized images are written.
func (p PathsConfig) ImagesOutputDir() string {
	return filepath.Join(p.Output, p.ImagesOutput)
}

// ArchiveExclude is the glob, relative to a source directory, that removes
// the archive subtree from processing.
func (p PathsConfig) ArchiveExclude() []string {
	if p.Archive == "" {
		return nil
	}
	return []string{filepath.ToSlash(p.Archive) + "/**"}
}

type TemplatesConfig struct {
	DefaultLayout string `mapstructure:"default_layout" yaml:"default_layout"`
	Inky          bool   `mapstructure:"inky" yaml:"inky"`
}

type StylesConfig struct {
	IncludePaths   []string `mapstructure:"include_paths" yaml:"include_paths"`
	OutputStyle    string   `mapstructure:"output_style" yaml:"output_style"`
	DartSassBinary string   `mapstructure:"dart_sass_binary" yaml:"dart_sass_binary"`
}

type ImagesConfig struct {
	JPEGQuality          int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	PNGOptimizationLevel int `mapstructure:"png_optimization_level" yaml:"png_optimization_level"`
}

type InlineConfig struct {
	ApplyStyleTags       bool `mapstructure:"apply_style_tags" yaml:"apply_style_tags"`
	RemoveStyleTags      bool `mapstructure:"remove_style_tags" yaml:"remove_style_tags"`
	ApplyLinkTags        bool `mapstructure:"apply_link_tags" yaml:"apply_link_tags"`
	RemoveLinkTags       bool `mapstructure:"remove_link_tags" yaml:"remove_link_tags"`
	PreserveMediaQueries bool `mapstructure:"preserve_media_queries" yaml:"preserve_media_queries"`
	ApplyWidthAttributes bool `mapstructure:"apply_width_attributes" yaml:"apply_width_attributes"`
	ApplyTableAttributes bool `mapstructure:"apply_table_attributes" yaml:"apply_table_attributes"`
	Minify               bool `mapstructure:"minify" yaml:"minify"`
}

// WatchConfig maps each watch group to its glob patterns.
type WatchConfig struct {
	Templates []string      `mapstructure:"templates" yaml:"templates"`
	Styles    []string      `mapstructure:"styles" yaml:"styles"`
	Images    []string      `mapstructure:"images" yaml:"images"`
	Debounce  time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default on v so that files, env vars and
// flags only need to override what differs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.source", "src")
	v.SetDefault("paths.output", "docs")
	v.SetDefault("paths.pages", "src/pages")
	v.SetDefault("paths.layouts", "src/layouts")
	v.SetDefault("paths.partials", "src/partials")
	v.SetDefault("paths.helpers", "src/pages/helpers")
	v.SetDefault("paths.data", "src/pages/data")
	v.SetDefault("paths.archive", "archive")
	v.SetDefault("paths.styles_entry", "src/assets/scss/app.scss")
	v.SetDefault("paths.styles_output", "css")
	v.SetDefault("paths.images", "src/assets/img")
	v.SetDefault("paths.images_output", "assets/img")

	v.SetDefault("templates.default_layout", "default")
	v.SetDefault("templates.inky", true)

	v.SetDefault("styles.include_paths", []string{"node_modules/foundation-emails/scss"})
	v.SetDefault("styles.output_style", "expanded")
	v.SetDefault("styles.dart_sass_binary", "")

	v.SetDefault("images.jpeg_quality", 80)
	v.SetDefault("images.png_optimization_level", 5)

	v.SetDefault("inline.apply_style_tags", true)
	v.SetDefault("inline.remove_style_tags", true)
	v.SetDefault("inline.apply_link_tags", true)
	v.SetDefault("inline.remove_link_tags", true)
	v.SetDefault("inline.preserve_media_queries", true)
	v.SetDefault("inline.apply_width_attributes", true)
	v.SetDefault("inline.apply_table_attributes", false)
	v.SetDefault("inline.minify", true)

	v.SetDefault("watch.templates", []string{
		"src/{pages,layouts,partials}/**/*.html",
		"src/pages/{data,helpers}/**/*",
	})
	v.SetDefault("watch.styles", []string{"src/assets/scss/**/*.scss"})
	v.SetDefault("watch.images", []string{"src/assets/img/**/*"})
	v.SetDefault("watch.debounce", 100*time.Millisecond)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.open", false)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration used when no file, env var or flag
// overrides anything.
func Default() *Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		panic(fmt.Sprintf("config: defaults are invalid: %v", err))
	}
	return cfg
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applying defaults and validation.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration", err)
	}

	return &cfg, nil
}
