package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mailwright/mailwright/internal/logging"
)

// validateConfig validates configuration values for safety and correctness
func validateConfig(config *Config) error {
	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateStylesConfig(&config.Styles); err != nil {
		return fmt.Errorf("styles config: %w", err)
	}

	if err := validateImagesConfig(&config.Images); err != nil {
		return fmt.Errorf("images config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("log config: format %q must be text or json", config.Log.Format)
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	required := map[string]string{
		"source":        config.Source,
		"output":        config.Output,
		"pages":         config.Pages,
		"layouts":       config.Layouts,
		"partials":      config.Partials,
		"styles_entry":  config.StylesEntry,
		"images":        config.Images,
		"styles_output": config.StylesOutput,
		"images_output": config.ImagesOutput,
	}
	for name, path := range required {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for name, path := range map[string]string{"helpers": config.Helpers, "data": config.Data} {
		if path == "" {
			continue
		}
		if err := validatePath(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for name, path := range map[string]string{
		"styles_output": config.StylesOutput,
		"images_output": config.ImagesOutput,
		"archive":       config.Archive,
	} {
		if path != "" && filepath.IsAbs(path) {
			return fmt.Errorf("%s should be a relative path: %s", name, path)
		}
	}

	// Clean removes the output root, so it must never cover the sources.
	if err := validateOutputRoot(config.Output, config.Source); err != nil {
		return err
	}

	return nil
}

// validateOutputRoot rejects output roots that would make clean delete the
// working directory or the source tree.
func validateOutputRoot(output, source string) error {
	out, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("resolving output: %w", err)
	}
	src, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("resolving source: %w", err)
	}

	if out == filepath.Dir(out) {
		return fmt.Errorf("output %q is a filesystem root", output)
	}
	if filepath.Clean(output) == "." {
		return fmt.Errorf("output must not be the working directory")
	}
	if IsWithin(out, src) {
		return fmt.Errorf("output %q contains source %q", output, source)
	}

	return nil
}

// IsWithin reports whether path equals root or lies beneath it. Both must be
// absolute and clean.
func IsWithin(root, path string) bool {
	if root == path {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func validateStylesConfig(config *StylesConfig) error {
	switch config.OutputStyle {
	case "expanded", "compressed":
	default:
		return fmt.Errorf("output_style %q must be expanded or compressed", config.OutputStyle)
	}
	for _, p := range config.IncludePaths {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("include path: %w", err)
		}
	}
	return nil
}

func validateImagesConfig(config *ImagesConfig) error {
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality %d is not in range 1-100", config.JPEGQuality)
	}
	if config.PNGOptimizationLevel < 0 || config.PNGOptimizationLevel > 7 {
		return fmt.Errorf("png_optimization_level %d is not in range 0-7", config.PNGOptimizationLevel)
	}
	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	groups := map[string][]string{
		"templates": config.Templates,
		"styles":    config.Styles,
		"images":    config.Images,
	}
	for name, patterns := range groups {
		for _, p := range patterns {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("%s: empty watch pattern", name)
			}
		}
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validatePath validates a configured file path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if !filepath.IsAbs(cleanPath) {
		for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
			if part == ".." {
				return fmt.Errorf("path contains traversal: %s", path)
			}
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
