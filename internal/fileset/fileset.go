// Package fileset resolves the glob-defined inputs of each stage. Patterns
// use doublestar syntax ("**", "{a,b}") and are always slash-separated,
// relative to the set's Root.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is a root directory plus include and exclude patterns.
type Set struct {
	Root    string
	Include []string
	Exclude []string
}

// New creates a Set rooted at root.
func New(root string, include []string, exclude ...string) Set {
	return Set{Root: root, Include: include, Exclude: exclude}
}

// Validate checks every pattern for syntax errors.
func (s Set) Validate() error {
	for _, p := range append(append([]string{}, s.Include...), s.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// Files lists the regular files under Root matched by Include and not by
// Exclude, as sorted slash-separated paths relative to Root. A missing Root
// yields an empty list.
func (s Set) Files() ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", s.Root)
	}

	fsys := os.DirFS(s.Root)
	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range s.Include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("globbing %s in %s: %w", pattern, s.Root, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			if s.excluded(m) {
				continue
			}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Match reports whether rel, a path relative to Root, belongs to the set.
func (s Set) Match(rel string) bool {
	rel = normalize(rel)
	if s.excluded(rel) {
		return false
	}
	return MatchAny(s.Include, rel)
}

// Abs joins a relative member path back onto Root.
func (s Set) Abs(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

func (s Set) excluded(rel string) bool {
	return MatchAny(s.Exclude, rel)
}

// MatchAny reports whether p matches at least one of patterns.
func MatchAny(patterns []string, p string) bool {
	p = normalize(p)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// Base returns the static directory prefix of a pattern, e.g. "src/assets"
// for "src/assets/**/*.scss".
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(pattern)
	if base == "" {
		return "."
	}
	return base
}

func normalize(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}
