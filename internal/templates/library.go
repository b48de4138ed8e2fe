package templates

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/fileset"
	"gopkg.in/yaml.v3"
)

// reservedHelpers are names raymond or the compiler already define.
var reservedHelpers = map[string]bool{
	"if": true, "unless": true, "with": true, "each": true,
	"log": true, "lookup": true, "equal": true,
}

// Library is everything a page can reference besides its own body. It is
// rebuilt from disk on every run so edits to layouts, partials, helpers and
// data are always picked up.
type Library struct {
	// Layouts maps a layout name (slash path without extension) to its source.
	Layouts map[string]string
	// Partials maps a partial name to its parsed template.
	Partials map[string]*raymond.Template
	// Helpers maps a helper name to its Handlebars source.
	Helpers map[string]string
	// Data maps a data file's base name to its decoded contents.
	Data map[string]interface{}
}

// LoadLibrary reads layouts, partials, helpers and data for paths. Every
// unreadable or invalid file is reported; the returned error joins them.
func LoadLibrary(paths config.PathsConfig) (*Library, error) {
	lib := &Library{
		Layouts:  map[string]string{},
		Partials: map[string]*raymond.Template{},
		Helpers:  map[string]string{},
		Data:     map[string]interface{}{},
	}
	errs := errors.NewCollector()

	if err := eachFile(fileset.New(paths.Layouts, []string{"**/*.html"}), func(rel, src string) error {
		if _, err := raymond.Parse(src); err != nil {
			return errors.NewTemplateError(errors.ErrCodeTemplateParse, "parsing layout", err)
		}
		lib.Layouts[stripExt(rel)] = src
		return nil
	}, errs); err != nil {
		errs.Add(err)
	}

	if err := eachFile(fileset.New(paths.Partials, []string{"**/*.html"}), func(rel, src string) error {
		name := stripExt(rel)
		if name == bodyPartial {
			return errors.NewTemplateError(errors.ErrCodeTemplateParse,
				fmt.Sprintf("partial name %q is reserved for the page body", bodyPartial), nil)
		}
		tpl, err := raymond.Parse(src)
		if err != nil {
			return errors.NewTemplateError(errors.ErrCodeTemplateParse, "parsing partial", err)
		}
		lib.Partials[name] = tpl
		return nil
	}, errs); err != nil {
		errs.Add(err)
	}

	if paths.Helpers != "" {
		if err := eachFile(fileset.New(paths.Helpers, []string{"**/*.hbs"}), func(rel, src string) error {
			name := stripExt(path.Base(rel))
			if reservedHelpers[name] || isBuiltinHelper(name) {
				return errors.NewTemplateError(errors.ErrCodeTemplateParse,
					fmt.Sprintf("helper %q shadows a built-in helper", name), nil)
			}
			if _, err := raymond.Parse(src); err != nil {
				return errors.NewTemplateError(errors.ErrCodeTemplateParse, "parsing helper", err)
			}
			lib.Helpers[name] = src
			return nil
		}, errs); err != nil {
			errs.Add(err)
		}
	}

	if paths.Data != "" {
		if err := eachFile(fileset.New(paths.Data, []string{"**/*.{yml,yaml,json}"}), func(rel, src string) error {
			var value interface{}
			if err := yaml.Unmarshal([]byte(src), &value); err != nil {
				return errors.NewTemplateError(errors.ErrCodeDataFile, "decoding data file", err)
			}
			lib.Data[stripExt(path.Base(rel))] = value
			return nil
		}, errs); err != nil {
			errs.Add(err)
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return lib, nil
}

// eachFile calls fn with the contents of every file in set. Per-file errors
// are tagged with the file path and added to errs; the returned error is
// only for failures listing the set itself.
func eachFile(set fileset.Set, fn func(rel, src string) error, errs *errors.Collector) error {
	files, err := set.Files()
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRead, "listing files", err).WithPath(set.Root)
	}

	for _, rel := range files {
		abs := set.Abs(rel)
		data, err := os.ReadFile(abs)
		if err != nil {
			errs.Add(errors.NewFilesystemError(errors.ErrCodeRead, "reading file", err).WithPath(abs))
			continue
		}
		if err := fn(rel, string(data)); err != nil {
			if pe, ok := err.(*errors.PipelineError); ok {
				errs.Add(pe.WithPath(abs))
				continue
			}
			errs.Add(err)
		}
	}
	return nil
}

func stripExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}
