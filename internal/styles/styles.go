// Package styles compiles the Sass entry point into the output tree's
// stylesheet directory.
package styles

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/fileset"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
)

// Stage compiles one entry file.
type Stage struct {
	entry        string
	outputDir    string
	includePaths []string
	outputStyle  string
	compiler     Compiler
	logger       logging.Logger
}

// New creates the styles stage. compiler is usually a *DartSass.
func New(cfg *config.Config, compiler Compiler, logger logging.Logger) *Stage {
	return &Stage{
		entry:        cfg.Paths.StylesEntry,
		outputDir:    cfg.Paths.StylesOutputDir(),
		includePaths: cfg.Styles.IncludePaths,
		outputStyle:  cfg.Styles.OutputStyle,
		compiler:     compiler,
		logger:       logger.WithComponent("styles"),
	}
}

func (s *Stage) Name() pipeline.StageName { return pipeline.StageStyles }

// OutputPath is the CSS file Run writes, e.g. docs/css/app.css.
func (s *Stage) OutputPath() string {
	base := strings.TrimSuffix(filepath.Base(s.entry), filepath.Ext(s.entry))
	return filepath.Join(s.outputDir, base+".css")
}

// Run compiles the entry and returns once the CSS is on disk.
func (s *Stage) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	source, err := os.ReadFile(s.entry)
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRead, "reading styles entry", err).WithPath(s.entry)
	}

	abs, err := filepath.Abs(s.entry)
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRead, "resolving styles entry", err).WithPath(s.entry)
	}

	includes := make([]string, 0, len(s.includePaths)+1)
	includes = append(includes, filepath.Dir(abs))
	for _, p := range s.includePaths {
		if ap, err := filepath.Abs(p); err == nil {
			includes = append(includes, ap)
		}
	}

	css, err := s.compiler.Compile(string(source), CompileOptions{
		URL:          "file://" + filepath.ToSlash(abs),
		IncludePaths: includes,
		OutputStyle:  s.outputStyle,
	})
	if err != nil {
		var unavailable *ErrUnavailable
		if stderrors.As(err, &unavailable) {
			return errors.NewStyleError(errors.ErrCodeSassUnavailable, "sass compiler unavailable", err).WithPath(s.entry)
		}
		return errors.NewStyleError(errors.ErrCodeSassCompile, "compiling styles", err).WithPath(s.entry)
	}

	out := s.OutputPath()
	if err := fileset.WriteFile(out, []byte(css)); err != nil {
		return errors.NewFilesystemError(errors.ErrCodeWrite, "writing stylesheet", err).WithPath(out)
	}

	s.logger.Info(ctx, "Compiled styles", "entry", s.entry, "output", out, "bytes", len(css))
	return nil
}
