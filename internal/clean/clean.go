// Package clean implements the stage that removes the output root before a
// full rebuild so no stale file survives.
package clean

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/errors"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
)

// Cleaner removes the output root.
type Cleaner struct {
	output string
	source string
	logger logging.Logger
}

// New creates a Cleaner for cfg's output root.
func New(cfg *config.Config, logger logging.Logger) *Cleaner {
	return &Cleaner{
		output: cfg.Paths.Output,
		source: cfg.Paths.Source,
		logger: logger.WithComponent("clean"),
	}
}

func (c *Cleaner) Name() pipeline.StageName { return pipeline.StageClean }

// Run deletes the output root recursively. A missing root is not an error.
func (c *Cleaner) Run(ctx context.Context) error {
	if err := c.checkSafe(); err != nil {
		return err
	}

	if err := os.RemoveAll(c.output); err != nil {
		return errors.NewFilesystemError(errors.ErrCodeRemove, "removing output root", err).WithPath(c.output)
	}

	c.logger.Debug(ctx, "Removed output root", "path", c.output)
	return nil
}

// checkSafe refuses to delete the working directory, a filesystem root or
// anything containing the source tree.
func (c *Cleaner) checkSafe() error {
	out, err := filepath.Abs(c.output)
	if err != nil {
		return errors.NewFilesystemError(errors.ErrCodeUnsafeRemove, "resolving output root", err).WithPath(c.output)
	}

	unsafe := func(msg string) error {
		return errors.NewFilesystemError(errors.ErrCodeUnsafeRemove, msg, nil).WithPath(c.output)
	}

	if out == filepath.Dir(out) {
		return unsafe("refusing to remove a filesystem root")
	}
	if cwd, err := os.Getwd(); err == nil && config.IsWithin(out, cwd) {
		return unsafe("refusing to remove the working directory")
	}
	if c.source != "" {
		if src, err := filepath.Abs(c.source); err == nil && config.IsWithin(out, src) {
			return unsafe("refusing to remove a directory containing the sources")
		}
	}
	return nil
}
