// Package services assembles the stages into the build and dev workflows the
// commands run.
package services

import (
	"context"
	"time"

	"github.com/mailwright/mailwright/internal/clean"
	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/images"
	"github.com/mailwright/mailwright/internal/inliner"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
	"github.com/mailwright/mailwright/internal/styles"
	"github.com/mailwright/mailwright/internal/templates"
)

// BuildService runs the one-shot build.
type BuildService struct {
	config   *config.Config
	compiler styles.Compiler
	logger   logging.Logger
}

// NewBuildService creates a build service. The Sass compiler is owned by
// the caller.
func NewBuildService(cfg *config.Config, compiler styles.Compiler, logger logging.Logger) *BuildService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &BuildService{
		config:   cfg,
		compiler: compiler,
		logger:   logger,
	}
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Duration time.Duration
	Success  bool
	Err      error
}

// Plan wires the stages into the build and watch sequences. reloader may
// be nil.
func (s *BuildService) Plan(reloader pipeline.Reloader) (*pipeline.Plan, error) {
	return pipeline.NewPlan(pipeline.Stages{
		Clean:     clean.New(s.config, s.logger),
		Templates: templates.New(s.config, s.logger),
		Styles:    styles.New(s.config, s.compiler, s.logger),
		Images:    images.New(s.config, s.logger),
		Inline:    inliner.New(s.config, s.logger),
		Reloader:  reloader,
	}, s.logger)
}

// Build runs clean followed by every stage once.
func (s *BuildService) Build(ctx context.Context) (*BuildResult, error) {
	plan, err := s.Plan(nil)
	if err != nil {
		return nil, err
	}

	op := logging.StartOperation(s.logger, "build")
	err = plan.Build.Run(ctx)
	result := &BuildResult{Success: err == nil, Err: err}
	if err != nil {
		result.Duration = op.EndWithError(ctx, err)
		return result, err
	}
	result.Duration = op.End(ctx)
	return result, nil
}

// Clean removes the output root.
func (s *BuildService) Clean(ctx context.Context) error {
	return clean.New(s.config, s.logger).Run(ctx)
}
