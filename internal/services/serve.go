package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/fileset"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/pipeline"
	"github.com/mailwright/mailwright/internal/server"
	"github.com/mailwright/mailwright/internal/styles"
	"github.com/mailwright/mailwright/internal/watcher"
	"github.com/mailwright/mailwright/internal/websocket"
)

// ServeService runs the development workflow: a full build, then the
// watcher and the dev server side by side until the context ends.
type ServeService struct {
	config   *config.Config
	compiler styles.Compiler
	logger   logging.Logger
}

// NewServeService creates a new serve service
func NewServeService(cfg *config.Config, compiler styles.Compiler, logger logging.Logger) *ServeService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ServeService{
		config:   cfg,
		compiler: compiler,
		logger:   logger,
	}
}

// ServeOptions contains options for the serve process
type ServeOptions struct {
	// OnReady is called with the listen address once the server accepts
	// connections.
	OnReady func(addr string)
}

// Serve blocks until ctx is canceled or the server fails. A failing initial
// build is reported and the watcher still starts, so fixing the offending
// source recovers without a restart.
func (s *ServeService) Serve(ctx context.Context, opts ServeOptions) error {
	cfg := s.config
	hub := websocket.NewHub(
		websocket.NewAllowList(cfg.Server.Host, cfg.Server.Port, cfg.Server.AllowedOrigins...),
		s.logger,
	)

	plan, err := NewBuildService(cfg, s.compiler, s.logger).Plan(hub)
	if err != nil {
		return err
	}

	lock := &pipeline.Lock{}
	if err := pipeline.RunLocked(ctx, lock, plan.Build); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Error(ctx, err, "Initial build failed; waiting for changes")
	}

	fw, err := watcher.NewFileWatcher(watcher.Options{
		Debounce: cfg.Watch.Debounce,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	defer fw.Stop()

	if out, ok := dirPrefix(cfg.Paths.Output); ok && out != "" {
		fw.AddFilter(func(path string) bool {
			return path != strings.TrimSuffix(out, "/") && !strings.HasPrefix(path, out)
		})
	}

	groups := []struct {
		name     string
		patterns []string
		exclude  []string
	}{
		{pipeline.GroupTemplates, cfg.Watch.Templates, archiveExcludes(cfg.Paths, cfg.Paths.Pages)},
		{pipeline.GroupStyles, cfg.Watch.Styles, nil},
		{pipeline.GroupImages, cfg.Watch.Images, archiveExcludes(cfg.Paths, cfg.Paths.Images)},
	}

	var (
		triggers []*pipeline.Trigger
		patterns []string
	)
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		seq, err := plan.ForGroup(g.name)
		if err != nil {
			return err
		}

		trigger := pipeline.NewTrigger(seq, lock, s.logger)
		trigger.OnResult = func(err error) {
			if err != nil {
				hub.NotifyError(ctx, err)
			}
		}
		triggers = append(triggers, trigger)

		name := g.name
		handler := func(ctx context.Context, events []watcher.ChangeEvent) error {
			if len(events) == 0 {
				return nil
			}
			s.logger.Info(ctx, "Files changed", "group", name, "count", len(events), "first", events[0].Path)
			trigger.Fire(ctx)
			return nil
		}
		if err := fw.AddGroup(g.name, g.patterns, handler, g.exclude...); err != nil {
			return err
		}
		patterns = append(patterns, g.patterns...)
	}
	defer func() {
		for _, t := range triggers {
			t.Wait()
		}
	}()

	for _, root := range watchRoots(patterns) {
		if err := fw.AddRecursive(root); err != nil {
			s.logger.Warn(ctx, err, "Not watching directory", "path", root)
		}
	}

	srv := server.New(cfg, hub, s.logger)

	return pipeline.Parallel(ctx,
		func(ctx context.Context) error {
			if err := fw.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
		func(ctx context.Context) error {
			if opts.OnReady != nil {
				go func() {
					select {
					case <-srv.Ready():
						opts.OnReady(srv.Addr())
					case <-ctx.Done():
					}
				}()
			}
			return srv.Start(ctx)
		},
	)
}

// watchRoots returns the distinct static prefixes of patterns, dropping any
// nested inside another.
func watchRoots(patterns []string) []string {
	seen := make(map[string]bool)
	var bases []string
	for _, p := range patterns {
		b := filepath.Clean(filepath.FromSlash(fileset.Base(p)))
		if !seen[b] {
			seen[b] = true
			bases = append(bases, b)
		}
	}
	sort.Strings(bases)

	var roots []string
	for _, b := range bases {
		nested := false
		for _, r := range roots {
			if r == "." || strings.HasPrefix(b, r+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested {
			roots = append(roots, b)
		}
	}
	return roots
}

// dirPrefix is dir as a slash path relative to the working directory, with a
// trailing slash. The working directory itself yields "". It reports false
// when dir lies outside the working directory.
func dirPrefix(dir string) (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel) + "/", true
}

// archiveExcludes turns the archive subtree of each source directory into a
// working-directory glob for the watcher.
func archiveExcludes(paths config.PathsConfig, dirs ...string) []string {
	var excludes []string
	for _, dir := range dirs {
		prefix, ok := dirPrefix(dir)
		if !ok {
			continue
		}
		for _, ex := range paths.ArchiveExclude() {
			excludes = append(excludes, prefix+ex)
		}
	}
	return excludes
}
