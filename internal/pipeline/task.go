package pipeline

import "context"

// StageName is a strongly-typed identifier for a build stage.
type StageName string

// Canonical stages.
const (
	StageClean     StageName = "clean"
	StageTemplates StageName = "templates"
	StageStyles    StageName = "styles"
	StageImages    StageName = "images"
	StageInline    StageName = "inline"
	StageReload    StageName = "reload"
)

// Task is one idempotent stage. It keeps no state between runs beyond what
// it writes to disk.
type Task interface {
	Name() StageName
	Run(ctx context.Context) error
}

// Func adapts a plain function to Task.
type Func struct {
	Stage StageName
	Fn    func(ctx context.Context) error
}

// NewTask wraps fn as a Task called name.
func NewTask(name StageName, fn func(ctx context.Context) error) Task {
	return &Func{Stage: name, Fn: fn}
}

func (f *Func) Name() StageName { return f.Stage }

func (f *Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Reloader is notified once a sequence has rewritten the output tree.
type Reloader interface {
	Reload(ctx context.Context)
}

// ReloadTask returns the reload stage for r.
func ReloadTask(r Reloader) Task {
	return NewTask(StageReload, func(ctx context.Context) error {
		r.Reload(ctx)
		return nil
	})
}
