package styles

import (
	"fmt"
	"sync"

	"github.com/bep/godartsass/v2"
)

// CompileOptions are the per-call Sass settings.
type CompileOptions struct {
	// URL identifies the entry file so relative imports resolve.
	URL          string
	IncludePaths []string
	// OutputStyle is "expanded" or "compressed".
	OutputStyle string
}

// Compiler turns SCSS source into CSS.
type Compiler interface {
	Compile(source string, opts CompileOptions) (string, error)
	Close() error
}

// DartSass compiles through the Dart Sass embedded protocol. The sass
// process is started on first use and reused until Close.
type DartSass struct {
	binary string

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewDartSass creates a compiler using binary, or "sass" from PATH when
// binary is empty.
func NewDartSass(binary string) *DartSass {
	return &DartSass{binary: binary}
}

// ErrUnavailable is returned when the sass binary cannot be started.
type ErrUnavailable struct {
	Binary string
	Err    error
}

func (e *ErrUnavailable) Error() string {
	name := e.Binary
	if name == "" {
		name = "sass"
	}
	return fmt.Sprintf("starting dart sass (%s): %v", name, e.Err)
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }

func (d *DartSass) start() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler != nil {
		return d.transpiler, nil
	}
	t, err := godartsass.Start(godartsass.Options{DartSassEmbeddedFilename: d.binary})
	if err != nil {
		return nil, &ErrUnavailable{Binary: d.binary, Err: err}
	}
	d.transpiler = t
	return t, nil
}

// Compile implements Compiler.
func (d *DartSass) Compile(source string, opts CompileOptions) (string, error) {
	t, err := d.start()
	if err != nil {
		return "", err
	}

	style := godartsass.OutputStyleExpanded
	if opts.OutputStyle == "compressed" {
		style = godartsass.OutputStyleCompressed
	}

	res, err := t.Execute(godartsass.Args{
		Source:       source,
		URL:          opts.URL,
		OutputStyle:  style,
		SourceSyntax: godartsass.SourceSyntaxSCSS,
		IncludePaths: opts.IncludePaths,
	})
	if err != nil {
		return "", err
	}
	return res.CSS, nil
}

// Close stops the sass process if it was started.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}
