//go:build property

package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCollectorProperties validates concurrent collection and joining.
func TestCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent additions are all kept", prop.ForAll(
		func(goroutines, perGoroutine int) bool {
			collector := NewCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for e := 0; e < perGoroutine; e++ {
						collector.Add(NewTemplateError(ErrCodeTemplateRender, "render failed", nil).
							WithPath(fmt.Sprintf("page_%d_%d.html", id, e)))
					}
				}(g)
			}
			wg.Wait()

			return collector.Len() == goroutines*perGoroutine
		},
		gen.IntRange(1, 16),
		gen.IntRange(1, 32),
	))

	properties.Property("joined error keeps every path reachable", prop.ForAll(
		func(n int) bool {
			collector := NewCollector()
			for i := 0; i < n; i++ {
				collector.Add(NewImageError(ErrCodeImageDecode, "decode", nil).WithPath(fmt.Sprintf("img_%d.png", i)))
			}
			err := collector.Err()
			if err == nil {
				return false
			}
			if !IsImageError(err) {
				return false
			}
			target := &PipelineError{Type: ErrorTypeImage, Code: ErrCodeImageDecode}
			return stderrors.Is(err, target)
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// TestPipelineErrorIsProperties checks that Is matches on type and code only.
func TestPipelineErrorIsProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	types := gen.OneConstOf(ErrorTypeTemplate, ErrorTypeStyle, ErrorTypeImage, ErrorTypeInline, ErrorTypeFilesystem, ErrorTypeConfig)
	codes := gen.OneConstOf(ErrCodeTemplateParse, ErrCodeSassCompile, ErrCodeImageDecode, ErrCodeStylesheet, ErrCodeRead)

	properties.Property("Is compares type and code", prop.ForAll(
		func(a, b ErrorType, c1, c2 string, msg, path string) bool {
			err := &PipelineError{Type: a, Code: c1, Message: msg, Path: path}
			target := &PipelineError{Type: b, Code: c2}
			return stderrors.Is(err, target) == (a == b && c1 == c2)
		},
		types, types, codes, codes, gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
