package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorMessage(t *testing.T) {
	err := NewTemplateError(ErrCodeTemplateRender, "render failed", fmt.Errorf("unclosed block")).
		WithPath("src/pages/index.html")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_TEMPLATE_RENDER]")
	assert.Contains(t, msg, "src/pages/index.html")
	assert.Contains(t, msg, "render failed")
	assert.Contains(t, msg, "unclosed block")
}

func TestPipelineErrorUnwrap(t *testing.T) {
	err := NewFilesystemError(ErrCodeRemove, "remove output", fs.ErrPermission)

	assert.True(t, errors.Is(err, fs.ErrPermission))
}

func TestPipelineErrorIs(t *testing.T) {
	err := fmt.Errorf("stage styles: %w", NewStyleError(ErrCodeSassCompile, "bad import", nil))

	assert.True(t, errors.Is(err, &PipelineError{Type: ErrorTypeStyle}))
	assert.True(t, errors.Is(err, &PipelineError{Type: ErrorTypeStyle, Code: ErrCodeSassCompile}))
	assert.False(t, errors.Is(err, &PipelineError{Type: ErrorTypeStyle, Code: ErrCodeSassUnavailable}))
	assert.False(t, errors.Is(err, &PipelineError{Type: ErrorTypeTemplate}))
}

func TestTypePredicates(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"template", NewTemplateError(ErrCodeTemplateParse, "x", nil), IsTemplateError, true},
		{"style", NewStyleError(ErrCodeSassCompile, "x", nil), IsStyleError, true},
		{"filesystem", NewFilesystemError(ErrCodeWrite, "x", nil), IsFilesystemError, true},
		{"image", NewImageError(ErrCodeImageDecode, "x", nil), IsImageError, true},
		{"inline", NewInlineError(ErrCodeStylesheet, "x", nil), IsInlineError, true},
		{"config", NewConfigError(ErrCodeConfigInvalid, "x", nil), IsConfigError, true},
		{"mismatch", NewImageError(ErrCodeImageDecode, "x", nil), IsTemplateError, false},
		{"plain", errors.New("plain"), IsStyleError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.pred(tc.err))
		})
	}
}

func TestPathOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewImageError(ErrCodeImageDecode, "decode", nil).WithPath("a.png"))
	assert.Equal(t, "a.png", PathOf(err))
	assert.Equal(t, "", PathOf(errors.New("nope")))
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Err())

	c.Add(nil)
	assert.Equal(t, 0, c.Len())

	first := NewTemplateError(ErrCodeTemplateRender, "a", nil)
	c.Add(first)
	assert.Same(t, first, c.Err())

	second := NewTemplateError(ErrCodeLayoutNotFound, "b", nil)
	c.Add(second)
	assert.Equal(t, 2, c.Len())

	joined := c.Err()
	require.Error(t, joined)
	assert.True(t, errors.Is(joined, &PipelineError{Type: ErrorTypeTemplate, Code: ErrCodeLayoutNotFound}))
	assert.Len(t, c.Errors(), 2)
}
