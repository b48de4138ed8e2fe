package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the stage family an error belongs to.
type ErrorType string

const (
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeStyle      ErrorType = "style"
	ErrorTypeImage      ErrorType = "image"
	ErrorTypeInline     ErrorType = "inline"
	ErrorTypeFilesystem ErrorType = "filesystem"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeServer     ErrorType = "server"
)

// Common error codes.
const (
	ErrCodeTemplateParse   = "ERR_TEMPLATE_PARSE"
	ErrCodeTemplateRender  = "ERR_TEMPLATE_RENDER"
	ErrCodeLayoutNotFound  = "ERR_LAYOUT_NOT_FOUND"
	ErrCodeFrontMatter     = "ERR_FRONT_MATTER"
	ErrCodeDataFile        = "ERR_DATA_FILE"
	ErrCodeSassCompile     = "ERR_SASS_COMPILE"
	ErrCodeSassUnavailable = "ERR_SASS_UNAVAILABLE"
	ErrCodeImageDecode     = "ERR_IMAGE_DECODE"
	ErrCodeImageEncode     = "ERR_IMAGE_ENCODE"
	ErrCodeInlineParse     = "ERR_INLINE_PARSE"
	ErrCodeStylesheet      = "ERR_STYLESHEET"
	ErrCodeMinify          = "ERR_MINIFY"
	ErrCodeRead            = "ERR_READ"
	ErrCodeWrite           = "ERR_WRITE"
	ErrCodeRemove          = "ERR_REMOVE"
	ErrCodeUnsafeRemove    = "ERR_UNSAFE_REMOVE"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
)

// PipelineError is a structured error raised by one of the build stages.
type PipelineError struct {
	Type    ErrorType
	Code    string
	Message string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PipelineError with the same type and code.
// A target without a code matches any error of the same type.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if !errors.As(target, &t) {
		return false
	}
	if t.Code == "" {
		return e.Type == t.Type
	}

	return e.Type == t.Type && e.Code == t.Code
}

// WithPath attaches the file the error concerns.
func (e *PipelineError) WithPath(path string) *PipelineError {
	e.Path = path

	return e
}

// NewTemplateError creates a template render error.
func NewTemplateError(code, message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeTemplate, Code: code, Message: message, Cause: cause}
}

// NewStyleError creates a Sass compilation error.
func NewStyleError(code, message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeStyle, Code: code, Message: message, Cause: cause}
}

// NewImageError creates an image optimization error.
func NewImageError(code, message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeImage, Code: code, Message: message, Cause: cause}
}

// NewInlineError creates a CSS inlining error.
func NewInlineError(code, message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeInline, Code: code, Message: message, Cause: cause}
}

// NewFilesystemError creates a filesystem error.
func NewFilesystemError(code, message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeFilesystem, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeConfig, Code: code, Message: message, Cause: cause}
}

func isType(err error, t ErrorType) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// IsTemplateError checks if an error came from template rendering.
func IsTemplateError(err error) bool { return isType(err, ErrorTypeTemplate) }

// IsStyleError checks if an error came from Sass compilation.
func IsStyleError(err error) bool { return isType(err, ErrorTypeStyle) }

// IsImageError checks if an error came from image optimization.
func IsImageError(err error) bool { return isType(err, ErrorTypeImage) }

// IsInlineError checks if an error came from CSS inlining.
func IsInlineError(err error) bool { return isType(err, ErrorTypeInline) }

// IsFilesystemError checks if an error is a filesystem failure.
func IsFilesystemError(err error) bool { return isType(err, ErrorTypeFilesystem) }

// IsConfigError checks if an error is a configuration failure.
func IsConfigError(err error) bool { return isType(err, ErrorTypeConfig) }

// PathOf returns the file path recorded on the first PipelineError in err's
// chain, or "" when there is none.
func PathOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Path
	}

	return ""
}
