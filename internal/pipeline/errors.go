package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrJobNotFound
	ErrDownload
	ErrExtraction
	ErrTranslation
	ErrIndexing
	ErrCancelled
	ErrUnknown
)

// PipelineError is the typed failure every stage call resolves into. The
// orchestrator decides a job's terminal state by its Type, never by a
// blanket recover.
type PipelineError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *PipelineError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrJobNotFound:
		return "JobNotFound"
	case ErrDownload:
		return "Download"
	case ErrExtraction:
		return "Extraction"
	case ErrTranslation:
		return "Translation"
	case ErrIndexing:
		return "Indexing"
	case ErrCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *PipelineError {
	return NewErrorWithCause(errorType, message, err)
}

// ensureTyped coerces an arbitrary stage error into a PipelineError of
// the given kind, leaving already-typed errors untouched.
func ensureTyped(err error, errorType ErrorType) *PipelineError {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr
	}
	return NewErrorWithCause(errorType, err.Error(), err)
}
