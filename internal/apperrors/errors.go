package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the pipeline stage that produced it.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindDatasetIO  Kind = "DATASET_IO"
	KindModelLoad  Kind = "MODEL_LOAD"
	KindInference  Kind = "INFERENCE"
	KindTraining   Kind = "TRAINING"
	KindStore      Kind = "STORE"
)

// Error is the typed error returned at component boundaries. Message is the
// human-readable text shown to the caller; Cause keeps the underlying error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewDatasetIOError(format string, args ...any) *Error {
	return &Error{Kind: KindDatasetIO, Message: fmt.Sprintf(format, args...)}
}

func NewModelLoadError(format string, args ...any) *Error {
	return &Error{Kind: KindModelLoad, Message: fmt.Sprintf(format, args...)}
}

func NewInferenceError(format string, args ...any) *Error {
	return &Error{Kind: KindInference, Message: fmt.Sprintf(format, args...)}
}

func NewTrainingError(format string, args ...any) *Error {
	return &Error{Kind: KindTraining, Message: fmt.Sprintf(format, args...)}
}

func NewStoreError(operation string, err error) *Error {
	return &Error{
		Kind:    KindStore,
		Message: fmt.Sprintf("store operation '%s' failed", operation),
		Cause:   err,
	}
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// FromPanic converts a recovered panic value into a typed error.
func FromPanic(kind Kind, recovered any) *Error {
	if err, ok := recovered.(error); ok {
		return &Error{Kind: kind, Message: "unexpected failure", Cause: err}
	}
	return &Error{Kind: kind, Message: fmt.Sprintf("unexpected failure: %v", recovered)}
}
