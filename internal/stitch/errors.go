package stitch

import (
	"errors"
	"fmt"

	"github.com/storyreel/stitcher/internal/engine"
)

// Kind classifies a stitch failure. Every failure aborts the whole request.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindDownload          Kind = "download"
	KindProbe             Kind = "probe"
	KindNormalize         Kind = "normalize"
	KindConcat            Kind = "concat"
	KindEngineUnavailable Kind = "engine_unavailable"
	KindBusy              Kind = "busy"
	KindInternal          Kind = "internal"
)

// MaxDiagnosticLen bounds the engine tail carried on an Error.
const MaxDiagnosticLen = 512

// Error is the single failure outcome of a stitch request.
type Error struct {
	Kind    Kind
	Message string

	// StatusCode is the upstream HTTP status for download failures, 0 otherwise.
	StatusCode int

	// Diagnostic is a short tail of engine output for operators.
	Diagnostic string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, engine.ErrEngineUnavailable) {
		return KindEngineUnavailable
	}
	return KindInternal
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// engineError wraps an engine-level error under kind. A missing engine is
// always reported as KindEngineUnavailable, whatever stage hit it.
func engineError(kind Kind, message string, err error) *Error {
	if errors.Is(err, engine.ErrEngineUnavailable) {
		return &Error{Kind: KindEngineUnavailable, Message: "codec engine is not available", Err: err}
	}
	se := &Error{Kind: kind, Message: message, Err: err}
	if f, ok := engine.AsFailure(err); ok {
		se.Diagnostic = engine.Truncate(f.DiagnosticTail, MaxDiagnosticLen)
	}
	return se
}
