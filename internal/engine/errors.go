package engine

import (
	"errors"
	"fmt"
)

// ErrEngineUnavailable means the codec engine binary cannot be located or
// started. It is fatal and never retried.
var ErrEngineUnavailable = errors.New("codec engine unavailable")

// EngineFailure is a non-zero exit (or abnormal termination) of one engine
// invocation. DiagnosticTail holds the last few thousand characters the
// engine wrote to stderr.
type EngineFailure struct {
	ExitCode       int
	DiagnosticTail string
	Err            error
}

func (e *EngineFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine exited %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("engine exited %d", e.ExitCode)
}

func (e *EngineFailure) Unwrap() error { return e.Err }

// AsFailure extracts an *EngineFailure from err, if there is one.
func AsFailure(err error) (*EngineFailure, bool) {
	var f *EngineFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Truncate keeps the last maxLen bytes of s, prefixed with "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
