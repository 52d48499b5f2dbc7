package stitch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/storyreel/stitcher/internal/engine"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", &Error{Kind: KindProbe}, KindProbe},
		{"wrapped", fmt.Errorf("outer: %w", &Error{Kind: KindDownload}), KindDownload},
		{"bare unavailable", fmt.Errorf("x: %w", engine.ErrEngineUnavailable), KindEngineUnavailable},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestEngineError(t *testing.T) {
	long := strings.Repeat("x", 2000) + "Invalid data found when processing input"
	err := engineError(KindNormalize, "engine rejected clip normalization", &engine.EngineFailure{ExitCode: 1, DiagnosticTail: long})
	if err.Kind != KindNormalize {
		t.Errorf("Kind = %s", err.Kind)
	}
	if len(err.Diagnostic) != MaxDiagnosticLen+3 || !strings.HasSuffix(err.Diagnostic, "processing input") {
		t.Errorf("Diagnostic not truncated to tail: %d bytes", len(err.Diagnostic))
	}

	unavailable := engineError(KindConcat, "join failed", fmt.Errorf("%w: gone", engine.ErrEngineUnavailable))
	if unavailable.Kind != KindEngineUnavailable {
		t.Errorf("Kind = %s, want engine_unavailable", unavailable.Kind)
	}
	if !errors.Is(unavailable, engine.ErrEngineUnavailable) {
		t.Error("sentinel lost in wrapping")
	}
}
