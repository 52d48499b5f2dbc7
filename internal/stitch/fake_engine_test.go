package stitch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/storyreel/stitcher/internal/engine"
)

// fakeEngine imitates the codec engine well enough to drive the pipeline.
// Source clips are text files of the form "NAME|SECONDS|audio" (or "silent");
// normalizing wraps the name in brackets and concat joins the results.
type fakeEngine struct {
	mu    sync.Mutex
	calls [][]string

	unavailable   bool
	failCopy      bool
	failReencode  bool
	failNormalize int // 1-based clip number, 0 for none
	normalized    int
}

func (f *fakeEngine) Run(ctx context.Context, dir string, args ...string) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)

	if f.unavailable {
		return engine.Result{ExitCode: -1}, fmt.Errorf("%w: not installed", engine.ErrEngineUnavailable)
	}

	switch {
	case args[0] == "-version":
		return engine.Result{DiagnosticTail: "ffmpeg version 6.1.1 Copyright (c) 2000-2023\n"}, nil
	case args[0] == "-i":
		return f.probe(dir, args[1])
	case slices.Contains(args, "concat"):
		return f.join(dir, args)
	default:
		return f.normalize(dir, args)
	}
}

func (f *fakeEngine) probe(dir, name string) (engine.Result, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		tail := name + ": No such file or directory\n"
		return engine.Result{ExitCode: 1, DiagnosticTail: tail}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: tail}
	}
	parts := strings.Split(string(raw), "|")
	secs, _ := strconv.ParseFloat(parts[1], 64)

	var b strings.Builder
	fmt.Fprintf(&b, "Input #0, mov,mp4,m4a,3gp,3g2,mj2, from '%s':\n", name)
	if secs > 0 {
		fmt.Fprintf(&b, "  Duration: 00:00:%05.2f, start: 0.000000, bitrate: 900 kb/s\n", secs)
	} else {
		b.WriteString("  Duration: N/A, bitrate: N/A\n")
	}
	b.WriteString("  Stream #0:0[0x1](und): Video: h264 (High), yuv420p, 1280x720, 24 fps\n")
	if parts[2] == "audio" {
		b.WriteString("  Stream #0:1[0x2](und): Audio: aac (LC), 44100 Hz, stereo, fltp\n")
	}
	b.WriteString("At least one output file must be specified\n")
	tail := b.String()
	return engine.Result{ExitCode: 1, DiagnosticTail: tail}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: tail}
}

func (f *fakeEngine) normalize(dir string, args []string) (engine.Result, error) {
	f.normalized++
	if f.failNormalize == f.normalized {
		tail := "Error initializing complex filters.\nInvalid argument\n"
		return engine.Result{ExitCode: 234, DiagnosticTail: tail}, &engine.EngineFailure{ExitCode: 234, DiagnosticTail: tail}
	}
	in := args[slices.Index(args, "-i")+1]
	raw, err := os.ReadFile(filepath.Join(dir, in))
	if err != nil {
		return engine.Result{ExitCode: 1}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: err.Error()}
	}
	name := strings.Split(string(raw), "|")[0]
	out := filepath.Join(dir, args[len(args)-1])
	return engine.Result{}, os.WriteFile(out, []byte("["+name+"]"), 0o600)
}

func (f *fakeEngine) join(dir string, args []string) (engine.Result, error) {
	out := filepath.Join(dir, args[len(args)-1])
	copyMode := slices.Contains(args, "copy")
	if copyMode && f.failCopy {
		_ = os.WriteFile(out, []byte("partial"), 0o600)
		tail := "Non-monotonic DTS in output stream 0:1\n"
		return engine.Result{ExitCode: 1, DiagnosticTail: tail}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: tail}
	}
	if !copyMode && f.failReencode {
		tail := "Conversion failed!\n"
		return engine.Result{ExitCode: 1, DiagnosticTail: tail}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: tail}
	}

	if _, err := os.Stat(out); err == nil {
		return engine.Result{ExitCode: 1}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: "stale output present"}
	}

	manifest, err := os.ReadFile(filepath.Join(dir, args[slices.Index(args, "-i")+1]))
	if err != nil {
		return engine.Result{ExitCode: 1}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: err.Error()}
	}
	var joined strings.Builder
	for _, line := range strings.Split(string(manifest), "\n") {
		name, ok := strings.CutPrefix(line, "file '")
		if !ok {
			continue
		}
		part, err := os.ReadFile(filepath.Join(dir, strings.TrimSuffix(name, "'")))
		if err != nil {
			return engine.Result{ExitCode: 1}, &engine.EngineFailure{ExitCode: 1, DiagnosticTail: err.Error()}
		}
		joined.Write(part)
	}
	return engine.Result{}, os.WriteFile(out, []byte(joined.String()), 0o600)
}

// callsWith returns the recorded invocations containing flag.
func (f *fakeEngine) callsWith(flag string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if slices.Contains(c, flag) {
			out = append(out, c)
		}
	}
	return out
}

// clipServer serves source clips by path and counts requests.
type clipServer struct {
	*httptest.Server
	hits  atomic.Int32
	clips map[string]string
}

func newClipServer(t *testing.T, clips map[string]string) *clipServer {
	t.Helper()
	cs := &clipServer{clips: clips}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		body, ok := cs.clips[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func f64(v float64) *float64 { return &v }
