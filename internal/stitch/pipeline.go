package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/storyreel/stitcher/internal/config"
	"github.com/storyreel/stitcher/internal/engine"
	"github.com/storyreel/stitcher/internal/logging"
)

// EngineChecker reports whether the codec engine can run.
type EngineChecker interface {
	Get(ctx context.Context) (*engine.Capabilities, error)
}

// Options configures an Orchestrator.
type Options struct {
	ScratchRoot      string
	MaxClips         int
	MaxConcurrent    int
	AdmissionTimeout time.Duration
	Encoder          config.EncoderSettings
}

// Orchestrator runs stitch requests end to end. It is safe for concurrent
// use; each request gets its own workspace and nothing else is shared except
// the admission semaphore.
type Orchestrator struct {
	doctor     EngineChecker
	prober     *engine.Prober
	fetcher    *Fetcher
	normalizer *Normalizer
	concat     *Concatenator

	sem  *semaphore.Weighted
	opts Options

	logger *slog.Logger
}

// NewOrchestrator wires the pipeline stages around one engine runner.
func NewOrchestrator(runner engine.Runner, doctor EngineChecker, fetcher *Fetcher, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Encoder.VideoCodec == "" {
		opts.Encoder = config.DefaultEncoderSettings()
	}
	return &Orchestrator{
		doctor:     doctor,
		prober:     engine.NewProber(runner),
		fetcher:    fetcher,
		normalizer: NewNormalizer(runner, opts.Encoder),
		concat:     NewConcatenator(runner, opts.Encoder, logger),
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:       opts,
		logger:     logger,
	}
}

// Stitch validates req, runs the pipeline and returns the finished artifact.
// The caller must Close the artifact; on error the workspace is already gone.
//
// ctx bounds validation and admission only. Once admitted, the pipeline runs
// to completion or failure even if ctx is cancelled; engine and fetch
// timeouts bound it instead.
func (o *Orchestrator) Stitch(ctx context.Context, req *StitchRequest, policy *OriginPolicy, hooks Hooks) (*Artifact, error) {
	m := &machine{hooks: hooks, state: StateIdle}

	urls, err := Validate(req, policy, o.opts.MaxClips)
	if err != nil {
		m.fail()
		return nil, err
	}

	if err := o.admit(ctx); err != nil {
		m.fail()
		return nil, err
	}
	defer o.sem.Release(1)

	work := context.WithoutCancel(ctx)
	logger := o.logger

	hooks.progress(0, "loading engine")
	if _, err := o.doctor.Get(work); err != nil {
		m.fail()
		return nil, engineError(KindEngineUnavailable, "codec engine is not available", err)
	}

	ws, err := NewWorkspace(o.opts.ScratchRoot)
	if err != nil {
		m.fail()
		return nil, &Error{Kind: KindInternal, Message: "could not create workspace", Err: err}
	}
	logger = logger.With("workspace", logging.SanitizePath(ws.Dir()))

	artifact, err := o.run(work, ws, req, urls, policy, m, logger)
	if err != nil {
		m.fail()
		if cerr := ws.Close(); cerr != nil {
			logger.Warn("failed to remove workspace", "error", cerr)
		}
		return nil, err
	}
	return artifact, nil
}

func (o *Orchestrator) run(ctx context.Context, ws *Workspace, req *StitchRequest, urls []*url.URL, policy *OriginPolicy, m *machine, logger *slog.Logger) (*Artifact, error) {
	hooks := m.hooks
	n := len(req.Clips)

	m.advance(StateFetchingClips)
	raws := make([]string, n)
	for i, u := range urls {
		hooks.progress(5+35*i/n, fmt.Sprintf("downloading clip %d/%d", i+1, n))
		raws[i] = ws.RawClip(i)
		if _, err := o.fetcher.Fetch(ctx, policy, u, raws[i]); err != nil {
			logger.Warn("clip download failed", "clip", i+1, "url", logging.SanitizeURL(u.String()), "error", err)
			return nil, annotateClip(err, i)
		}
	}

	m.advance(StateProbingAndNormalizing)
	normalized := make([]string, n)
	var total float64
	for i, clip := range req.Clips {
		hooks.progress(40+45*i/n, fmt.Sprintf("stitching clip %d/%d", i+1, n))

		probed, err := o.prober.Probe(ctx, raws[i])
		if err != nil {
			if errors.Is(err, engine.ErrNoDuration) {
				return nil, &Error{Kind: KindProbe, Message: fmt.Sprintf("clip %d: could not read media duration", i+1), Err: err}
			}
			return nil, annotateClip(engineError(KindProbe, "could not probe media", err), i)
		}

		normalized[i] = ws.NormalizedClip(i)
		plan, err := o.normalizer.Normalize(ctx, raws[i], normalized[i], clip, probed, req.Audio.Enabled, req.Post)
		if err != nil {
			return nil, annotateClip(err, i)
		}
		total += plan.OutDuration
		logger.Debug("clip normalized",
			"clip", i+1,
			"source_sec", probed.DurationSec,
			"has_audio", probed.HasAudio,
			"out_sec", plan.OutDuration,
			"speed", plan.Speed,
		)
	}

	m.advance(StateConcatenating)
	hooks.progress(88, "stitching clips together")
	if err := o.concat.Concatenate(ctx, normalized, req.Audio.Enabled, ws.Output()); err != nil {
		return nil, err
	}

	hooks.progress(95, "finalizing")
	info, err := os.Stat(ws.Output())
	if err != nil {
		return nil, &Error{Kind: KindConcat, Message: "engine produced no output", Err: err}
	}
	if info.Size() == 0 {
		return nil, &Error{Kind: KindConcat, Message: "engine produced an empty output"}
	}

	logger.Info("stitch complete", "clips", n, "duration_sec", total, "bytes", info.Size())
	return &Artifact{
		Filename:    OutputFilename(req.Title),
		Size:        info.Size(),
		DurationSec: total,
		path:        ws.Output(),
		ws:          ws,
		m:           m,
	}, nil
}

// annotateClip prefixes a stage error's message with the clip number.
func annotateClip(err error, i int) error {
	var se *Error
	if errors.As(err, &se) && se.Kind != KindEngineUnavailable {
		cp := *se
		cp.Message = fmt.Sprintf("clip %d: %s", i+1, se.Message)
		return &cp
	}
	return err
}

func (o *Orchestrator) admit(ctx context.Context) error {
	actx := ctx
	if o.opts.AdmissionTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.opts.AdmissionTimeout)
		defer cancel()
	}
	if err := o.sem.Acquire(actx, 1); err != nil {
		return &Error{Kind: KindBusy, Message: "too many stitches in progress, try again later", Err: err}
	}
	return nil
}

// machine enforces the forward-only order of states for one request.
type machine struct {
	mu    sync.Mutex
	state State
	hooks Hooks
}

var stateOrder = map[State]int{
	StateIdle:                  0,
	StateFetchingClips:         1,
	StateProbingAndNormalizing: 2,
	StateConcatenating:         3,
	StateStreaming:             4,
	StateDone:                  5,
}

func (m *machine) advance(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() || stateOrder[next] <= stateOrder[m.state] {
		return
	}
	m.state = next
	if m.hooks.OnState != nil {
		m.hooks.OnState(next)
	}
}

func (m *machine) fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return
	}
	m.state = StateFailed
	if m.hooks.OnState != nil {
		m.hooks.OnState(StateFailed)
	}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Artifact is a finished film inside its workspace.
type Artifact struct {
	Filename string
	Size     int64

	// DurationSec is the planned play time: the sum of every clip's
	// trimmed window divided by its speed.
	DurationSec float64

	path string
	ws   *Workspace
	m    *machine

	mu       sync.Mutex
	streamed bool
}

// WriteTo streams the film to w. It may be called once.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	a.mu.Lock()
	if a.streamed {
		a.mu.Unlock()
		return 0, errors.New("artifact already streamed")
	}
	a.streamed = true
	a.mu.Unlock()

	a.m.advance(StateStreaming)
	f, err := os.Open(a.path)
	if err != nil {
		a.m.fail()
		return 0, fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		a.m.fail()
		return n, err
	}
	if n != a.Size {
		a.m.fail()
		return n, fmt.Errorf("short stream: wrote %d of %d bytes", n, a.Size)
	}
	a.m.advance(StateDone)
	a.m.hooks.progress(100, "done")
	return n, nil
}

// State is the request's current state.
func (a *Artifact) State() State {
	return a.m.current()
}

// Close deletes the workspace. An artifact closed before a complete stream
// ends the request as failed.
func (a *Artifact) Close() error {
	a.m.fail()
	return a.ws.Close()
}
