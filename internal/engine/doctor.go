package engine

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

var reVersion = regexp.MustCompile(`(?m)^\S+ version (\S+)`)

// Capabilities reports whether the engine can be started and which build it is.
type Capabilities struct {
	Available bool      `json:"available"`
	Version   string    `json:"version,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
}

// CachedDoctor wraps a Runner to cache engine availability with a TTL.
// This avoids spawning a version probe on every stitch request.
type CachedDoctor struct {
	runner Runner
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around engine version probes.
func NewCachedDoctor(runner Runner, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		runner: runner,
		ttl:    defaultCacheTTL,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && d.now().Sub(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the last successful probe, however old, without probing.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new version probe regardless of cache freshness. An
// unavailable engine is never cached, so installing it takes effect on the
// next request.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.runner.Run(ctx, "", "-version")
	if err != nil {
		d.logger.Warn("engine probe failed", "error", err)
		d.cached = nil
		return &Capabilities{Available: false, ProbedAt: d.now()}, err
	}

	caps := &Capabilities{Available: true, ProbedAt: d.now()}
	if m := reVersion.FindStringSubmatch(res.DiagnosticTail); m != nil {
		caps.Version = m[1]
	}

	d.logger.Info("engine probe complete", "version", caps.Version)
	d.cached = caps
	return caps, nil
}
