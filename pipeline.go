package imagepipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/diskcache"
	"github.com/kestrelimg/imagepipeline/internal/logger"
	"github.com/kestrelimg/imagepipeline/internal/memcache"
	"github.com/kestrelimg/imagepipeline/internal/obsmetrics"
	"github.com/kestrelimg/imagepipeline/internal/orchestrator"
	"github.com/kestrelimg/imagepipeline/internal/session"
	"github.com/kestrelimg/imagepipeline/loader"
)

const defaultMemoryCacheTTL = 30 * time.Minute

// defaultDiskCacheDir is where the default disk cache is rooted when the
// caller does not install its own with WithDiskCache.
func defaultDiskCacheDir() string {
	return filepath.Join(os.TempDir(), "imagepipeline-cache")
}

// Pipeline is the library's entry point: one Pipeline owns one session
// table and one set of admission queues, shared across every Task it
// serves.
type Pipeline struct {
	orch *orchestrator.Orchestrator
}

// New builds a Pipeline from opts. A DecoderFactory must be supplied via
// WithDecoderFactory; every other collaborator has a working default.
func New(opts ...Option) (*Pipeline, error) {
	s := settings{
		cfg:   core.DefaultConfig(),
		meter: noop.NewMeterProvider().Meter("imagepipeline"),
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.decoderFactory == nil {
		return nil, fmt.Errorf("imagepipeline: WithDecoderFactory is required")
	}
	if s.loader == nil {
		s.loader = loader.New(nil, loader.DefaultRetryConfig())
	}
	if s.memoryCache == nil {
		s.memoryCache = memcache.New(defaultMemoryCacheTTL, defaultMemoryCacheTTL)
	}
	if s.diskCache == nil {
		dc, err := diskcache.New(defaultDiskCacheDir(), s.cfg.DiskCacheCountLimit, s.cfg.DiskCacheSizeLimit)
		if err != nil {
			return nil, fmt.Errorf("imagepipeline: build default disk cache: %w", err)
		}
		s.diskCache = dc
	}
	if s.log == nil {
		s.log = logger.Nop()
	}

	metr, err := obsmetrics.New(s.meter)
	if err != nil {
		return nil, fmt.Errorf("imagepipeline: build metrics: %w", err)
	}

	orch := orchestrator.New(s.cfg, orchestrator.Collaborators{
		Loader:         s.loader,
		DiskCache:      s.diskCache,
		MemoryCache:    s.memoryCache,
		DecoderFactory: s.decoderFactory,
	}, s.log, metr)

	return &Pipeline{orch: orch}, nil
}

// LoadImage submits req and returns a handle to track it. onProgress and
// onCompletion may be nil; onCompletion fires at most once (never for a
// cancelled task), on a dedicated delivery goroutine distinct from the
// pipeline's own scheduling loop.
func (p *Pipeline) LoadImage(req Request, onProgress func(Progress), onCompletion func(Response, error)) *Task {
	h := session.Handlers{
		OnProgress: func(pr core.Progress) {
			if onProgress != nil {
				onProgress(pr)
			}
		},
		OnCompletion: func(resp core.Response, err error) {
			if onCompletion != nil {
				onCompletion(resp, err)
			}
		},
	}
	inner := p.orch.Submit(req, h)
	return &Task{inner: inner, orch: p.orch}
}

// OnDidFinishCollectingMetrics installs a callback invoked with each task's
// final TaskMetrics once it reaches a terminal state (success, failure, or
// cancellation).
func (p *Pipeline) OnDidFinishCollectingMetrics(fn func(taskID uint64, m TaskMetrics)) {
	p.orch.SetMetricsHook(fn)
}

// Close stops accepting new pipeline scheduling work and waits for
// in-flight bookkeeping to drain. It does not cancel outstanding tasks.
func (p *Pipeline) Close() { p.orch.Close() }

// Task is a handle to one submitted LoadImage call.
type Task struct {
	inner *core.Task
	orch  *orchestrator.Orchestrator
}

// ID uniquely identifies the task within its owning Pipeline.
func (t *Task) ID() uint64 { return t.inner.ID }

// SetPriority updates the task's priority, propagating it to the Load
// Session and Processing Session it currently participates in.
func (t *Task) SetPriority(p Priority) { t.orch.SetPriority(t.inner, p) }

// Priority returns the task's current priority.
func (t *Task) Priority() Priority { return t.inner.Priority() }

// Cancel cancels the task. Idempotent. A cancelled task never receives its
// completion callback.
func (t *Task) Cancel() { t.orch.Cancel(t.inner) }

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool { return t.inner.IsCancelled() }

// Progress returns a snapshot of the task's current byte-progress counters.
func (t *Task) Progress() Progress { return t.inner.Progress() }
