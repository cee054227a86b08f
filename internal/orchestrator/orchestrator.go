// Package orchestrator implements the pipeline's state machine: admission,
// disk probing, downloading, decoding, and processing dispatch for every
// submitted Task, deduplicated across Load Sessions and Processing
// Sessions. All session-state mutation is confined to a single serial
// pipeline context; callbacks into host code run on a separate serial
// delivery context so a slow handler never stalls scheduling.
package orchestrator

import (
	"context"
	"time"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/idgen"
	"github.com/kestrelimg/imagepipeline/internal/logger"
	"github.com/kestrelimg/imagepipeline/internal/obsmetrics"
	"github.com/kestrelimg/imagepipeline/internal/queue"
	"github.com/kestrelimg/imagepipeline/internal/ratelimit"
	"github.com/kestrelimg/imagepipeline/internal/resumable"
	"github.com/kestrelimg/imagepipeline/internal/serial"
	"github.com/kestrelimg/imagepipeline/internal/session"
)

// Collaborators bundles every injected dependency the orchestrator needs.
// DiskCache and MemoryCache may be nil, disabling that stage entirely.
type Collaborators struct {
	Loader         core.DataLoader
	DiskCache      core.DiskCache
	MemoryCache    core.MemoryCache
	DecoderFactory core.DecoderFactory
}

// Orchestrator owns the pipeline's session table and drives every Task
// through admission, fetch, decode, and processing.
type Orchestrator struct {
	cfg  core.Config
	deps Collaborators
	log  *logger.Logger
	metr *obsmetrics.Metrics

	rateLimiter *ratelimit.Limiter
	resumable   *resumable.Store

	netQueue  *queue.Queue
	decQueue  *queue.Queue
	procQueue *queue.Queue

	pipelineCtx *serial.Executor
	deliveryCtx *serial.Executor

	nextTaskID uint64

	sessions map[string]*session.LoadSession

	// onMetrics, if set, is invoked on the delivery context once a task
	// reaches a terminal state, carrying its final TaskMetrics snapshot.
	onMetrics func(taskID uint64, m core.TaskMetrics)
}

// New builds an Orchestrator. cfg's queue caps are applied to the queues
// created here; cfg's disk cache limits are not read here, since deps.DiskCache
// is built by the caller. deps.DiskCache/MemoryCache being nil simply skips
// those stages.
func New(cfg core.Config, deps Collaborators, log *logger.Logger, metr *obsmetrics.Metrics) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	dataCap := cfg.DataLoadingQueueCap
	if dataCap <= 0 {
		dataCap = queue.DefaultDataLoadingCap
	}
	decCap := cfg.DecodingQueueCap
	if decCap <= 0 {
		decCap = queue.DefaultDecodingCap
	}
	procCap := cfg.ProcessingQueueCap
	if procCap <= 0 {
		procCap = queue.DefaultProcessingCap
	}

	return &Orchestrator{
		cfg:         cfg,
		deps:        deps,
		log:         log,
		metr:        metr,
		rateLimiter: ratelimit.NewDefault(),
		resumable:   resumable.NewStore(),
		netQueue:    queue.New(dataCap),
		decQueue:    queue.New(decCap),
		procQueue:   queue.New(procCap),
		pipelineCtx: serial.New(256),
		deliveryCtx: serial.New(256),
		sessions:    make(map[string]*session.LoadSession),
	}
}

// SetMetricsHook installs the callback invoked with each task's final
// TaskMetrics, on the delivery context, once the task reaches a terminal
// state.
func (o *Orchestrator) SetMetricsHook(fn func(taskID uint64, m core.TaskMetrics)) {
	o.onMetrics = fn
}

// Submit creates a new Task for req and begins driving it through the
// pipeline. It returns immediately; h's callbacks fire later, on the
// delivery context.
func (o *Orchestrator) Submit(req core.Request, h session.Handlers) *core.Task {
	o.nextTaskID++
	id := o.nextTaskID
	task := core.NewTask(id, req)
	task.Metrics.TaskID = id
	task.Metrics.StartDate = time.Now()

	if o.metr != nil {
		o.metr.TaskSubmitted(context.Background())
	}

	task.Token().Register(func() {
		o.pipelineCtx.Post(func() { o.onTaskCancelled(task) })
	})

	o.pipelineCtx.Post(func() { o.handleSubmit(task, h) })
	return task
}

// SetPriority updates task's priority and propagates it to any session and
// queue admission the task currently participates in.
func (o *Orchestrator) SetPriority(task *core.Task, p core.Priority) {
	task.SetPriority(p)
	o.pipelineCtx.Post(func() { o.repriority(task) })
}

// Cancel cancels task. Idempotent; safe to call more than once or after the
// task has already completed.
func (o *Orchestrator) Cancel(task *core.Task) { task.Cancel() }

// Close stops accepting new pipeline work and waits for both serial
// contexts to drain. It does not cancel in-flight tasks.
func (o *Orchestrator) Close() {
	o.pipelineCtx.Close()
	o.deliveryCtx.Close()
}

// syncPipeline runs fn on the pipeline context and blocks until it has
// run, letting a queue worker goroutine take a race-free snapshot of
// session state without holding the pipeline context open for the
// duration of its own (possibly slow) work.
func (o *Orchestrator) syncPipeline(fn func()) {
	done := make(chan struct{})
	o.pipelineCtx.Post(func() {
		fn()
		close(done)
	})
	<-done
}

// freshSessionKey builds a loading key that cannot coalesce with any other
// task, used when deduplication is disabled for a request.
func (o *Orchestrator) freshSessionKey(base string) string {
	return base + "#" + idgen.New()
}

func (o *Orchestrator) removeSession(sess *session.LoadSession) {
	delete(o.sessions, sess.Key)
	sess.CancelSrc.Cancel(nil)
}
