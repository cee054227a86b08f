package core

import (
	"sync"
	"sync/atomic"

	"github.com/kestrelimg/imagepipeline/internal/cancel"
)

// Task is the pipeline's handle for one submitted load. It is created on
// submit and lives until its terminal callback (success, failure, or
// cancellation) has run.
type Task struct {
	ID uint64

	mu      sync.Mutex
	request Request

	completed atomic.Int64
	total     atomic.Int64

	cancelSrc *cancel.Source

	// sessionKey is the weak link to the Task's current Load Session. It is
	// read by the owner (via Progress) and written only by the
	// orchestrator on the pipeline context.
	sessionKey atomic.Value // string

	Metrics TaskMetrics
}

// NewTask allocates a Task with the given id and initial request.
func NewTask(id uint64, req Request) *Task {
	t := &Task{ID: id, request: req, cancelSrc: cancel.NewSource()}
	t.sessionKey.Store("")
	return t
}

// Request returns a snapshot of the task's current request.
func (t *Task) Request() Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.request
}

// SetPriority updates the task's request priority. The caller is
// responsible for notifying the orchestrator so any owning session or
// processing session can recompute its own priority.
func (t *Task) SetPriority(p Priority) {
	t.mu.Lock()
	t.request.Priority = p
	t.mu.Unlock()
}

// Priority returns the task's current priority.
func (t *Task) Priority() Priority {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.request.Priority
}

// Token returns the task's cancellation token.
func (t *Task) Token() cancel.Token { return t.cancelSrc.Token() }

// Cancel cancels the task. Idempotent.
func (t *Task) Cancel() { t.cancelSrc.Cancel(nil) }

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool { return t.cancelSrc.Token().IsCancelled() }

// SetSessionKey records the loading key of the session currently serving
// this task. Called only from the pipeline context.
func (t *Task) SetSessionKey(key string) { t.sessionKey.Store(key) }

// SessionKey returns the loading key of the task's current session, or the
// empty string if the task is not (or no longer) attached to one.
func (t *Task) SessionKey() string { return t.sessionKey.Load().(string) }

// SetProgress records a progress snapshot. Called only from the pipeline
// context, in the same order as the chunks that produced it.
func (t *Task) SetProgress(completed, total int64) {
	t.completed.Store(completed)
	t.total.Store(total)
}

// Progress lazily materializes the current (completed, total) byte counts.
// PartialImage is non-nil only on the specific progress event that carries a
// freshly available progressive decode result; plain byte-count updates
// leave it nil.
type Progress struct {
	Completed, Total int64
	PartialImage     *Response
}

// Progress returns a snapshot of the task's byte counters.
func (t *Task) Progress() Progress {
	return Progress{Completed: t.completed.Load(), Total: t.total.Load()}
}
