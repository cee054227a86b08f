package orchestrator

import (
	"context"
	"time"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/resumable"
	"github.com/kestrelimg/imagepipeline/internal/session"
)

// dispatchProgress delivers a byte-progress update to every subscriber of
// sess. Runs on the pipeline context; handler invocations themselves run on
// the delivery context.
func (o *Orchestrator) dispatchProgress(sess *session.LoadSession, completed, total int64) {
	for _, task := range sess.Subscribers() {
		task.SetProgress(completed, total)
		handlers, ok := sess.HandlersFor(task.ID)
		if !ok || handlers.OnProgress == nil {
			continue
		}
		prog := core.Progress{Completed: completed, Total: total}
		fn := handlers.OnProgress
		o.deliveryCtx.Post(func() { fn(prog) })
	}
}

// dispatchPartialImage delivers a progressive decode result to a single
// subscriber, carried on its next progress event.
func (o *Orchestrator) dispatchPartialImage(sess *session.LoadSession, task *core.Task, resp core.Response) {
	handlers, ok := sess.HandlersFor(task.ID)
	if !ok || handlers.OnProgress == nil {
		return
	}
	byteProgress := task.Progress()
	prog := core.Progress{Completed: byteProgress.Completed, Total: byteProgress.Total, PartialImage: &resp}
	fn := handlers.OnProgress
	o.deliveryCtx.Post(func() { fn(prog) })
}

// completeTask delivers a task's terminal result, retires it from sess, and
// tears the session down once it has no subscribers left. Runs on the
// pipeline context.
func (o *Orchestrator) completeTask(sess *session.LoadSession, task *core.Task, handlers session.Handlers, resp core.Response, err error) {
	ctx := context.Background()
	if err == nil {
		req := task.Request()
		if req.MemoryCacheWrite && o.deps.MemoryCache != nil {
			o.deps.MemoryCache.Put(req, resp)
		}
		if o.metr != nil {
			o.metr.TaskCompleted(ctx)
		}
	} else if o.metr != nil {
		o.metr.TaskFailed(ctx)
		o.log.With("session", sess.Key, "task", task.ID).Warn(ctx, "imagepipeline: task failed", "error", err)
	}

	task.Metrics.EndDate = time.Now()
	o.finishTaskMetrics(task)

	if handlers.OnCompletion != nil {
		fn := handlers.OnCompletion
		o.deliveryCtx.Post(func() { fn(resp, err) })
	}

	empty := sess.DeliverFinal(task.ID)
	task.SetSessionKey("")
	if empty {
		o.removeSession(sess)
	}
}

// completeTaskDirect delivers a terminal result for a task that never
// joined a Load Session (the memory-cache fast path).
func (o *Orchestrator) completeTaskDirect(task *core.Task, handlers session.Handlers, resp core.Response, err error) {
	ctx := context.Background()
	if err == nil && o.metr != nil {
		o.metr.TaskCompleted(ctx)
	} else if err != nil && o.metr != nil {
		o.metr.TaskFailed(ctx)
	}

	task.Metrics.EndDate = time.Now()
	o.finishTaskMetrics(task)

	if handlers.OnCompletion != nil {
		fn := handlers.OnCompletion
		o.deliveryCtx.Post(func() { fn(resp, err) })
	}
}

// failSession delivers a session-wide error (data loading or decoding
// failure) to every current subscriber and tears the session down.
func (o *Orchestrator) failSession(sess *session.LoadSession, err error) {
	sess.Metrics.EndDate = time.Now()
	for _, task := range sess.Subscribers() {
		handlers, ok := sess.HandlersFor(task.ID)
		if !ok {
			continue
		}
		o.completeTask(sess, task, handlers, core.Response{}, err)
	}
}

// onTaskCancelled runs when a task's cancellation token fires. It detaches
// the task from its session (if any) and tears the session down once
// empty. No completion callback is delivered for a cancelled task.
func (o *Orchestrator) onTaskCancelled(task *core.Task) {
	task.Metrics.WasCancelled = true
	task.Metrics.EndDate = time.Now()
	if o.metr != nil {
		o.metr.TaskCancelled(context.Background())
	}
	o.log.With("task", task.ID).Debug(context.Background(), "imagepipeline: task cancelled")
	o.finishTaskMetrics(task)

	key := task.SessionKey()
	if key == "" {
		return
	}
	sess, ok := o.sessions[key]
	if !ok {
		return
	}

	empty := sess.RemoveSubscriber(task.ID)
	task.SetSessionKey("")
	if empty {
		sess.Metrics.WasCancelled = true
		sess.Metrics.EndDate = time.Now()
		o.saveResumableSnapshot(sess)
		o.removeSession(sess)
	}
}

// saveResumableSnapshot persists whatever bytes sess had accumulated before
// being torn down, so a later request for the same URL can resume instead
// of restarting. Cancelling the last subscriber tears the session (and its
// in-flight network operation) down before that operation's own
// onNetworkComplete callback ever arrives, so this is the only place a
// cancellation-triggered abort gets a chance to record the partial bytes.
func (o *Orchestrator) saveResumableSnapshot(sess *session.LoadSession) {
	if !o.cfg.ResumableDataEnabled || len(sess.Buffer) == 0 {
		return
	}
	if sess.Response == nil || sess.Response.Validator == "" {
		return
	}
	o.resumable.Save(sess.URL, resumable.Data{
		Validator: sess.Response.Validator,
		Bytes:     append([]byte(nil), sess.Buffer...),
	})
}

// finishTaskMetrics delivers a task's final metrics snapshot to the
// installed hook, if any, on the delivery context.
func (o *Orchestrator) finishTaskMetrics(task *core.Task) {
	if o.onMetrics == nil {
		return
	}
	snapshot := task.Metrics
	id := task.ID
	fn := o.onMetrics
	o.deliveryCtx.Post(func() { fn(id, snapshot) })
}
