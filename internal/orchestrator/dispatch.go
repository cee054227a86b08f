package orchestrator

import (
	"context"
	"time"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/queue"
	"github.com/kestrelimg/imagepipeline/internal/resumable"
	"github.com/kestrelimg/imagepipeline/internal/session"
)

// handleSubmit runs on the pipeline context. It resolves the memory cache
// fast path, finds or creates the owning Load Session, and subscribes the
// task to it.
func (o *Orchestrator) handleSubmit(task *core.Task, h session.Handlers) {
	req := task.Request()
	ctx := context.Background()

	if req.MemoryCacheRead && o.deps.MemoryCache != nil {
		if resp, ok := o.deps.MemoryCache.Get(req); ok {
			task.Metrics.IsMemoryCacheHit = true
			if o.metr != nil {
				o.metr.MemoryCacheHit(ctx)
			}
			o.completeTaskDirect(task, h, resp, nil)
			return
		}
	}

	key := req.LoadingKey()
	if !o.cfg.DeduplicationEnabled {
		key = o.freshSessionKey(key)
	}

	sess, exists := o.sessions[key]
	if exists {
		task.Metrics.WasSubscribedToExistingSession = true
		if o.metr != nil {
			o.metr.SessionCoalesced(ctx)
		}
		o.log.With("session", key, "task", task.ID).Debug(ctx, "imagepipeline: task joined existing session")
	} else {
		sess = session.New(key, req)
		o.sessions[key] = sess
		if o.metr != nil {
			o.metr.SessionCreated(ctx)
		}
		o.log.With("session", key, "task", task.ID).Info(ctx, "imagepipeline: session created")
	}

	sess.AddSubscriber(task, h)
	task.SetSessionKey(key)

	if !exists {
		o.admitSession(sess)
	}
}

// repriority propagates a task priority change to its Load Session, its
// Processing Sessions, and any queue admission already outstanding for
// them. Runs on the pipeline context.
func (o *Orchestrator) repriority(task *core.Task) {
	key := task.SessionKey()
	if key == "" {
		return
	}
	sess, ok := o.sessions[key]
	if !ok {
		return
	}

	sess.RecomputePriority()
	if sess.NetHandle != nil {
		sess.NetHandle.SetPriority(queue.Priority(sess.Priority()))
	}
	if sess.DecodeHandle != nil {
		sess.DecodeHandle.SetPriority(queue.Priority(sess.Priority()))
	}
	for _, ps := range sess.ProcessingSessions() {
		if ps.Handle != nil {
			ps.Handle.SetPriority(queue.Priority(ps.Priority()))
		}
	}
}

// admitSession takes a freshly created session through admission. When the
// rate limiter is enabled, waiting for a token happens off the pipeline
// context: rl.Wait can block for real time, and must never stall
// scheduling for every other session.
func (o *Orchestrator) admitSession(sess *session.LoadSession) {
	sess.State = session.StateAwaitingAdmission

	if !o.cfg.RateLimiterEnabled {
		o.probeDiskCache(sess)
		return
	}

	token := sess.CancelSrc.Token()
	go o.rateLimiter.Execute(context.Background(), token, func() {
		o.pipelineCtx.Post(func() {
			if _, ok := o.sessions[sess.Key]; !ok {
				return
			}
			o.probeDiskCache(sess)
		})
	})
}

// probeDiskCache checks the disk cache before opening a network fetch.
// Runs on the pipeline context; the disk cache lookup itself runs
// asynchronously off it.
func (o *Orchestrator) probeDiskCache(sess *session.LoadSession) {
	sess.State = session.StateProbingDiskCache
	sess.Metrics.DiskProbeStart = time.Now()

	cacheable := sess.Request.MemoryCacheRead || sess.Request.MemoryCacheWrite
	if o.deps.DiskCache == nil || !cacheable {
		o.download(sess)
		return
	}

	cancelFn := o.deps.DiskCache.Lookup(context.Background(), sess.URL, func(data []byte, found bool) {
		o.pipelineCtx.Post(func() {
			if _, ok := o.sessions[sess.Key]; !ok {
				return
			}
			o.onDiskProbeResult(sess, data, found)
		})
	})
	sess.CancelSrc.Token().Register(func() { cancelFn() })
}

func (o *Orchestrator) onDiskProbeResult(sess *session.LoadSession, data []byte, found bool) {
	sess.Metrics.DiskProbeEnd = time.Now()
	if !found {
		o.download(sess)
		return
	}
	sess.Buffer = data
	o.launchDecode(sess, true)
}

// download opens the network fetch stage, negotiating a resumable range
// request when a prior partial download is on file for this URL.
func (o *Orchestrator) download(sess *session.LoadSession) {
	sess.State = session.StateDownloading

	req := sess.Request
	if o.cfg.ResumableDataEnabled {
		if d, ok := o.resumable.Lookup(sess.URL); ok {
			sess.Resumable = d
			req.ResumeOffset = int64(len(d.Bytes))
			req.ResumeValidator = d.Validator
		}
	}

	box := new(core.CancelFunc)
	handle := o.netQueue.Submit(queue.Priority(sess.Priority()), func(finish func()) {
		sess.Metrics.NetworkStart = time.Now()

		onChunk := func(chunk []byte, resp core.TransportResponse) {
			o.pipelineCtx.Post(func() {
				if _, ok := o.sessions[sess.Key]; !ok {
					return
				}
				o.onNetworkChunk(sess, chunk, resp)
			})
		}
		onComplete := func(err error) {
			o.pipelineCtx.Post(func() { o.onNetworkComplete(sess, err, finish) })
		}

		*box = o.deps.Loader.LoadData(context.Background(), req, onChunk, onComplete)
	}, func() {
		if *box != nil {
			(*box)()
		}
	})

	sess.NetHandle = &handle
	sess.CancelSrc.Token().Register(func() { handle.Cancel() })
}

func (o *Orchestrator) onNetworkChunk(sess *session.LoadSession, chunk []byte, resp core.TransportResponse) {
	if sess.Buffer == nil {
		if len(sess.Resumable.Bytes) > 0 && resp.IsPartialContent {
			sess.Buffer = append(append([]byte(nil), sess.Resumable.Bytes...), chunk...)
			sess.Metrics.WasResumed = true
			sess.Metrics.ResumedDataCount = int64(len(sess.Resumable.Bytes))
			sess.Metrics.ServerConfirmedResume = true
		} else {
			sess.Buffer = append([]byte(nil), chunk...)
			if len(sess.Resumable.Bytes) > 0 {
				o.resumable.Clear(sess.URL)
			}
			sess.Resumable = resumable.Data{}
		}
	} else {
		sess.Buffer = append(sess.Buffer, chunk...)
	}

	sess.Response = &resp
	sess.Metrics.DownloadedDataCount = int64(len(sess.Buffer))
	if o.metr != nil {
		o.metr.DownloadedBytes(context.Background(), int64(len(chunk)))
	}

	o.dispatchProgress(sess, int64(len(sess.Buffer)), resp.ExpectedLength)

	if o.cfg.ProgressiveDecodingEnabled &&
		!sess.DecodeInFlight && !sess.FinalPending &&
		resp.ExpectedLength > 0 && int64(len(sess.Buffer)) < resp.ExpectedLength {
		o.launchDecode(sess, false)
	}
}

func (o *Orchestrator) onNetworkComplete(sess *session.LoadSession, err error, finish func()) {
	finish()

	if _, ok := o.sessions[sess.Key]; !ok {
		return
	}

	sess.Metrics.NetworkEnd = time.Now()
	if o.metr != nil {
		o.metr.ObserveNetworkDuration(context.Background(), sess.Metrics.NetworkEnd.Sub(sess.Metrics.NetworkStart).Seconds())
	}

	if err != nil {
		o.log.With("session", sess.Key).Warn(context.Background(), "imagepipeline: network fetch failed", "error", err)
		o.saveResumableSnapshot(sess)
		o.failSession(sess, core.NewDataLoadingError(err))
		return
	}

	if sess.DecodeInFlight {
		sess.FinalPending = true
		return
	}
	o.launchDecode(sess, true)
}
