package orchestrator

import (
	"context"
	"time"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/queue"
	"github.com/kestrelimg/imagepipeline/internal/session"
)

// samplePeek bounds how many leading bytes a DecoderFactory is shown before
// enough data has accumulated to build the full buffer; most format sniffs
// only need a small header.
const samplePeekBytes = 512

func samplePeek(buf []byte) []byte {
	if len(buf) > samplePeekBytes {
		return buf[:samplePeekBytes]
	}
	return buf
}

// launchDecode admits one decode operation for sess. At most one decode is
// ever in flight per session (DecodeInFlight), enforced regardless of the
// configured decode queue cap. The buffer is intentionally NOT snapshotted
// here: the operation body reads it via syncPipeline once it actually
// starts running, so a decode that waits behind others in the queue always
// sees the freshest bytes rather than a stale enqueue-time copy.
func (o *Orchestrator) launchDecode(sess *session.LoadSession, isFinal bool) {
	sess.DecodeInFlight = true
	if isFinal {
		sess.FinalPending = false
	}
	sess.Metrics.DecodeStart = time.Now()

	handle := o.decQueue.Submit(queue.Priority(sess.Priority()), func(finish func()) {
		defer finish()

		var snapshot []byte
		var dec core.Decoder
		var resp *core.TransportResponse
		var req core.Request
		var cancelled bool
		o.syncPipeline(func() {
			cancelled = sess.CancelSrc.Token().IsCancelled()
			snapshot = append([]byte(nil), sess.Buffer...)
			dec = sess.Decoder
			resp = sess.Response
			req = sess.Request
		})
		if cancelled {
			return
		}

		if dec == nil {
			newDec, err := o.deps.DecoderFactory.NewDecoder(req, resp, samplePeek(snapshot))
			if err != nil {
				o.pipelineCtx.Post(func() { o.onDecodeFailed(sess, err) })
				return
			}
			if newDec == nil {
				o.pipelineCtx.Post(func() { o.onDecodeInconclusive(sess, isFinal) })
				return
			}
			dec = newDec
			o.syncPipeline(func() { sess.Decoder = dec })
		}

		container, err := dec.Decode(snapshot, isFinal)
		if err != nil {
			o.pipelineCtx.Post(func() { o.onDecodeFailed(sess, err) })
			return
		}
		if !isFinal && container.ScanNumber == nil {
			if sc, ok := dec.(core.ScanCounter); ok {
				n := sc.NumberOfScans()
				container.ScanNumber = &n
			}
		}
		o.pipelineCtx.Post(func() { o.onDecodeSucceeded(sess, container, isFinal) })
	}, nil)

	sess.DecodeHandle = &handle
	h := handle
	sess.CancelSrc.Token().Register(func() { h.Cancel() })
}

func (o *Orchestrator) onDecodeFailed(sess *session.LoadSession, err error) {
	if _, ok := o.sessions[sess.Key]; !ok {
		return
	}
	sess.DecodeInFlight = false
	sess.Metrics.DecodeEnd = time.Now()
	o.log.With("session", sess.Key).Error(context.Background(), "imagepipeline: decode failed", "error", err)
	o.failSession(sess, core.NewDecodingError(err.Error()))
}

// onDecodeInconclusive handles a DecoderFactory that could not yet decide
// on a format: harmless for a partial (more bytes may arrive), fatal for a
// final decode where no more bytes are coming.
func (o *Orchestrator) onDecodeInconclusive(sess *session.LoadSession, isFinal bool) {
	if _, ok := o.sessions[sess.Key]; !ok {
		return
	}
	sess.DecodeInFlight = false
	if isFinal {
		o.failSession(sess, core.NewDecodingError("no decoder recognized the response"))
		return
	}
	if sess.FinalPending {
		o.launchDecode(sess, true)
	}
}

func (o *Orchestrator) onDecodeSucceeded(sess *session.LoadSession, container core.Container, isFinal bool) {
	if _, ok := o.sessions[sess.Key]; !ok {
		return
	}
	sess.DecodeInFlight = false
	sess.Metrics.DecodeEnd = time.Now()
	if o.metr != nil {
		o.metr.ObserveDecodeDuration(context.Background(), sess.Metrics.DecodeEnd.Sub(sess.Metrics.DecodeStart).Seconds())
	}

	c := &container

	if isFinal {
		if o.deps.DiskCache != nil && (sess.Request.MemoryCacheRead || sess.Request.MemoryCacheWrite) {
			o.deps.DiskCache.Store(sess.URL, append([]byte(nil), sess.Buffer...))
		}
		o.resumable.Clear(sess.URL)
	}

	for _, task := range sess.Subscribers() {
		o.dispatchProcessing(sess, task, c)
	}

	if sess.FinalPending && !isFinal {
		o.launchDecode(sess, true)
	}
}
