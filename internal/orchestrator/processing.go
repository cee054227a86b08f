package orchestrator

import (
	"context"
	"image"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/queue"
	"github.com/kestrelimg/imagepipeline/internal/session"
)

// dispatchProcessing routes one decoded container to task's processor, or
// straight to delivery when there is none (or animated handling says to
// pass it through unprocessed). Runs on the pipeline context.
func (o *Orchestrator) dispatchProcessing(sess *session.LoadSession, task *core.Task, container *core.Container) {
	req := task.Request()

	passThrough := req.Processor == nil || (container.Animated && o.cfg.AnimatedImageDataEnabled)
	if passThrough {
		handlers, ok := sess.HandlersFor(task.ID)
		if !ok {
			return
		}
		resp := core.Response{Image: container.Image, TransportResponse: sess.Response, ScanNumber: container.ScanNumber}
		if container.IsFinal {
			o.completeTask(sess, task, handlers, resp, nil)
		} else {
			o.dispatchPartialImage(sess, task, resp)
		}
		return
	}

	if !container.IsFinal {
		if _, has := sess.PendingForTask(task.ID); has {
			// This task already has a non-final Processing Session
			// outstanding; drop this partial rather than queue behind it.
			return
		}
	}

	procID := req.ProcessorIdentity()
	handlers, _ := sess.HandlersFor(task.ID)

	ps, exists := sess.FindProcessing(procID, container)
	if !exists {
		ps = session.NewProcessingSession(req.Processor, container, container.IsFinal, sess.CancelSrc)
		sess.AddProcessing(procID, container, ps)
		ps.AddSubscriber(task, handlers)
		o.launchProcessing(sess, procID, container, ps)
	} else {
		ps.AddSubscriber(task, handlers)
	}

	if container.IsFinal {
		sess.ClearPendingForTask(task.ID)
	} else {
		sess.SetPendingForTask(task.ID, ps)
	}
}

func (o *Orchestrator) launchProcessing(sess *session.LoadSession, procID string, container *core.Container, ps *session.ProcessingSession) {
	subs := ps.Subscribers()
	if len(subs) == 0 {
		return
	}
	req := subs[0].Request()

	handle := o.procQueue.Submit(queue.Priority(ps.Priority()), func(finish func()) {
		defer finish()
		img, err := ps.Processor.Process(context.Background(), *container, req)
		o.pipelineCtx.Post(func() { o.onProcessingResult(sess, procID, container, ps, img, err) })
	}, nil)

	ps.Handle = &handle
	h := handle
	ps.CancelSrc.Token().Register(func() { h.Cancel() })
}

// onProcessingResult fans a Processing Session's outcome out to every task
// still subscribed to it, then retires the session. Runs on the pipeline
// context.
func (o *Orchestrator) onProcessingResult(sess *session.LoadSession, procID string, container *core.Container, ps *session.ProcessingSession, img image.Image, err error) {
	if _, ok := o.sessions[sess.Key]; !ok {
		return
	}

	for _, task := range ps.Subscribers() {
		handlers, ok := ps.HandlersFor(task.ID)
		if !ok {
			continue
		}

		if !container.IsFinal {
			// This Processing Session is done; the task is now free to have
			// a later partial dispatched to a new one.
			sess.ClearPendingForTask(task.ID)
		}

		if err != nil {
			if container.IsFinal {
				o.completeTask(sess, task, handlers, core.Response{}, core.NewProcessingError(err.Error()))
			}
			continue
		}

		resp := core.Response{Image: img, TransportResponse: sess.Response, ScanNumber: container.ScanNumber}
		if container.IsFinal {
			o.completeTask(sess, task, handlers, resp, nil)
		} else {
			o.dispatchPartialImage(sess, task, resp)
		}
	}

	sess.RemoveProcessing(procID, container)
}
