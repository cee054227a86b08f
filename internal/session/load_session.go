// Package session holds the shared, subscriber-scoped state for one
// logical image load (LoadSession) and for one processor run within it
// (ProcessingSession). Both types are pure bookkeeping: every method here
// runs on the orchestrator's pipeline context and never blocks on I/O.
package session

import (
	"github.com/kestrelimg/imagepipeline/internal/cancel"
	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/queue"
	"github.com/kestrelimg/imagepipeline/internal/resumable"
)

// Handlers are the callbacks a subscriber wants invoked as its session
// progresses. OnCompletion fires at most once per task, per the pipeline's
// one-terminal-callback guarantee.
type Handlers struct {
	OnProgress   func(core.Progress)
	OnCompletion func(resp core.Response, err error)
}

// State names the coarse position of a Load Session in the pipeline state
// machine (see the pipeline orchestrator's dispatch transitions).
type State int

const (
	StateCreated State = iota
	StateAwaitingAdmission
	StateProbingDiskCache
	StateDownloading
	StateDecoding
	StateDelivering
	StateTerminal
)

type subscriber struct {
	task     *core.Task
	handlers Handlers
}

// processingKey identifies one Processing Session by processor identity
// plus the identity of the decoded image it runs on. Container pointers
// are compared, not their contents, matching "identity-equal" per spec.
type processingKey struct {
	processorID string
	image       *core.Container
}

// LoadSession is the shared resource for one logical load: one loading
// key, one buffer, one decoder, fanned out to every Task subscribed to it.
type LoadSession struct {
	Key string
	URL string
	// Request is a representative request for this session: the one that
	// created it. Only the fields that affect fetched bytes are ever read
	// from it (URL, cache policy); processor and priority always come from
	// the individual subscribing tasks.
	Request core.Request

	State State

	CancelSrc *cancel.Source

	subscribers map[uint64]*subscriber
	priority    core.Priority

	Buffer   []byte
	Response *core.TransportResponse

	Decoder        core.Decoder
	DecodeInFlight bool
	FinalPending   bool

	Resumable resumable.Data

	NetHandle    *queue.Handle
	DecodeHandle *queue.Handle

	processing map[processingKey]*ProcessingSession
	// pendingByTask implements the per-task processing backpressure rule:
	// while a task has an outstanding non-final Processing Session, later
	// partials for that task are dropped rather than queued (§4.5).
	pendingByTask map[uint64]*ProcessingSession

	Metrics core.SessionMetrics
}

// New creates an empty Load Session for the given loading key and request.
func New(key string, req core.Request) *LoadSession {
	return &LoadSession{
		Key:           key,
		URL:           req.URL,
		Request:       req,
		CancelSrc:     cancel.NewSource(),
		subscribers:   make(map[uint64]*subscriber),
		processing:    make(map[processingKey]*ProcessingSession),
		pendingByTask: make(map[uint64]*ProcessingSession),
		Metrics:       core.SessionMetrics{SessionKey: key},
	}
}

// AddSubscriber attaches a task to the session and recomputes priority.
func (s *LoadSession) AddSubscriber(task *core.Task, h Handlers) {
	s.subscribers[task.ID] = &subscriber{task: task, handlers: h}
	s.RecomputePriority()
}

// RemoveSubscriber detaches a task, cancelling and dropping any Processing
// Session that becomes empty as a result. It reports whether the session
// now has no subscribers left, in which case the caller must cancel and
// remove it.
func (s *LoadSession) RemoveSubscriber(taskID uint64) (empty bool) {
	delete(s.subscribers, taskID)
	delete(s.pendingByTask, taskID)

	for key, ps := range s.processing {
		if ps.RemoveSubscriber(taskID) {
			ps.CancelSrc.Cancel(nil)
			delete(s.processing, key)
		}
	}

	s.RecomputePriority()
	return len(s.subscribers) == 0
}

// SubscriberCount reports how many tasks are currently subscribed.
func (s *LoadSession) SubscriberCount() int { return len(s.subscribers) }

// Subscribers returns a stable snapshot of the current subscriber set, safe
// to range over even if the caller mutates the session afterward.
func (s *LoadSession) Subscribers() []*core.Task {
	out := make([]*core.Task, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub.task)
	}
	return out
}

// Priority is the max priority across all current subscribers.
func (s *LoadSession) Priority() core.Priority { return s.priority }

// RecomputePriority recalculates the session's priority as the max across
// its current subscribers' task priorities.
func (s *LoadSession) RecomputePriority() {
	max := core.PriorityVeryLow
	for _, sub := range s.subscribers {
		if p := sub.task.Priority(); p > max {
			max = p
		}
	}
	s.priority = max
}

// HandlersFor returns the handlers registered for taskID, if it is still
// subscribed.
func (s *LoadSession) HandlersFor(taskID uint64) (Handlers, bool) {
	sub, ok := s.subscribers[taskID]
	if !ok {
		return Handlers{}, false
	}
	return sub.handlers, true
}

// DeliverFinal marks taskID as done and removes it from the subscriber set,
// along with any Processing Session it is still attached to. The caller is
// expected to have already invoked its OnCompletion handler.
func (s *LoadSession) DeliverFinal(taskID uint64) (empty bool) {
	delete(s.subscribers, taskID)
	delete(s.pendingByTask, taskID)

	for key, ps := range s.processing {
		if ps.RemoveSubscriber(taskID) {
			ps.CancelSrc.Cancel(nil)
			delete(s.processing, key)
		}
	}

	s.RecomputePriority()
	return len(s.subscribers) == 0
}

// FindProcessing looks up an existing Processing Session for (processorID,
// image), by identity of the decoded container.
func (s *LoadSession) FindProcessing(processorID string, image *core.Container) (*ProcessingSession, bool) {
	ps, ok := s.processing[processingKey{processorID: processorID, image: image}]
	return ps, ok
}

// AddProcessing registers a new Processing Session.
func (s *LoadSession) AddProcessing(processorID string, image *core.Container, ps *ProcessingSession) {
	s.processing[processingKey{processorID: processorID, image: image}] = ps
}

// RemoveProcessing drops a finished Processing Session.
func (s *LoadSession) RemoveProcessing(processorID string, image *core.Container) {
	delete(s.processing, processingKey{processorID: processorID, image: image})
}

// ProcessingSessions returns a snapshot of every Processing Session
// currently active under this Load Session, for priority propagation.
func (s *LoadSession) ProcessingSessions() []*ProcessingSession {
	out := make([]*ProcessingSession, 0, len(s.processing))
	for _, ps := range s.processing {
		out = append(out, ps)
	}
	return out
}

// PendingForTask returns the Processing Session a task is currently
// waiting on a non-final result from, if any.
func (s *LoadSession) PendingForTask(taskID uint64) (*ProcessingSession, bool) {
	ps, ok := s.pendingByTask[taskID]
	return ps, ok
}

// SetPendingForTask records that taskID is now waiting on a non-final
// result from ps.
func (s *LoadSession) SetPendingForTask(taskID uint64, ps *ProcessingSession) {
	s.pendingByTask[taskID] = ps
}

// ClearPendingForTask drops the per-task backpressure record, called once a
// task's final image has been dispatched to processing (superseding any
// outstanding partial) or once a pending partial's own outcome has just been
// delivered. If taskID was still pending on a Processing Session, it is also
// unsubscribed from it, cancelling and dropping that session if it empties
// as a result — mirroring what RemoveSubscriber does on the cancellation
// path, so a superseded Processing Session never gets a chance to deliver a
// stray progress event for a task whose final image has already moved on.
func (s *LoadSession) ClearPendingForTask(taskID uint64) {
	ps, ok := s.pendingByTask[taskID]
	delete(s.pendingByTask, taskID)
	if !ok {
		return
	}

	if ps.RemoveSubscriber(taskID) {
		ps.CancelSrc.Cancel(nil)
		for key, v := range s.processing {
			if v == ps {
				delete(s.processing, key)
				break
			}
		}
	}
}
