package session

import (
	"github.com/kestrelimg/imagepipeline/internal/cancel"
	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/queue"
)

// ProcessingSession is the shared resource for one processor run within a
// Load Session, keyed by (processor identity, source image identity). It
// is cancelled automatically once its subscriber set empties.
type ProcessingSession struct {
	Processor core.Processor
	Input     *core.Container

	CancelSrc *cancel.Source

	subscribers map[uint64]*subscriber
	priority    core.Priority
	IsFinal     bool

	// Handle admits the processor call itself to the processing queue, so
	// SetPriority can be propagated when a subscriber's priority changes.
	Handle *queue.Handle
}

// NewProcessingSession creates an empty Processing Session for the given
// processor and input image.
func NewProcessingSession(proc core.Processor, input *core.Container, isFinal bool, parent *cancel.Source) *ProcessingSession {
	return &ProcessingSession{
		Processor:   proc,
		Input:       input,
		CancelSrc:   parent.Child(),
		subscribers: make(map[uint64]*subscriber),
		IsFinal:     isFinal,
	}
}

// AddSubscriber attaches a task and recomputes priority.
func (p *ProcessingSession) AddSubscriber(task *core.Task, h Handlers) {
	p.subscribers[task.ID] = &subscriber{task: task, handlers: h}
	p.recomputePriority()
}

// RemoveSubscriber detaches a task. Reports whether the session is now
// empty and should be cancelled and dropped.
func (p *ProcessingSession) RemoveSubscriber(taskID uint64) (empty bool) {
	delete(p.subscribers, taskID)
	p.recomputePriority()
	return len(p.subscribers) == 0
}

// HasSubscriber reports whether taskID is registered.
func (p *ProcessingSession) HasSubscriber(taskID uint64) bool {
	_, ok := p.subscribers[taskID]
	return ok
}

// Subscribers returns a stable snapshot of the current subscriber set.
func (p *ProcessingSession) Subscribers() []*core.Task {
	out := make([]*core.Task, 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		out = append(out, sub.task)
	}
	return out
}

// HandlersFor returns the handlers for taskID, if still subscribed.
func (p *ProcessingSession) HandlersFor(taskID uint64) (Handlers, bool) {
	sub, ok := p.subscribers[taskID]
	if !ok {
		return Handlers{}, false
	}
	return sub.handlers, true
}

func (p *ProcessingSession) recomputePriority() {
	max := core.PriorityVeryLow
	for _, sub := range p.subscribers {
		if pr := sub.task.Priority(); pr > max {
			max = pr
		}
	}
	p.priority = max
}

// Priority is the max priority across the session's current subscribers.
func (p *ProcessingSession) Priority() core.Priority { return p.priority }
