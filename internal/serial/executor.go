// Package serial implements a single-goroutine, FIFO execution context. The
// pipeline orchestrator uses one instance as its "pipeline context" (all
// session-state mutation funnels through it) and a second as its "delivery
// context" (progress and completion callbacks run there, in submission
// order, off the pipeline context).
package serial

// Executor runs submitted funcs one at a time, in submission order, on a
// single dedicated goroutine.
type Executor struct {
	work chan func()
	done chan struct{}
}

// New starts an Executor's background goroutine. queueDepth bounds how many
// pending funcs may be buffered before Post blocks its caller.
func New(queueDepth int) *Executor {
	if queueDepth < 1 {
		queueDepth = 1
	}
	e := &Executor{
		work: make(chan func(), queueDepth),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer close(e.done)
	for fn := range e.work {
		fn()
	}
}

// Post enqueues fn to run on the executor's goroutine. It may block if the
// executor's queue is full.
func (e *Executor) Post(fn func()) { e.work <- fn }

// Close stops accepting new work and waits for the goroutine to drain what
// is already queued.
func (e *Executor) Close() {
	close(e.work)
	<-e.done
}
