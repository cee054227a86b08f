// Package queue implements the bounded, priority-aware operation admission
// queue used to cap concurrency on the network, decode, and processing
// stages of the pipeline (see the pipeline orchestrator's Downloading,
// Decoding, and Processing dispatch transitions).
//
// Items are admitted in priority order, highest first, with ties broken by
// enqueue order (FIFO). Once an item is admitted it runs to completion; a
// priority change never preempts an in-flight item, only the still-waiting
// region is re-sorted.
package queue

import (
	"container/heap"
	"sync"
)

// Priority mirrors the ordered priority enum shared with the rest of the
// pipeline: higher values are serviced first.
type Priority int32

// Default in-flight caps for the three pipeline stages.
const (
	DefaultDataLoadingCap = 6
	DefaultDecodingCap    = 1
	DefaultProcessingCap  = 2
)

// item is one admission request. Its zero value is never used directly;
// items are always constructed by Queue.Submit.
type item struct {
	id       uint64
	seq      uint64
	priority Priority
	index    int // heap index, maintained by container/heap

	run    func(finish func())
	cancel func() // invoked once if the item is cancelled while in flight

	mu        sync.Mutex
	state     itemState
	cancelled bool
}

type itemState int

const (
	stateWaiting itemState = iota
	stateInFlight
	stateDone
)

// Handle lets a caller adjust or cancel a previously submitted item.
type Handle struct {
	q    *Queue
	item *item
}

// SetPriority updates the item's priority. If the item is still waiting,
// the waiting region is re-sorted; an already in-flight item is unaffected
// until it finishes.
func (h Handle) SetPriority(p Priority) {
	h.q.mu.Lock()
	defer h.q.mu.Unlock()

	h.item.priority = p
	if h.item.index >= 0 {
		heap.Fix(&h.q.waiting, h.item.index)
	}
}

// Cancel removes a waiting item immediately, or signals an in-flight item's
// cancel hook. Idempotent.
func (h Handle) Cancel() {
	h.item.mu.Lock()
	already := h.item.cancelled
	h.item.cancelled = true
	state := h.item.state
	h.item.mu.Unlock()
	if already {
		return
	}

	if state == stateWaiting {
		h.q.mu.Lock()
		if h.item.index >= 0 {
			heap.Remove(&h.q.waiting, h.item.index)
		}
		h.q.mu.Unlock()
		return
	}

	if state == stateInFlight && h.item.cancel != nil {
		h.item.cancel()
	}
}

// Queue is a FIFO admission queue bounded by a maximum in-flight count.
type Queue struct {
	mu       sync.Mutex
	cap      int
	nextID   uint64
	nextSeq  uint64
	waiting  waitingHeap
	inFlight map[uint64]*item
}

// New creates a Queue that admits at most cap items concurrently.
func New(cap int) *Queue {
	if cap < 1 {
		cap = 1
	}
	return &Queue{cap: cap, inFlight: make(map[uint64]*item)}
}

// Submit enqueues run for admission at the given priority. run is invoked
// once admitted, off the caller's goroutine, and must call the finish
// callback it receives exactly once when the operation is complete. cancel,
// if non-nil, is invoked at most once if the item is cancelled after having
// been admitted.
func (q *Queue) Submit(priority Priority, run func(finish func()), cancel func()) Handle {
	q.mu.Lock()
	q.nextID++
	q.nextSeq++
	it := &item{
		id:       q.nextID,
		seq:      q.nextSeq,
		priority: priority,
		index:    -1,
		run:      run,
		cancel:   cancel,
		state:    stateWaiting,
	}
	heap.Push(&q.waiting, it)
	q.dispatchLocked()
	q.mu.Unlock()

	return Handle{q: q, item: it}
}

// InFlight reports the current number of admitted, not-yet-finished items.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Waiting reports the current number of items still waiting for admission.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

// dispatchLocked admits waiting items while the in-flight cap allows it.
// Caller must hold q.mu.
func (q *Queue) dispatchLocked() {
	for len(q.inFlight) < q.cap && q.waiting.Len() > 0 {
		it := heap.Pop(&q.waiting).(*item)

		it.mu.Lock()
		if it.cancelled {
			it.mu.Unlock()
			continue
		}
		it.state = stateInFlight
		it.mu.Unlock()

		q.inFlight[it.id] = it
		go q.run(it)
	}
}

// run invokes an admitted item's body. finish may be called synchronously
// within it.run, or later from a completely different goroutine (e.g. a
// network completion callback) — the queue only reclaims the slot once
// finish actually runs.
func (q *Queue) run(it *item) {
	var once sync.Once
	finish := func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.inFlight, it.id)
			it.mu.Lock()
			it.state = stateDone
			it.mu.Unlock()
			q.dispatchLocked()
			q.mu.Unlock()
		})
	}

	it.run(finish)
}

// waitingHeap orders items by priority (descending) then enqueue sequence
// (ascending), implementing container/heap.Interface.
type waitingHeap []*item

func (h waitingHeap) Len() int { return len(h) }

func (h waitingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waitingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitingHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *waitingHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
