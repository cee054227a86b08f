package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/queue"
)

func TestCapLimitsConcurrency(t *testing.T) {
	q := queue.New(2)

	var mu sync.Mutex
	active, maxActive := 0, 0
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		q.Submit(queue.Priority(0), func(finish func()) {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			<-release

			mu.Lock()
			active--
			mu.Unlock()
			finish()
		}, nil)
	}

	require.Eventually(t, func() bool {
		return q.InFlight() == 2
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, maxActive, 2)
}

func TestHigherPriorityAdmittedFirst(t *testing.T) {
	q := queue.New(1)

	block := make(chan struct{})
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Occupy the single slot so the rest queue up.
	wg.Add(1)
	q.Submit(queue.Priority(0), func(finish func()) {
		defer wg.Done()
		<-block
		finish()
	}, nil)

	require.Eventually(t, func() bool { return q.InFlight() == 1 }, time.Second, time.Millisecond)

	priorities := []queue.Priority{1, 3, 2}
	for _, p := range priorities {
		p := p
		wg.Add(1)
		q.Submit(p, func(finish func()) {
			defer wg.Done()
			mu.Lock()
			order = append(order, int(p))
			mu.Unlock()
			finish()
		}, nil)
	}

	require.Eventually(t, func() bool { return q.Waiting() == 3 }, time.Second, time.Millisecond)
	close(block)
	wg.Wait()

	require.Equal(t, []int{3, 2, 1}, order)
}

func TestCancelWaitingItemNeverRuns(t *testing.T) {
	q := queue.New(1)

	block := make(chan struct{})
	q.Submit(queue.Priority(0), func(finish func()) {
		<-block
		finish()
	}, nil)
	require.Eventually(t, func() bool { return q.InFlight() == 1 }, time.Second, time.Millisecond)

	ran := false
	h := q.Submit(queue.Priority(0), func(finish func()) {
		ran = true
		finish()
	}, nil)
	h.Cancel()
	close(block)

	require.Eventually(t, func() bool { return q.InFlight() == 0 }, time.Second, time.Millisecond)
	require.False(t, ran)
}

func TestCancelInFlightInvokesHook(t *testing.T) {
	q := queue.New(1)

	cancelled := make(chan struct{})
	done := make(chan struct{})
	h := q.Submit(queue.Priority(0), func(finish func()) {
		<-cancelled
		finish()
		close(done)
	}, func() { close(cancelled) })

	require.Eventually(t, func() bool { return q.InFlight() == 1 }, time.Second, time.Millisecond)
	h.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancel hook was not invoked")
	}
}
