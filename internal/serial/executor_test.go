package serial_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/serial"
)

func TestExecutorRunsInSubmissionOrder(t *testing.T) {
	e := serial.New(8)
	defer e.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		e.Post(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 10)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestExecutorRunsOnASingleGoroutine(t *testing.T) {
	e := serial.New(4)
	defer e.Close()

	var running int
	var maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		e.Post(func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()

	require.Equal(t, 1, maxRunning)
}

func TestExecutorCloseDrainsQueuedWork(t *testing.T) {
	e := serial.New(8)

	var ran atomicBool
	e.Post(func() { ran.set(true) })
	e.Close()

	require.True(t, ran.get())
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}
