package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/cancel"
	"github.com/kestrelimg/imagepipeline/internal/core"
)

func TestProcessingSessionSubscriberLifecycle(t *testing.T) {
	parent := cancel.NewSource()
	ps := NewProcessingSession(fakeProcessor{}, &core.Container{}, false, parent)

	a := newTestTask(t, 1, core.PriorityLow)
	b := newTestTask(t, 2, core.PriorityVeryHigh)

	ps.AddSubscriber(a, Handlers{})
	require.True(t, ps.HasSubscriber(a.ID))
	require.Equal(t, core.PriorityLow, ps.Priority())

	ps.AddSubscriber(b, Handlers{})
	require.Equal(t, core.PriorityVeryHigh, ps.Priority())

	require.False(t, ps.RemoveSubscriber(b.ID))
	require.Equal(t, core.PriorityLow, ps.Priority())

	require.True(t, ps.RemoveSubscriber(a.ID))
}

func TestProcessingSessionInheritsParentCancellation(t *testing.T) {
	parent := cancel.NewSource()
	ps := NewProcessingSession(fakeProcessor{}, &core.Container{}, false, parent)

	require.False(t, ps.CancelSrc.Token().IsCancelled())
	parent.Cancel(nil)
	require.True(t, ps.CancelSrc.Token().IsCancelled())
}

func TestProcessingSessionHandlersFor(t *testing.T) {
	parent := cancel.NewSource()
	ps := NewProcessingSession(fakeProcessor{}, &core.Container{}, false, parent)

	task := newTestTask(t, 1, core.PriorityNormal)
	called := false
	ps.AddSubscriber(task, Handlers{OnCompletion: func(core.Response, error) { called = true }})

	h, ok := ps.HandlersFor(task.ID)
	require.True(t, ok)
	h.OnCompletion(core.Response{}, nil)
	require.True(t, called)

	_, ok = ps.HandlersFor(999)
	require.False(t, ok)
}
