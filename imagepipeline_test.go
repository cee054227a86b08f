package imagepipeline_test

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	imagepipeline "github.com/kestrelimg/imagepipeline"
	"github.com/kestrelimg/imagepipeline/internal/core"
)

type stubLoader struct {
	data []byte
}

func (s stubLoader) LoadData(ctx context.Context, req core.Request, onChunk func([]byte, core.TransportResponse), onComplete func(error)) core.CancelFunc {
	go func() {
		onChunk(s.data, core.TransportResponse{ExpectedLength: int64(len(s.data))})
		onComplete(nil)
	}()
	return func() {}
}

func stubDecoderFactory(img image.Image) imagepipeline.DecoderFactoryFunc {
	return func(req core.Request, resp *core.TransportResponse, sample []byte) (core.Decoder, error) {
		return stubDecoder{img: img}, nil
	}
}

type stubDecoder struct{ img image.Image }

func (d stubDecoder) Decode(data []byte, isFinal bool) (core.Container, error) {
	return core.Container{Image: d.img, IsFinal: isFinal}, nil
}

func newTestPipeline(t *testing.T, img image.Image, opts ...imagepipeline.Option) *imagepipeline.Pipeline {
	t.Helper()
	base := []imagepipeline.Option{
		imagepipeline.WithDataLoader(stubLoader{data: []byte("data")}),
		imagepipeline.WithDecoderFactory(stubDecoderFactory(img)),
	}
	p, err := imagepipeline.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNewRequiresDecoderFactory(t *testing.T) {
	_, err := imagepipeline.New()
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := imagepipeline.New(imagepipeline.WithDecoderFactory(stubDecoderFactory(nil)))
	require.NoError(t, err)
	defer p.Close()
	require.NotNil(t, p)
}

func TestLoadImageDeliversCompletion(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	p := newTestPipeline(t, img)

	done := make(chan struct {
		resp imagepipeline.Response
		err  error
	}, 1)

	task := p.LoadImage(imagepipeline.NewRequest("http://example.test/a.png"), nil, func(resp imagepipeline.Response, err error) {
		done <- struct {
			resp imagepipeline.Response
			err  error
		}{resp, err}
	})
	require.NotZero(t, task.ID())

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Same(t, img, r.resp.Image)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadImage did not complete")
	}
}

func TestLoadImageDeliversProgress(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	p := newTestPipeline(t, img)

	progressed := make(chan imagepipeline.Progress, 4)
	done := make(chan struct{})

	p.LoadImage(imagepipeline.NewRequest("http://example.test/b.png"),
		func(pr imagepipeline.Progress) { progressed <- pr },
		func(imagepipeline.Response, error) { close(done) },
	)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadImage did not complete")
	}

	select {
	case pr := <-progressed:
		require.Equal(t, int64(4), pr.Total)
	default:
		t.Fatal("expected at least one progress update")
	}
}

func TestTaskCancelPreventsCompletion(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	p := newTestPipeline(t, img)

	called := make(chan struct{}, 1)
	task := p.LoadImage(imagepipeline.NewRequest("http://example.test/c.png"), nil, func(imagepipeline.Response, error) {
		called <- struct{}{}
	})
	task.Cancel()
	require.True(t, task.IsCancelled())

	select {
	case <-called:
		t.Fatal("cancelled task must not receive a completion callback")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTaskSetPriority(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	p := newTestPipeline(t, img)

	task := p.LoadImage(imagepipeline.NewRequest("http://example.test/d.png"), nil, nil)
	task.SetPriority(imagepipeline.PriorityHigh)
	require.Eventually(t, func() bool {
		return task.Priority() == imagepipeline.PriorityHigh
	}, time.Second, time.Millisecond)
}

func TestOnDidFinishCollectingMetrics(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	p := newTestPipeline(t, img)

	metrics := make(chan imagepipeline.TaskMetrics, 1)
	p.OnDidFinishCollectingMetrics(func(id uint64, m imagepipeline.TaskMetrics) {
		metrics <- m
	})

	done := make(chan struct{})
	p.LoadImage(imagepipeline.NewRequest("http://example.test/e.png"), nil, func(imagepipeline.Response, error) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadImage did not complete")
	}

	select {
	case m := <-metrics:
		require.False(t, m.EndDate.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("metrics hook was not invoked")
	}
}
