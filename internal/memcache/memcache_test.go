package memcache

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/core"
)

func TestCacheGetPut(t *testing.T) {
	c := New(time.Minute, time.Minute)
	req := core.NewRequest("https://example.test/a.jpg")

	_, ok := c.Get(req)
	require.False(t, ok)

	resp := core.Response{}
	c.Put(req, resp)

	got, ok := c.Get(req)
	require.True(t, ok)
	require.Equal(t, resp, got)
}

func TestCacheKeyIncludesProcessorIdentity(t *testing.T) {
	c := New(time.Minute, time.Minute)

	plain := core.NewRequest("https://example.test/a.jpg")
	c.Put(plain, core.Response{})

	withProc := core.NewRequest("https://example.test/a.jpg")
	withProc.Processor = testProcessor{}

	_, ok := c.Get(withProc)
	require.False(t, ok, "different processor identity must not share a cache entry")
}

type testProcessor struct{}

func (testProcessor) Identity() string { return "resize" }
func (testProcessor) Process(context.Context, core.Container, core.Request) (image.Image, error) {
	return nil, nil
}
