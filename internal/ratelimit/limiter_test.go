package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/cancel"
	"github.com/kestrelimg/imagepipeline/internal/ratelimit"
)

func TestExecuteRunsImmediatelyWhenBucketNonEmpty(t *testing.T) {
	l := ratelimit.New(1000, 5)
	tok := cancel.NewSource().Token()

	start := time.Now()
	ran := false
	l.Execute(context.Background(), tok, func() { ran = true })

	require.True(t, ran)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestExecuteDropsWorkWhenTokenCancelledAtRunTime(t *testing.T) {
	l := ratelimit.New(1, 1)
	src := cancel.NewSource()

	// Consume the single burst token.
	l.Execute(context.Background(), src.Token(), func() {})
	src.Cancel(nil)

	ran := false
	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	l.Execute(ctx, src.Token(), func() { ran = true })

	require.False(t, ran)
}
