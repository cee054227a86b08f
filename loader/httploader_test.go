package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/core"
)

func TestHTTPLoaderStreamsChunksAndCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	l := New(srv.Client(), DefaultRetryConfig())
	req := core.NewRequest(srv.URL)

	var mu sync.Mutex
	var received []byte
	var completeErr error
	done := make(chan struct{})

	l.LoadData(context.Background(), req,
		func(chunk []byte, resp core.TransportResponse) {
			mu.Lock()
			received = append(received, chunk...)
			mu.Unlock()
			require.Equal(t, int64(5), resp.ExpectedLength)
		},
		func(err error) {
			completeErr = err
			close(done)
		},
	)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadData did not complete")
	}

	require.NoError(t, completeErr)
	require.Equal(t, "hello", string(received))
}

func TestHTTPLoaderSendsRangeHeaderOnResume(t *testing.T) {
	var gotRange, gotIfRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		gotIfRange = r.Header.Get("If-Range")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	l := New(srv.Client(), DefaultRetryConfig())
	req := core.NewRequest(srv.URL)
	req.ResumeOffset = 100
	req.ResumeValidator = `"etag-1"`

	done := make(chan struct{})
	l.LoadData(context.Background(), req, func([]byte, core.TransportResponse) {}, func(error) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadData did not complete")
	}

	require.Equal(t, "bytes=100-", gotRange)
	require.Equal(t, `"etag-1"`, gotIfRange)
}

func TestHTTPLoaderDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := New(srv.Client(), RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	req := core.NewRequest(srv.URL)

	done := make(chan struct{})
	var completeErr error
	l.LoadData(context.Background(), req, func([]byte, core.TransportResponse) {}, func(err error) {
		completeErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadData did not complete")
	}

	require.Error(t, completeErr)
	require.Equal(t, 1, attempts, "a 4xx must not be retried")
}

func TestHTTPLoaderRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	l := New(srv.Client(), RetryConfig{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})
	req := core.NewRequest(srv.URL)

	done := make(chan struct{})
	var completeErr error
	l.LoadData(context.Background(), req, func([]byte, core.TransportResponse) {}, func(err error) {
		completeErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LoadData did not complete")
	}

	require.NoError(t, completeErr)
	require.Equal(t, 3, attempts)
	require.Equal(t, uint32(1), l.RetryCount())
}
