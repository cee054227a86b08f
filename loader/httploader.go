// Package loader provides the pipeline's default core.DataLoader: a
// net/http fetch with exponential-backoff retry, resumable range requests,
// and streamed chunk delivery.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kestrelimg/imagepipeline/internal/core"
)

const defaultChunkSize = 32 * 1024

// RetryConfig controls the exponential backoff schedule used to retry a
// failed fetch before giving up and reporting a DataLoadingError.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig matches the pipeline's documented retry policy: up to
// five retries after the first attempt (six attempts in all), starting at
// one second and growing by the backoff package's default multiplier, with
// jitter, to a thirty second cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, InitialInterval: time.Second, MaxInterval: 30 * time.Second}
}

// HTTPLoader implements core.DataLoader over net/http.
type HTTPLoader struct {
	client    *http.Client
	retry     RetryConfig
	chunkSize int
	log       *slog.Logger

	retries atomic.Uint32
}

// New builds an HTTPLoader. A nil client uses http.DefaultClient.
func New(client *http.Client, retry RetryConfig) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{client: client, retry: retry, chunkSize: defaultChunkSize, log: slog.Default()}
}

// LoadData fetches req.URL, streaming chunks to onChunk as they arrive and
// invoking onComplete exactly once when the fetch finishes, fails, or is
// cancelled. Retries happen between attempts, never mid-stream: once bytes
// have started flowing for an attempt, a failure ends that attempt and any
// bytes already delivered stay with the caller (the resumable data store
// picks them up from there).
func (h *HTTPLoader) LoadData(
	ctx context.Context,
	req core.Request,
	onChunk func(chunk []byte, resp core.TransportResponse),
	onComplete func(err error),
) core.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		err := h.runWithRetry(ctx, req, onChunk)
		onComplete(err)
	}()

	return func() { cancel() }
}

func (h *HTTPLoader) runWithRetry(ctx context.Context, req core.Request, onChunk func([]byte, core.TransportResponse)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.retry.InitialInterval
	policy.MaxInterval = h.retry.MaxInterval
	policy.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall clock

	attempts := 0
	bo := backoff.WithMaxRetries(policy, uint64(h.retry.MaxRetries))
	bo = backoff.WithContext(bo, ctx)

	return backoff.Retry(func() error {
		attempts++
		err := h.attempt(ctx, req, onChunk)
		if err != nil && attempts > 1 {
			h.retries.Add(1)
			h.log.Warn("loader: retrying fetch", "url", req.URL, "attempt", attempts, "error", err)
		}
		return err
	}, bo)
}

func (h *HTTPLoader) attempt(ctx context.Context, req core.Request, onChunk func([]byte, core.TransportResponse)) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("loader: build request: %w", err))
	}

	if req.ResumeOffset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", req.ResumeOffset))
		if req.ResumeValidator != "" {
			httpReq.Header.Set("If-Range", req.ResumeValidator)
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(fmt.Errorf("loader: fetch %s: status %d", req.URL, resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("loader: fetch %s: status %d", req.URL, resp.StatusCode)
	}

	meta := core.TransportResponse{
		StatusCode:       resp.StatusCode,
		ExpectedLength:   -1,
		Validator:        validator(resp),
		IsPartialContent: resp.StatusCode == http.StatusPartialContent,
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			meta.ExpectedLength = n
			if meta.IsPartialContent {
				meta.ExpectedLength += httpReqRangeOffset(httpReq)
			}
		}
	}

	buf := make([]byte, h.chunkSize)
	delivered := false
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk, meta)
			delivered = true
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if delivered {
				return backoff.Permanent(readErr)
			}
			return readErr
		}
	}
}

func validator(resp *http.Response) string {
	if et := resp.Header.Get("ETag"); et != "" {
		return et
	}
	return resp.Header.Get("Last-Modified")
}

func httpReqRangeOffset(req *http.Request) int64 {
	rng := req.Header.Get("Range")
	if rng == "" {
		return 0
	}
	var start int64
	_, _ = fmt.Sscanf(rng, "bytes=%d-", &start)
	return start
}

// RetryCount reports how many fetch attempts after the first one have
// failed across this loader's lifetime, for diagnostics. A fetch that fails
// once and then succeeds on its retry counts zero.
func (h *HTTPLoader) RetryCount() uint32 { return h.retries.Load() }
