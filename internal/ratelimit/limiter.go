// Package ratelimit gates admission of new session work with a token bucket,
// so a burst of submissions cannot open more network operations than the
// downstream transport can absorb.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kestrelimg/imagepipeline/internal/cancel"
)

// Default token bucket parameters, per the pipeline's admission policy: a
// burst of 30 admissions with steady-state refill of 25 per second.
const (
	DefaultBurst = 30
	DefaultRPS   = 25
)

// Limiter is a thread-safe token-bucket gate. Execute never imposes a
// minimum latency: when the bucket is non-empty the callback runs
// immediately on the calling goroutine.
type Limiter struct {
	mu sync.RWMutex
	rl *rate.Limiter
}

// New creates a Limiter with the given requests-per-second and burst size.
func New(rps float64, burst int) *Limiter {
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}
}

// NewDefault creates a Limiter using the pipeline's default policy.
func NewDefault() *Limiter { return New(DefaultRPS, DefaultBurst) }

// Execute schedules work to run as soon as the bucket permits it. If token
// is already cancelled when a slot becomes available, work is dropped
// silently and Execute returns without having run it.
func (l *Limiter) Execute(ctx context.Context, token cancel.Token, work func()) {
	l.mu.RLock()
	rl := l.rl
	l.mu.RUnlock()

	if err := rl.Wait(ctx); err != nil {
		return
	}
	if token.IsCancelled() {
		return
	}
	work()
}

// UpdateLimits adjusts the bucket's rate and burst size at runtime.
func (l *Limiter) UpdateLimits(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rl.SetLimit(rate.Limit(rps))
	l.rl.SetBurst(burst)
}
