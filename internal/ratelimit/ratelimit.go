// Package ratelimit implements per-key sliding-window admission control with
// a short burst sub-window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultPerMinute is the trailing-60s ceiling applied per key.
	DefaultPerMinute = 60
	// DefaultBurst is the trailing-1s ceiling applied per key.
	DefaultBurst = 10

	window      = time.Minute
	burstWindow = time.Second
	pollEvery   = 50 * time.Millisecond
)

// Limiter admits requests per key while the trailing-minute count stays below
// PerMinute and the trailing-second count stays below Burst. Keys never
// contend with each other.
type Limiter struct {
	perMinute int
	burst     int
	now       func() time.Time

	mu   sync.Mutex
	keys map[string]*bucket
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits overrides the per-minute and burst ceilings.
func WithLimits(perMinute, burst int) Option {
	return func(l *Limiter) {
		if perMinute > 0 {
			l.perMinute = perMinute
		}
		if burst > 0 {
			l.burst = burst
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter with the default ceilings.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		perMinute: DefaultPerMinute,
		burst:     DefaultBurst,
		now:       time.Now,
		keys:      make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits or rejects one request for key without blocking. Both window
// checks and the timestamp append happen under the key's lock so concurrent
// checks on the same key cannot race past the ceiling.
func (l *Limiter) Check(key string) bool {
	b := l.bucket(key)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.trim(now)
	if len(b.stamps) >= l.perMinute {
		return false
	}
	recent := 0
	for i := len(b.stamps) - 1; i >= 0; i-- {
		if now.Sub(b.stamps[i]) >= burstWindow {
			break
		}
		recent++
	}
	if recent >= l.burst {
		return false
	}
	b.stamps = append(b.stamps, now)
	return true
}

// Wait polls Check until the request is admitted or ctx is done. It returns
// true on admission. This is the only intentionally blocking call in the
// limiter.
func (l *Limiter) Wait(ctx context.Context, key string) bool {
	if l.Check(key) {
		return true
	}
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if l.Check(key) {
				return true
			}
		}
	}
}

// Reset clears the recorded window for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	b, ok := l.keys[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	b.mu.Lock()
	b.stamps = nil
	b.mu.Unlock()
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.keys[key]
	if !ok {
		b = &bucket{}
		l.keys[key] = b
	}
	return b
}

// trim drops timestamps older than the trailing window. Caller holds b.mu.
func (b *bucket) trim(now time.Time) {
	cut := 0
	for cut < len(b.stamps) && now.Sub(b.stamps[cut]) >= window {
		cut++
	}
	if cut > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[cut:]...)
	}
}
