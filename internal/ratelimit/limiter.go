package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 2 * time.Minute
)

// Limiter paces requests to one upstream API. After a 429 it also holds
// callers back for an exponentially growing cool-down.
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu          sync.Mutex
	backoff     time.Duration
	cooldownEnd time.Time
	now         func() time.Time
}

// NewLimiter creates a limiter allowing perMinute requests per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	rps := float64(perMinute) / 60.0
	// Burst of up to 5 requests or 1/10th of the per-minute limit
	burst := min(max(perMinute/10, 1), 5)

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
		backoff: initialBackoff,
		now:     time.Now,
	}
}

// Wait blocks until any cool-down has passed and a token is available
func (l *Limiter) Wait(ctx context.Context) error {
	if d := l.cooldownRemaining(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may happen now without waiting
func (l *Limiter) Allow() bool {
	if l.cooldownRemaining() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// SignalRateLimited records a 429 response. retryAfter, when positive,
// overrides the exponential schedule.
func (l *Limiter) SignalRateLimited(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wait := l.backoff
	if retryAfter > 0 {
		wait = min(retryAfter, maxBackoff)
	}
	l.cooldownEnd = l.now().Add(wait)

	l.backoff = min(l.backoff*2, maxBackoff)
}

// ResetBackoff clears the cool-down after a successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
	l.cooldownEnd = time.Time{}
}

// Backoff returns the cool-down the next 429 will trigger
func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

func (l *Limiter) cooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cooldownEnd.IsZero() {
		return 0
	}
	return l.cooldownEnd.Sub(l.now())
}
