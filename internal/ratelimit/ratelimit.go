package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces requests that share a key by at least delay.
type Limiter interface {
	Wait(ctx context.Context, key string, delay time.Duration) error
}

// VendorLimiter keeps one schedule per vendor key. Each caller reserves the
// next free slot under the lock and sleeps outside it, so a cancelled waiter
// returns at once and never holds up other keys.
type VendorLimiter struct {
	mu     sync.Mutex
	next   map[string]time.Time
	jitter time.Duration
	now    func() time.Time
}

// NewVendorLimiter returns a limiter that adds up to jitter of random extra
// delay on top of the requested one.
func NewVendorLimiter(jitter time.Duration) *VendorLimiter {
	return &VendorLimiter{
		next:   make(map[string]time.Time),
		jitter: jitter,
		now:    time.Now,
	}
}

func (l *VendorLimiter) Wait(ctx context.Context, key string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return sleep(ctx, l.reserve(key, delay))
}

func (l *VendorLimiter) reserve(key string, delay time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slot := l.next[key]
	if slot.Before(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.calculateDelay(delay))

	return slot.Sub(now)
}

func (l *VendorLimiter) calculateDelay(delay time.Duration) time.Duration {
	if l.jitter <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int64N(int64(l.jitter)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
