package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces backend requests so that no more than perMinute are
// started in any minute. A nil *RateLimiter never blocks.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time // earliest start of the next request
}

// NewRateLimiter returns a limiter for perMinute requests per minute, or nil
// when perMinute is not positive.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{interval: time.Minute / time.Duration(perMinute)}
}

// Wait reserves the next request slot and sleeps until it arrives. If ctx is
// done first the reservation is released and ctx.Err() is returned.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}

	rl.mu.Lock()
	now := time.Now()
	slot := rl.next
	if slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		rl.mu.Lock()
		if rl.next.Equal(slot.Add(rl.interval)) {
			rl.next = slot
		}
		rl.mu.Unlock()
		return ctx.Err()
	}
}
