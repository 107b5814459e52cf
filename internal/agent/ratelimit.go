package agent

import (
	"context"
	"sync"
	"time"
)

// Throttle is a token bucket shared by every webhook flow. It bounds how
// fast inbound traffic can drive the completion backend; a caller whose
// context ends while waiting gets the context error and no token.
type Throttle struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64 // tokens per second
	last   time.Time
	now    func() time.Time
}

// NewThrottle returns nil when perMinute is zero, which Engine treats as
// unthrottled.
func NewThrottle(perMinute float64, burst int) *Throttle {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	t := &Throttle{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   perMinute / 60.0,
		now:    time.Now,
	}
	t.last = t.now()
	return t
}

// Wait blocks until a token is available or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for {
		wait := t.take()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token and returns 0, or returns how long until one refills.
func (t *Throttle) take() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.tokens += now.Sub(t.last).Seconds() * t.rate
	if t.tokens > t.burst {
		t.tokens = t.burst
	}
	t.last = now

	if t.tokens >= 1 {
		t.tokens--
		return 0
	}
	return time.Duration((1 - t.tokens) / t.rate * float64(time.Second))
}
