package backend

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum spacing between consecutive calls to one provider.
// A single pacer is created per provider at process start and shared by every
// concurrent claim orchestration targeting that provider, so fan-out across
// agents never bursts past the provider's rate tolerance.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewPacer creates a pacer with the given minimum inter-call interval.
// A zero or negative interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until this caller's reserved call slot arrives, or until the
// context is done. Slots are handed out in arrival order under the lock, so
// N concurrent callers are spaced N*interval apart.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	var wait time.Duration
	if p.next.After(now) {
		wait = p.next.Sub(now)
		p.next = p.next.Add(p.interval)
	} else {
		p.next = now.Add(p.interval)
	}
	p.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
