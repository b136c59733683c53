package provider

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum delay between consecutive requests to one
// backend. It is an explicit owned value, not a module-level global, so
// independent adapters and tests never cross-contaminate. Share one Pacer
// across every client talking to the same backend to make the pacing
// process-wide.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewPacer creates a pacer with the given minimum inter-request interval.
// A zero or negative interval disables pacing.
func NewPacer(minInterval time.Duration) *Pacer {
	return &Pacer{interval: minInterval}
}

// Wait blocks until the pacer's next send slot. Concurrent callers are
// serialized: each reserves the slot after the previous caller's, so a burst
// of N requests spreads over N intervals. A nil pacer never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.interval)
	p.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
