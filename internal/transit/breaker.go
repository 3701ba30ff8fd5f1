package transit

import (
	"sync"
	"time"
)

// breaker is a consecutive-failure circuit breaker with exponential
// cooldown:
//   - On success: resets failures and closes the circuit.
//   - On failure: increments failures and, once failures >= trip,
//     opens the circuit for base * 2^(failures-trip), capped at max.
//
// ErrNoRoute is an answer, not a failure, and does not count.
type breaker struct {
	trip      int
	baseDelay time.Duration
	maxDelay  time.Duration

	mu        sync.Mutex
	fails     int
	openUntil time.Time
}

func newBreaker(trip int, base, maxDelay time.Duration) *breaker {
	if trip == 0 {
		trip = 5
	}
	if base <= 0 {
		base = 30 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Minute
	}
	return &breaker{trip: trip, baseDelay: base, maxDelay: maxDelay}
}

// allow reports whether a provider call may be attempted at now.
func (b *breaker) allow(now time.Time) bool {
	if b == nil || b.trip < 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openUntil.IsZero() || !now.Before(b.openUntil)
}

func (b *breaker) record(now time.Time, err error) {
	if b == nil || b.trip < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		return
	}

	b.fails++
	if b.fails < b.trip {
		return
	}
	d := b.baseDelay
	for i := 0; i < b.fails-b.trip; i++ {
		d *= 2
		if d >= b.maxDelay {
			d = b.maxDelay
			break
		}
	}
	b.openUntil = now.Add(d)
}
