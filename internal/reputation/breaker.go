package reputation

import (
	"sync"
	"time"
)

// Breaker is a two-state circuit breaker. Any failure opens it for a fixed
// cooldown; once the cooldown has passed the next call goes through as usual.
type Breaker struct {
	mu        sync.Mutex
	cooldown  time.Duration
	downUntil time.Time
	now       func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cooldown time.Duration) *Breaker {
	return &Breaker{cooldown: cooldown, now: time.Now}
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.now().Before(b.downUntil) {
		return ErrCircuitOpen
	}
	return nil
}

// Failure opens the breaker for the cooldown, measured from now.
func (b *Breaker) Failure() {
	b.mu.Lock()
	b.downUntil = b.now().Add(b.cooldown)
	b.mu.Unlock()
	breakerOpenCount.Inc()
}

// Success records a successful call. The breaker has no state to reset:
// it closes purely by elapsed time.
func (b *Breaker) Success() {}

