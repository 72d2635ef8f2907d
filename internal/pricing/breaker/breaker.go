// internal/pricing/breaker/breaker.go
package breaker

import (
	"sync/atomic"
	"time"

	"pricing-workers/internal/common/metrics"
)

// Breaker guards the shared shopping-search quota. A single quota covers
// every retailer query, so this is process-wide state, not per-retailer.
// The only stored field is the trip timestamp (unix nanos, 0 = closed);
// reopening happens lazily on the next availability check.
type Breaker struct {
	trippedAt atomic.Int64
	cooldown  time.Duration
	now       func() time.Time
}

const DefaultCooldown = time.Hour

func New(cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{cooldown: cooldown, now: time.Now}
}

// IsAvailable reports whether search calls may proceed. An elapsed
// cooldown closes the breaker as a side effect.
func (b *Breaker) IsAvailable() bool {
	tripped := b.trippedAt.Load()
	if tripped == 0 {
		return true
	}
	if b.now().Sub(time.Unix(0, tripped)) >= b.cooldown {
		// Racing resets are fine, they all write zero.
		b.trippedAt.Store(0)
		metrics.BreakerState.Set(0)
		return true
	}
	return false
}

// TripQuotaExhausted opens the breaker. Re-tripping while open just
// refreshes the timestamp.
func (b *Breaker) TripQuotaExhausted() {
	b.trippedAt.Store(b.now().UnixNano())
	metrics.BreakerState.Set(1)
}

// State returns "open" or "closed" for logging.
func (b *Breaker) State() string {
	if b.trippedAt.Load() == 0 {
		return "closed"
	}
	return "open"
}
