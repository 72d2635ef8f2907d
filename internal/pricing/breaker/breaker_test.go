// internal/pricing/breaker/breaker_test.go
package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(time.Hour)

	assert.True(t, b.IsAvailable())
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_TripOpensImmediately(t *testing.T) {
	b := New(time.Hour)

	b.TripQuotaExhausted()

	assert.False(t, b.IsAvailable())
	assert.Equal(t, "open", b.State())
}

func TestBreaker_ReopensAfterCooldown(t *testing.T) {
	current := time.Now()
	b := New(time.Hour)
	b.now = func() time.Time { return current }

	b.TripQuotaExhausted()
	assert.False(t, b.IsAvailable())

	// Just short of the cooldown: still open.
	current = current.Add(time.Hour - time.Second)
	assert.False(t, b.IsAvailable())

	// Cooldown elapsed: the next availability check closes it.
	current = current.Add(2 * time.Second)
	assert.True(t, b.IsAvailable())
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_RetripRefreshesWindow(t *testing.T) {
	current := time.Now()
	b := New(time.Hour)
	b.now = func() time.Time { return current }

	b.TripQuotaExhausted()
	current = current.Add(45 * time.Minute)
	b.TripQuotaExhausted()

	// 45 minutes after the second trip the original window would have
	// elapsed, but the refreshed one has not.
	current = current.Add(45 * time.Minute)
	assert.False(t, b.IsAvailable())

	current = current.Add(16 * time.Minute)
	assert.True(t, b.IsAvailable())
}

func TestBreaker_ZeroCooldownUsesDefault(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultCooldown, b.cooldown)
}

func TestBreaker_ConcurrentTripAndCheck(t *testing.T) {
	b := New(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				b.TripQuotaExhausted()
			} else {
				b.IsAvailable()
			}
		}(i)
	}
	wg.Wait()

	assert.False(t, b.IsAvailable())
}
