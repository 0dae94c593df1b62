// Package thermometer keeps the inside and outside temperatures the clock shows, refreshing them in the
// background about once an hour.
//
// The Refresher holds the cache's lock for its whole life, letting go only while it sleeps between
// refreshes.  Readers never block on it: TryRead fails while a refresh is in progress, and the display
// shows the time instead for that cycle.
package thermometer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Celsius is a temperature in degrees Celsius.
type Celsius float64

// Whole returns c truncated toward zero to whole degrees.
func (c Celsius) Whole() int { return int(c) }

var (
	// ErrMissingField means a weather report parsed but did not contain a temperature.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidReport means a weather report was not a valid JSON document.
	ErrInvalidReport = errors.New("invalid json")
)

// Snapshot is a copy of the cached readings.  A reading that has never succeeded is not Valid.
type Snapshot struct {
	Inside, Outside           Celsius
	InsideValid, OutsideValid bool
}

// Cache holds the latest readings.
type Cache struct {
	mu   sync.Mutex
	snap Snapshot // must hold mu to read or write.
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return new(Cache)
}

// TryRead returns the cached readings, or false without waiting if a refresh holds the cache.
func (c *Cache) TryRead() (Snapshot, bool) {
	if !c.mu.TryLock() {
		return Snapshot{}, false
	}
	defer c.mu.Unlock()
	return c.snap, true
}

// Wake says why a timed wait ended.
type Wake int

const (
	TimedOut Wake = iota
	Signaled
)

func (w Wake) String() string {
	if w == Signaled {
		return "signaled"
	}
	return "timed out"
}

// waitUntil releases the cache's lock until the deadline passes or ctx is cancelled, then takes it back.  The
// caller must hold the lock.  Cancellation wins if both have happened.
func (c *Cache) waitUntil(ctx context.Context, clock clockwork.Clock, deadline time.Time) Wake {
	c.mu.Unlock()
	defer c.mu.Lock()
	t := clock.NewTimer(deadline.Sub(clock.Now()))
	select {
	case <-ctx.Done():
		t.Stop()
		return Signaled
	case <-t.Chan():
		if ctx.Err() != nil {
			return Signaled
		}
		return TimedOut
	}
}
