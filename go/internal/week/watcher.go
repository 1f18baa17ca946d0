package week

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often a Watcher re-evaluates the week key. A
// session may span a week boundary, so this must stay at or below a minute.
const DefaultInterval = time.Minute

// Watcher re-resolves the week key on a ticker and reports changes.
type Watcher struct {
	resolver *Resolver
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.RWMutex
	current Key
}

// NewWatcher creates a watcher primed with the key for the clock's current time.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
func NewWatcher(resolver *Resolver, clock clockwork.Clock, interval time.Duration) *Watcher {
	if interval <= 0 || interval > DefaultInterval {
		interval = DefaultInterval
	}
	return &Watcher{
		resolver: resolver,
		clock:    clock,
		interval: interval,
		current:  resolver.CurrentKey(clock.Now()),
	}
}

// Current returns the last key the watcher resolved.
func (w *Watcher) Current() Key {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run blocks until ctx is done, calling onChange with the previous and
// new key each time the week rolls over.
func (w *Watcher) Run(ctx context.Context, onChange func(prev, next Key)) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			next := w.resolver.CurrentKey(now)
			w.mu.Lock()
			prev := w.current
			w.current = next
			w.mu.Unlock()
			if next == prev {
				continue
			}
			log.Info().
				Str("previous_week", prev.String()).
				Str("week", next.String()).
				Msg("week rolled over")
			onChange(prev, next)
		}
	}
}
