// Package repeat provides a repeating task that can be paused, resumed and
// stopped explicitly.
package repeat

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker delivers ticks on C every interval until stopped.
type Ticker struct {
	mu       sync.Mutex
	ticker   clockwork.Ticker
	interval time.Duration
	paused   bool
	stopped  bool
}

// New starts a ticker on clock. The first tick arrives after d.
func New(clock clockwork.Clock, d time.Duration) *Ticker {
	return &Ticker{
		ticker:   clock.NewTicker(d),
		interval: d,
	}
}

// C is the channel ticks are delivered on. It stays silent while the ticker
// is paused or stopped.
func (t *Ticker) C() <-chan time.Time {
	return t.ticker.Chan()
}

func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Ticker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused || t.stopped {
		return
	}
	t.paused = true
	stopAndDrain(t.ticker)
}

func (t *Ticker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Resume restarts a paused ticker with a full interval.
func (t *Ticker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused || t.stopped {
		return
	}
	t.paused = false
	t.ticker.Reset(t.interval)
}

// Reset changes the interval. A paused ticker keeps the new interval for Resume.
func (t *Ticker) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
	if t.paused || t.stopped {
		return
	}
	t.ticker.Reset(d)
}

// Stop is final; a stopped ticker cannot be resumed.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	stopAndDrain(t.ticker)
}

// Run calls fn on every tick until fn returns false or ctx is done. The
// ticker is stopped when Run returns.
func (t *Ticker) Run(ctx context.Context, fn func(now time.Time) bool) error {
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C():
			if !fn(now) {
				return nil
			}
		}
	}
}

func stopAndDrain(ticker clockwork.Ticker) {
	ticker.Stop()
	select {
	case <-ticker.Chan():
	default:
	}
}
