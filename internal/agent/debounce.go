package agent

import (
	"sync"
	"time"
)

// DefaultReconcileDelay coalesces resize storms before the scheduler
// re-lays-out every agent.
const DefaultReconcileDelay = 100 * time.Millisecond

// debouncer delays a function until calls stop arriving for the duration.
// Rapid successive calls reset the timer. A zero duration runs the function
// inline, which keeps tests deterministic.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{duration: duration}
}

func (d *debouncer) debounce(fn func()) {
	if d.duration <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
