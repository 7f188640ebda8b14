package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Throttler runs fn at most once per interval. A trigger that arrives inside
// the window is not dropped: it arms a single trailing run at the end of the
// window, so the latest state is always processed eventually. fn never runs
// concurrently with itself.
type Throttler struct {
	clock    clock.Clock
	interval time.Duration
	fn       func()

	mu       sync.Mutex
	lastRun  time.Time
	hasRun   bool
	trailing *clock.Timer
	stopped  bool

	runMu sync.Mutex
}

func NewThrottler(clk clock.Clock, interval time.Duration, fn func()) *Throttler {
	return &Throttler{
		clock:    clk,
		interval: interval,
		fn:       fn,
	}
}

// TryRun runs fn immediately if the window since the last run has elapsed.
func (t *Throttler) TryRun() bool {
	t.mu.Lock()
	if t.stopped || !t.readyLocked() {
		t.mu.Unlock()
		return false
	}
	t.markRunLocked()
	t.mu.Unlock()

	t.run()
	return true
}

// Trigger runs fn now if allowed, otherwise schedules a trailing run.
func (t *Throttler) Trigger() {
	if t.TryRun() {
		return
	}
	t.scheduleTrailing()
}

// Stop cancels any pending trailing run; later triggers are ignored.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.trailing != nil {
		t.trailing.Stop()
		t.trailing = nil
	}
}

func (t *Throttler) scheduleTrailing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.trailing != nil {
		return
	}

	wait := t.interval - t.clock.Now().Sub(t.lastRun)
	if wait < 0 {
		wait = 0
	}
	t.trailing = t.clock.AfterFunc(wait, func() {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.trailing = nil
		t.markRunLocked()
		t.mu.Unlock()

		t.run()
	})
}

// readyLocked defers to an armed trailing run so two runs never share a window.
func (t *Throttler) readyLocked() bool {
	if t.trailing != nil {
		return false
	}
	return !t.hasRun || t.clock.Now().Sub(t.lastRun) >= t.interval
}

func (t *Throttler) markRunLocked() {
	t.lastRun = t.clock.Now()
	t.hasRun = true
}

func (t *Throttler) run() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	t.fn()
}
