package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer coalesces bursts of triggers into a single trailing call of fn,
// made once no trigger has arrived for the quiet period.
type Debouncer struct {
	clock clock.Clock
	quiet time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *clock.Timer
	seq     uint64
	stopped bool
}

func NewDebouncer(clk clock.Clock, quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		clock: clk,
		quiet: quiet,
		fn:    fn,
	}
}

// Trigger (re)arms the trailing call.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		// A timer that fired while being re-armed must not run.
		if d.stopped || seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.fn()
	})
}

// Pending reports whether a trailing call is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
