package core

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of signals into one delayed firing. Each
// Signal cancels any armed, unfired timer and re-arms it, so fn runs once
// per quiescence window, delay after the last signal. fn always runs on a
// timer goroutine, never inside Signal. A signal arriving after a firing
// has been dispatched arms a new independent firing; debouncing dedupes
// pending timers only.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer invoking fn after delay of quiescence
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Signal requests a firing delay from now, replacing any armed one
func (d *Debouncer) Signal() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels any armed timer and ignores further signals. A firing
// already dispatched by the runtime may still run; consumers must
// tolerate one late invocation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
