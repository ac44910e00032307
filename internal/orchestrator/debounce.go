package orchestrator

import (
	"sync"
	"time"
)

// Timer is a scheduled call that can be stopped before it runs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. time.AfterFunc in production.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer coalesces bursts of triggers into one call of fn, made once no
// trigger has arrived for the whole window.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	sched  Scheduler
	fn     func()
	timer  Timer
	// seq identifies the latest Trigger or Cancel. A timer callback that
	// lost the race to a newer one sees a different seq and does nothing.
	seq uint64
}

// NewDebouncer creates a debouncer calling fn. A nil sched uses real timers.
func NewDebouncer(window time.Duration, sched Scheduler, fn func()) *Debouncer {
	if sched == nil {
		sched = realScheduler{}
	}
	return &Debouncer{window: window, sched: sched, fn: fn}
}

// Trigger (re)starts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	seq := d.seq
	d.timer = d.sched.AfterFunc(d.window, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Cancel drops a pending call. A call that already started is not affected.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Window returns the debounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}
