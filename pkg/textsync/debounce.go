package textsync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultDebounce is the quiet period before an edit is sent.
const DefaultDebounce = 200 * time.Millisecond

// Debouncer calls fn once the triggers stop for a full window.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer. A nil clk uses the wall clock and a
// non-positive window uses DefaultDebounce.
func NewDebouncer(clk clock.Clock, window time.Duration, fn func()) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		clock:  clk,
		window: window,
		fn:     fn,
	}
}

// Trigger (re)starts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(gen) })
}

// Cancel drops a pending call without stopping the Debouncer.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop drops a pending call; later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
