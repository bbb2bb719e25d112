// Package dragdrop merges the redundant enter/leave/over/drop events of a page-wide
// file drag into one overlay signal.
package dragdrop

import (
	"sync"
	"time"

	"riskboard/domain/dataset"
	"riskboard/internal/clock"
	"riskboard/internal/errors"
)

// DefaultDebounce is how long the tracker waits for the next dragover before
// treating the drag as abandoned.
const DefaultDebounce = 250 * time.Millisecond

// State is the tracker state
type State int

const (
	Idle State = iota
	DragActive
)

func (s State) String() string {
	if s == DragActive {
		return "drag_active"
	}
	return "idle"
}

// Tracker is the drag state machine. It is safe for concurrent use; the change
// listener runs outside the state lock and must not call back into the tracker.
type Tracker struct {
	mu       sync.Mutex
	clock    clock.Clock
	debounce time.Duration
	counter  int
	visible  bool
	timer    clock.Timer
	gen      uint64
	version  uint64
	stopped  bool
	listener func(visible bool)

	notifyMu  sync.Mutex
	delivered uint64
}

// NewTracker creates an idle tracker. A non-positive debounce uses DefaultDebounce.
func NewTracker(clk clock.Clock, debounce time.Duration) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{clock: clk, debounce: debounce}
}

// OnChange installs the overlay listener; it is only called on actual transitions
func (t *Tracker) OnChange(listener func(visible bool)) {
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
}

// Enter records a dragenter
func (t *Tracker) Enter() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.counter++
	n := t.setVisible(t.counter > 0)
	t.mu.Unlock()
	t.notify(n)
}

// Leave records a dragleave; the counter never goes below zero
func (t *Tracker) Leave() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.counter > 0 {
		t.counter--
	}
	var n pending
	if t.counter == 0 {
		t.cancelTimer()
		n = t.setVisible(false)
	}
	t.mu.Unlock()
	t.notify(n)
}

// Over records a dragover and restarts the liveness timer
func (t *Tracker) Over() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	t.cancelTimer()
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.debounce, func() { t.expire(gen) })
}

// Drop resets the tracker and returns the first dropped file when it is a CSV
func (t *Tracker) Drop(files []dataset.FileRef) (dataset.FileRef, error) {
	t.mu.Lock()
	t.counter = 0
	t.cancelTimer()
	n := t.setVisible(false)
	t.mu.Unlock()
	t.notify(n)

	if len(files) == 0 {
		return dataset.FileRef{}, errors.InvalidFileType("No file was dropped")
	}
	first := files[0]
	if !first.IsCSV() {
		return dataset.FileRef{}, errors.InvalidFileType("Please select a CSV file")
	}
	return first, nil
}

// Visible reports whether the overlay is shown
func (t *Tracker) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Counter returns the net enter/leave depth
func (t *Tracker) Counter() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

// State returns Idle or DragActive
func (t *Tracker) State() State {
	if t.Visible() {
		return DragActive
	}
	return Idle
}

// Stop cancels the pending timer and ignores further events
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.cancelTimer()
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.counter = 0
	n := t.setVisible(false)
	t.mu.Unlock()
	t.notify(n)
}

// cancelTimer stops the liveness timer and invalidates any callback already in flight.
// Caller holds mu.
func (t *Tracker) cancelTimer() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

type pending struct {
	version  uint64
	visible  bool
	listener func(bool)
}

// setVisible records a transition and returns the delivery it needs. Caller holds mu.
func (t *Tracker) setVisible(visible bool) pending {
	if t.visible == visible {
		return pending{}
	}
	t.visible = visible
	t.version++
	return pending{version: t.version, visible: visible, listener: t.listener}
}

// notify delivers n unless a newer transition has already been delivered
func (t *Tracker) notify(n pending) {
	if n.listener == nil {
		return
	}
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	if n.version <= t.delivered {
		return
	}
	t.delivered = n.version
	n.listener(n.visible)
}
