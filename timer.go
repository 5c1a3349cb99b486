package axon

import (
	"sync"
	"time"
)

// ErrTimerCanceled is passed to a Timer's AsyncWait callback when Cancel
// ran before the timer fired.
var ErrTimerCanceled = errorString("axon: timer canceled")

type errorString string

func (e errorString) Error() string { return string(e) }

// Timer schedules a single completion callback through an Executor after
// a duration elapses, mirroring the deadline bookkeeping the teacher
// package keeps per pending operation (see watcher.go's timer-driven
// deadline sweep) but exposed as its own reusable primitive rather than
// folded into one watcher loop.
//
// A Timer is reusable: ExpiresFromNow rearms it, canceling any wait still
// outstanding. All methods are safe for concurrent use.
type Timer struct {
	ex *Executor

	mu      sync.Mutex
	gen     uint64
	t       *time.Timer
	pending func(error)
	fired   bool // elapsed before any AsyncWait registered a callback
}

// NewTimer creates a Timer whose completion callbacks are posted to ex.
func NewTimer(ex *Executor) *Timer {
	return &Timer{ex: ex}
}

// ExpiresFromNow arms the timer to fire after d elapses, canceling any
// previously scheduled wait on this Timer (its callback, if any, fires
// immediately with ErrTimerCanceled rather than being silently dropped).
func (tm *Timer) ExpiresFromNow(d time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.cancelLocked()
	tm.gen++
	tm.fired = false
	gen := tm.gen
	tm.t = time.AfterFunc(d, func() { tm.fire(gen) })
}

// AsyncWait registers cb to run on the Executor once the timer armed by
// the most recent ExpiresFromNow elapses, or with ErrTimerCanceled if
// Cancel runs first. If that timer has already elapsed, cb is posted
// right away. Calling AsyncWait without a prior ExpiresFromNow is a
// programmer error; cb is never invoked in that case.
func (tm *Timer) AsyncWait(cb func(error)) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.t == nil {
		return
	}
	if tm.fired {
		tm.fired = false
		tm.ex.Post(func() { cb(nil) })
		return
	}
	tm.pending = cb
}

// Cancel stops the current wait. A callback already registered through
// AsyncWait, if it hasn't fired yet, is invoked with ErrTimerCanceled.
func (tm *Timer) Cancel() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.cancelLocked()
}

// cancelLocked stops the underlying timer and flushes any pending
// callback with ErrTimerCanceled. Caller must hold tm.mu.
func (tm *Timer) cancelLocked() {
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
	tm.gen++
	if cb := tm.pending; cb != nil {
		tm.pending = nil
		tm.ex.Post(func() { cb(ErrTimerCanceled) })
	}
}

// fire runs on the time.AfterFunc goroutine; gen guards against a stale
// timer (superseded by a later ExpiresFromNow or a Cancel) firing late.
func (tm *Timer) fire(gen uint64) {
	tm.mu.Lock()
	if gen != tm.gen {
		tm.mu.Unlock()
		return
	}
	if tm.pending == nil {
		tm.fired = true
		tm.mu.Unlock()
		return
	}
	cb := tm.pending
	tm.pending = nil
	tm.mu.Unlock()

	tm.ex.Post(func() { cb(nil) })
}
