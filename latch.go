package pollwait

import "sync/atomic"

// A latch is a one-shot gate shared by the worker and any goroutines that
// trigger it. It begins unset; the first Set transitions the flag and closes
// the ready channel, and any later Set has no effect. A latch is never
// reset: each run cycle gets a fresh one.
type latch struct {
	fired atomic.Bool
	ch    chan struct{}
}

func newLatch() *latch { return &latch{ch: make(chan struct{})} }

// Set sets the gate. If the gate was already set, it has no effect.
func (l *latch) Set() {
	if l.fired.CompareAndSwap(false, true) {
		close(l.ch) // wake the pending waiter, if any
	}
}

// IsSet reports whether the gate has been set.
func (l *latch) IsSet() bool { return l.fired.Load() }

// Ready returns a channel that is closed once l is set.
func (l *latch) Ready() <-chan struct{} { return l.ch }

// check evaluates cond, sets the gate if cond reports true, and reports
// whether the gate is now set. The evaluation and the flag transition are
// fused: the transition is a single compare-and-swap relative to concurrent
// Set calls, so whichever source fires first wins and the other is a no-op.
func (l *latch) check(cond func() bool) bool {
	if l.fired.Load() {
		return true
	}
	if cond() {
		l.Set()
	}
	return l.fired.Load()
}
