// Package pollwait implements a one-shot signaling primitive that notifies a
// consumer callback from any goroutine without blocking the producer.
//
// A [Waiter] binds a callback to a trigger. Once started, it schedules a
// single worker on a caller-supplied [Executor]; the worker waits for the
// Waiter to become triggered, either by periodically evaluating a registered
// poll condition or, when no condition is registered, by blocking on a
// one-shot latch that [Waiter.Trigger] releases. When the trigger fires, the
// worker invokes the callback on its own execution context and resets the
// Waiter. If nothing fires within the configured wait limit, the run cycle
// fails with [ErrTimeout] and the callback is never invoked.
package pollwait

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrTimeout is reported by the worker when a run cycle ends without the
	// trigger having fired within the configured wait limit.
	ErrTimeout = errors.New("timed out awaiting trigger")

	// ErrActive is reported by Start when a run cycle is already in flight.
	ErrActive = errors.New("a run cycle is already active")
)

// Default settings for a newly-constructed Waiter.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxWait      = 2 * time.Minute
)

// Poll intervals at or below minSleep disable sleeping between evaluations
// of the poll condition, and the worker busy-polls instead.
const minSleep = 2 * time.Millisecond

// An Executor schedules a task to run concurrently with its caller. The
// error reported by the task is delivered to whatever failure channel the
// executor provides; the Waiter itself does not observe it.
//
// An [errgroup.Group] satisfies this interface.
type Executor interface {
	Go(task func() error)
}

var _ Executor = (*errgroup.Group)(nil)

// goExec runs each task in a plain goroutine and discards its error.
type goExec struct{}

func (goExec) Go(task func() error) { go func() { _ = task() }() }

// A Waiter is a one-shot signaling primitive binding a callback to a
// trigger. A Waiter must be constructed with [New], and must not be copied
// after first use.
//
// The triggered flag and the latch it releases are the only state shared
// between the worker and other goroutines. All configuration is captured
// once when [Waiter.Start] is called; setter calls during an active run
// cycle affect only subsequent cycles.
type Waiter struct {
	// Warnf, if set, is called to log a warning when SetPoll replaces a
	// condition that has not yet fired. If nil, log.Printf is used.
	// Warnf must be set before the Waiter is shared among goroutines.
	Warnf func(msg string, args ...any)

	exec Executor
	call func()

	μ        sync.Mutex
	interval time.Duration // delay between condition evaluations
	maxWait  time.Duration // limit on the total duration of a run cycle
	cond     func() bool   // poll condition; nil selects latch mode
	gate     *latch        // the current cycle's one-shot gate
	cur      *runState     // non-nil while a run cycle is in flight
}

// runState is the configuration snapshot for one run cycle, captured under
// the lock by Start and thereafter read-only.
type runState struct {
	cancel   context.CancelFunc
	gate     *latch
	cond     func() bool
	interval time.Duration
	maxWait  time.Duration
}

// New constructs an idle Waiter that invokes callback when triggered. The
// worker for each run cycle is scheduled on exec. If exec == nil, a default
// executor is used that runs each task in a plain goroutine and discards its
// error; callers who need to observe timeout failures should supply an
// executor with a failure channel, such as an [errgroup.Group].
//
// New panics if callback == nil.
func New(exec Executor, callback func()) *Waiter {
	if callback == nil {
		panic("callback is nil")
	}
	if exec == nil {
		exec = goExec{}
	}
	return &Waiter{
		exec:     exec,
		call:     callback,
		interval: DefaultPollInterval,
		maxWait:  DefaultMaxWait,
		gate:     newLatch(),
	}
}

// SetPollInterval sets the delay between evaluations of the poll condition,
// and returns w to permit chaining. Intervals of 2ms or less disable
// sleeping, and the worker re-evaluates the condition continuously.
func (w *Waiter) SetPollInterval(d time.Duration) *Waiter {
	w.μ.Lock()
	defer w.μ.Unlock()
	w.interval = d
	return w
}

// SetMaxWait sets the limit on the total duration of a run cycle, and
// returns w to permit chaining. The value is not validated: a zero or
// negative limit makes the next cycle time out almost immediately.
func (w *Waiter) SetMaxWait(d time.Duration) *Waiter {
	w.μ.Lock()
	defer w.μ.Unlock()
	w.maxWait = d
	return w
}

// SetPoll registers cond as the poll condition, and returns w to permit
// chaining. While a condition is registered, the worker activates by
// evaluating it periodically; otherwise the worker blocks until Trigger is
// called. A condition reporting true triggers the Waiter as a side effect,
// with the same force as a call to Trigger.
//
// If the Waiter has already been triggered, the registration is skipped so
// that a completed cycle is not re-triggered. If a condition is already
// registered and has not yet fired, SetPoll logs a warning and replaces it.
func (w *Waiter) SetPoll(cond func() bool) *Waiter {
	w.μ.Lock()
	defer w.μ.Unlock()
	if w.gate.IsSet() {
		return w
	}
	if w.cond != nil {
		w.warnf("pollwait: replacing a poll condition that has not yet fired")
	}
	w.cond = cond
	return w
}

func (w *Waiter) warnf(msg string, args ...any) {
	if w.Warnf != nil {
		w.Warnf(msg, args...)
	} else {
		log.Printf(msg, args...)
	}
}

// Trigger marks w as triggered, releasing the current run cycle's worker if
// one is waiting. The first call transitions the flag; later calls have no
// effect until the Waiter is reset by Stop or by a completed cycle. Trigger
// never blocks, is safe for concurrent use, and may usefully be called
// before Start: the worker observes the flag when it begins.
func (w *Waiter) Trigger() {
	w.μ.Lock()
	gate := w.gate
	w.μ.Unlock()
	gate.Set()
}

// Start schedules one run cycle on the executor and returns without
// blocking. The worker polls the registered condition, or waits on the
// trigger latch if no condition is registered, invokes the callback once the
// trigger fires, and then resets w as Stop does. A cycle that neither fires
// nor is stopped within the wait limit ends with [ErrTimeout] on the
// executor's failure channel, and the callback is not invoked.
//
// Start reports [ErrActive], and schedules nothing, if a run cycle is
// already in flight. The worker's context is derived from ctx, so ending ctx
// cancels the cycle just as Stop does.
func (w *Waiter) Start(ctx context.Context) error {
	w.μ.Lock()
	defer w.μ.Unlock()
	if w.cur != nil {
		return ErrActive
	}
	rctx, cancel := context.WithCancel(ctx)
	rs := &runState{
		cancel:   cancel,
		gate:     w.gate,
		cond:     w.cond,
		interval: w.interval,
		maxWait:  w.maxWait,
	}
	w.cur = rs
	w.exec.Go(func() error {
		defer cancel()
		defer w.finish(rs)
		return w.run(rctx, rs)
	})
	return nil
}

// Stop cancels any active run cycle and resets w to idle, and returns w to
// permit chaining. The worker is released at its next suspension point and
// exits without invoking the callback or reporting an error. Stop clears all
// per-cycle state: the triggered flag, the poll condition, and the latch, so
// a later Trigger has no effect until a new cycle is configured. Stopping an
// idle Waiter is a no-op.
func (w *Waiter) Stop() *Waiter {
	w.μ.Lock()
	defer w.μ.Unlock()
	if w.cur != nil {
		w.cur.cancel()
		w.cur = nil
		w.resetLocked()
	}
	return w
}

// finish resets w after a run cycle ends, unless Stop (or a newer cycle)
// already took ownership of the state.
func (w *Waiter) finish(rs *runState) {
	w.μ.Lock()
	defer w.μ.Unlock()
	if w.cur == rs {
		w.cur = nil
		w.resetLocked()
	}
}

// resetLocked clears per-cycle state. The caller must hold w.μ.
func (w *Waiter) resetLocked() {
	w.cond = nil
	w.gate = newLatch()
}
