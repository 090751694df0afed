package pollwait

import (
	"context"
	"runtime"
	"time"
)

// run executes one run cycle: it drives the activation strategy captured in
// rs until the gate is set, the wait limit elapses, or ctx ends. On
// activation it invokes the callback on the worker's own context and returns
// nil. Cancellation also returns nil, since it is a normal control path; the
// callback is not invoked. A timed-out cycle reports ErrTimeout.
func (w *Waiter) run(ctx context.Context, rs *runState) error {
	var fired bool
	var err error
	if rs.cond != nil {
		fired, err = w.pollWait(ctx, rs)
	} else {
		fired, err = w.latchWait(ctx, rs)
	}
	if err != nil || !fired {
		return err
	}
	w.call()
	return nil
}

// pollWait repeatedly evaluates the poll condition until it sets the gate,
// or an external Trigger does. Evaluation and the flag transition are fused
// in latch.check, so a concurrent Trigger cannot race the condition into a
// second activation. Between evaluations the worker sleeps for the
// configured interval; an interval at or below the busy-poll threshold skips
// the sleep, yielding only to a pending cancellation. The elapsed-time check
// follows the sleep, so even a non-positive wait limit permits at least one
// evaluation.
func (w *Waiter) pollWait(ctx context.Context, rs *runState) (bool, error) {
	begin := time.Now()
	for {
		if rs.gate.check(rs.cond) {
			return true, nil
		}
		if rs.interval > minSleep {
			t := time.NewTimer(rs.interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return false, nil
			case <-t.C:
			}
		} else {
			if ctx.Err() != nil {
				return false, nil
			}
			runtime.Gosched()
		}
		if time.Since(begin) > rs.maxWait {
			return false, ErrTimeout
		}
	}
}

// latchWait blocks until the gate is set, the wait limit elapses, or ctx
// ends. The gate is checked before blocking, so a Trigger that fired before
// the worker began is observed even when the wait limit is non-positive.
func (w *Waiter) latchWait(ctx context.Context, rs *runState) (bool, error) {
	if rs.gate.IsSet() {
		return true, nil
	}
	t := time.NewTimer(rs.maxWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, nil
	case <-t.C:
		return false, ErrTimeout
	case <-rs.gate.Ready():
		return true, nil
	}
}
