package transport

import (
	"context"
	"errors"
	"time"
)

// waitBounds bounds a wait to attempts polls spaced interval apart. The
// wait gives up after exactly attempts × interval on the Transport's clock.
type waitBounds struct {
	interval time.Duration
	attempts int
}

var (
	authWait      = waitBounds{interval: 100 * time.Millisecond, attempts: 100}
	roomWait      = waitBounds{interval: 100 * time.Millisecond, attempts: 100}
	directoryWait = waitBounds{interval: 250 * time.Millisecond, attempts: 40}
)

func (w waitBounds) ceiling() time.Duration {
	return w.interval * time.Duration(w.attempts)
}

var errWaitExpired = errors.New("bounded wait expired")

// pollUntil drains the channel's inbound queue and evaluates done under the
// state lock, sleeping w.interval between attempts. It returns nil once done
// holds, ctx.Err() if ctx ends first, or errWaitExpired at the ceiling.
// The caller must not hold t.mu.
//
// While an inbound frame is being handled, for instance when a sink calls
// back into the Transport, the queue is already being drained further up
// the stack, so the wait only re-checks done.
func (t *Transport) pollUntil(ctx context.Context, w waitBounds, done func() bool) error {
	check := func() bool {
		if t.dispatching.Load() == 0 {
			t.Poll()
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return done()
	}

	for i := 0; i < w.attempts; i++ {
		if check() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.clock.After(w.interval):
		}
	}

	if check() {
		return nil
	}
	return errWaitExpired
}
