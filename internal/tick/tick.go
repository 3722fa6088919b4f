// Package tick implements the scheduler's tick authority: a monotonic
// submission counter paired with the last value the device confirmed.
package tick

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gpusched/gpucore"
)

// ErrNotSubmitted is returned by Wait for a tick that no submission has
// been assigned yet. Waiting on it would never return.
var ErrNotSubmitted = errors.New("tick: tick not submitted")

// Authority hands out ticks in submission order and tracks completion.
//
// Two readings exist: the next tick to assign (starting at 1) and the last
// tick the device signaled on the timeline (starting at 0). Completed never
// exceeds the highest allocated tick and never decreases.
//
// Thread-safety: all methods are safe for concurrent use. Allocate is
// expected to be called under the scheduler's submission arbiter so that
// tick order matches queue order.
type Authority struct {
	timeline  gpucore.Timeline
	next      atomic.Uint64
	completed atomic.Uint64
}

// New creates an Authority over timeline. The timeline must start at zero.
func New(timeline gpucore.Timeline) *Authority {
	a := &Authority{timeline: timeline}
	a.next.Store(1)
	return a
}

// Timeline returns the timeline signaled by submissions.
func (a *Authority) Timeline() gpucore.Timeline { return a.timeline }

// PeekNext returns the tick the next submission will be assigned.
func (a *Authority) PeekNext() uint64 {
	return a.next.Load()
}

// Allocate reserves the next tick and returns it.
func (a *Authority) Allocate() uint64 {
	return a.next.Add(1) - 1
}

// Completed returns the last tick known to be complete.
func (a *Authority) Completed() uint64 {
	return a.completed.Load()
}

// Refresh polls the timeline and advances Completed if the device has
// progressed. It returns the updated value.
func (a *Authority) Refresh() (uint64, error) {
	v, err := a.timeline.Value()
	if err != nil {
		return a.completed.Load(), fmt.Errorf("tick: poll timeline: %w", err)
	}
	return a.advance(v), nil
}

// advance raises completed to v, clamped to the highest allocated tick.
func (a *Authority) advance(v uint64) uint64 {
	if high := a.next.Load() - 1; v > high {
		v = high
	}
	for {
		cur := a.completed.Load()
		if v <= cur {
			return cur
		}
		if a.completed.CompareAndSwap(cur, v) {
			return v
		}
	}
}

// IsFree reports whether tick has completed, polling the timeline once
// if the cached value is not enough.
func (a *Authority) IsFree(tick uint64) bool {
	if a.completed.Load() >= tick {
		return true
	}
	done, err := a.Refresh()
	return err == nil && done >= tick
}

// Wait blocks until tick has completed or ctx is done.
//
// A tick at or past PeekNext has not been handed to any submission, so Wait
// returns ErrNotSubmitted instead of blocking forever. Callers that want
// such a tick must submit first.
func (a *Authority) Wait(ctx context.Context, tick uint64) error {
	if a.completed.Load() >= tick {
		return nil
	}
	if tick >= a.next.Load() {
		return fmt.Errorf("%w: %d (next %d)", ErrNotSubmitted, tick, a.next.Load())
	}
	if err := a.timeline.Wait(ctx, tick); err != nil {
		return fmt.Errorf("tick: wait %d: %w", tick, err)
	}
	_, err := a.Refresh()
	return err
}
