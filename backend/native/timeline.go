package native

import (
	"context"
	"sync"
	"time"

	"github.com/gogpu/gpusched/gpucore"
)

// Polling backoff bounds for Timeline.Wait.
const (
	minPollInterval = 20 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// signalPoint is a promised timeline value and the submission reaching it.
type signalPoint struct {
	index uint64
	value uint64
}

// Timeline emulates a timeline semaphore over HAL submission indexes.
type Timeline struct {
	queue *Queue

	mu      sync.Mutex
	value   uint64
	pending []signalPoint // increasing index order
	highest uint64        // largest promised value
}

var _ gpucore.Timeline = (*Timeline)(nil)

// promise records that submission index signals value on completion.
func (t *Timeline) promise(index, value uint64) {
	t.mu.Lock()
	t.pending = append(t.pending, signalPoint{index: index, value: value})
	if value > t.highest {
		t.highest = value
	}
	t.mu.Unlock()
}

// promised returns the largest value any submission has promised, or the
// current value if larger.
func (t *Timeline) promised() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(t.highest, t.value)
}

// Value implements gpucore.Timeline.
func (t *Timeline) Value() (uint64, error) {
	if err := t.queue.lostErr(); err != nil {
		return t.current(), err
	}
	done := t.queue.completed()

	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.pending {
		if p.index > done {
			break
		}
		if p.value > t.value {
			t.value = p.value
		}
		n++
	}
	if n > 0 {
		t.pending = append(t.pending[:0], t.pending[n:]...)
	}
	return t.value, nil
}

func (t *Timeline) current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Wait implements gpucore.Timeline. HAL exposes completion only by
// polling, so Wait polls with exponential backoff.
func (t *Timeline) Wait(ctx context.Context, value uint64) error {
	interval := minPollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		v, err := t.Value()
		if err != nil {
			return err
		}
		if v >= value {
			return nil
		}
		if t.promised() < value {
			return ErrUnsatisfiableWait
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		interval = min(interval*2, maxPollInterval)
	}
}
