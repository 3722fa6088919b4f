package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusched/gpucore"
)

// Queue adapts hal.Queue to gpucore.Queue.
//
// HAL has no timeline semaphores, so signal entries on timelines of this
// backend are recorded against the HAL submission index. Waits on those
// timelines are satisfied by in-order queue execution as long as an
// earlier submission signals the value.
type Queue struct {
	dev *Device
	hal hal.Queue

	// halMu serializes calls into the HAL queue, which need not be safe
	// for concurrent use.
	halMu sync.Mutex

	mu   sync.Mutex
	lost error
}

var _ gpucore.Queue = (*Queue)(nil)

// HAL returns the wrapped HAL queue.
func (q *Queue) HAL() hal.Queue { return q.hal }

// Submit implements gpucore.Queue.
func (q *Queue) Submit(cb gpucore.CommandBuffer, info *gpucore.SubmitInfo) error {
	buf, ok := cb.(*CommandBuffer)
	if !ok || buf.dev != q.dev {
		return fmt.Errorf("%w: command buffer %T", ErrForeignHandle, cb)
	}
	if buf.recorded == nil {
		return fmt.Errorf("native: submit of %s before End", buf.label)
	}
	if err := q.lostErr(); err != nil {
		return err
	}

	if info == nil {
		info = &gpucore.SubmitInfo{}
	}
	for i, sem := range info.WaitSemaphores {
		t, ok := sem.(*Timeline)
		if !ok || t.queue != q {
			return fmt.Errorf("%w: wait semaphore %T", ErrForeignHandle, sem)
		}
		if v := info.WaitValues[i]; t.promised() < v {
			return fmt.Errorf("%w: %d", ErrUnsatisfiableWait, v)
		}
	}

	q.halMu.Lock()
	index, err := q.hal.Submit([]hal.CommandBuffer{buf.recorded})
	q.halMu.Unlock()
	if err != nil {
		return fmt.Errorf("native: submit: %w", q.mapError(err))
	}
	buf.submitted = index

	for i, sem := range info.SignalSemaphores {
		t, ok := sem.(*Timeline)
		if !ok || t.queue != q {
			slogger().Warn("native: ignoring foreign signal semaphore", "type", fmt.Sprintf("%T", sem))
			continue
		}
		t.promise(index, info.SignalValues[i])
	}
	if info.Fence != nil {
		f, ok := info.Fence.(*Fence)
		if !ok || f.queue != q {
			return fmt.Errorf("%w: fence %T", ErrForeignHandle, info.Fence)
		}
		f.arm(index)
	}

	slogger().Debug("native: submitted", "buffer", buf.label, "index", index)
	return nil
}

// completed returns the highest HAL submission index known complete.
func (q *Queue) completed() uint64 {
	q.halMu.Lock()
	defer q.halMu.Unlock()
	return q.hal.PollCompleted()
}

// mapError wraps HAL device loss with gpucore.ErrDeviceLost and remembers
// it so that later calls fail fast.
func (q *Queue) mapError(err error) error {
	if !errors.Is(err, hal.ErrDeviceLost) {
		return err
	}
	lost := fmt.Errorf("%w: %w", gpucore.ErrDeviceLost, err)
	q.mu.Lock()
	if q.lost == nil {
		q.lost = lost
	}
	q.mu.Unlock()
	slogger().Error("native: device lost", "error", err)
	return lost
}

func (q *Queue) lostErr() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lost
}
