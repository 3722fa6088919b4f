package fakegpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gpusched/gpucore"
)

// Timeline is a fake timeline semaphore.
type Timeline struct {
	dev *Device

	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
}

var _ gpucore.Timeline = (*Timeline)(nil)

// Value implements gpucore.Timeline.
func (t *Timeline) Value() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, nil
}

// Signal raises the timeline to v. Lower values are ignored.
func (t *Timeline) Signal(v uint64) {
	t.mu.Lock()
	if v > t.value {
		t.value = v
	}
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *Timeline) broadcast() {
	t.mu.Lock()
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *Timeline) lost() bool {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.dev.lost
}

// Wait implements gpucore.Timeline.
func (t *Timeline) Wait(ctx context.Context, v uint64) error {
	stop := context.AfterFunc(ctx, t.broadcast)
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.value < v {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.lost() {
			return fmt.Errorf("%w: fakegpu wait for %d", gpucore.ErrDeviceLost, v)
		}
		t.cond.Wait()
	}
	return nil
}
