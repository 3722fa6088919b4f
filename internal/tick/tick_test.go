package tick

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpusched/gpucore"
)

// manualTimeline is a timeline advanced by the test.
type manualTimeline struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64
	err   error
}

func newManualTimeline() *manualTimeline {
	t := &manualTimeline{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *manualTimeline) Value() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.err
}

func (t *manualTimeline) Wait(ctx context.Context, v uint64) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.value < v {
		if t.err != nil {
			return t.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}

func (t *manualTimeline) signal(v uint64) {
	t.mu.Lock()
	t.value = v
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *manualTimeline) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.cond.Broadcast()
	t.mu.Unlock()
}

func TestAuthority_InitialState(t *testing.T) {
	a := New(newManualTimeline())
	assert.Equal(t, uint64(1), a.PeekNext())
	assert.Equal(t, uint64(0), a.Completed())
}

func TestAuthority_AllocateIsStrictlyIncreasing(t *testing.T) {
	a := New(newManualTimeline())

	prev := uint64(0)
	for i := 0; i < 100; i++ {
		peek := a.PeekNext()
		got := a.Allocate()
		require.Equal(t, peek, got, "Allocate must return the peeked tick")
		require.Equal(t, prev+1, got, "ticks must increase by exactly one")
		prev = got
	}
}

func TestAuthority_AllocateConcurrent(t *testing.T) {
	a := New(newManualTimeline())

	const workers, per = 8, 250
	seen := make(chan uint64, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				seen <- a.Allocate()
			}
		}()
	}
	wg.Wait()
	close(seen)

	got := make(map[uint64]bool)
	for v := range seen {
		require.False(t, got[v], "tick %d handed out twice", v)
		got[v] = true
	}
	for v := uint64(1); v <= workers*per; v++ {
		assert.True(t, got[v], "tick %d skipped", v)
	}
}

func TestAuthority_RefreshNeverRegresses(t *testing.T) {
	tl := newManualTimeline()
	a := New(tl)
	for i := 0; i < 5; i++ {
		a.Allocate()
	}

	tl.signal(3)
	done, err := a.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), done)

	tl.signal(2)
	done, err = a.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), done, "completed must not decrease")
}

func TestAuthority_RefreshClampsToAllocated(t *testing.T) {
	tl := newManualTimeline()
	a := New(tl)
	a.Allocate()
	a.Allocate()

	tl.signal(10)
	done, err := a.Refresh()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), done, "completed must not pass the highest allocated tick")
}

func TestAuthority_RefreshError(t *testing.T) {
	tl := newManualTimeline()
	a := New(tl)
	a.Allocate()
	tl.signal(1)
	_, err := a.Refresh()
	require.NoError(t, err)

	tl.fail(gpucore.ErrDeviceLost)
	done, err := a.Refresh()
	require.ErrorIs(t, err, gpucore.ErrDeviceLost)
	assert.Equal(t, uint64(1), done, "a failed poll keeps the last known value")
}

func TestAuthority_IsFree(t *testing.T) {
	tl := newManualTimeline()
	a := New(tl)
	a.Allocate()
	a.Allocate()

	assert.True(t, a.IsFree(0))
	assert.False(t, a.IsFree(1))

	tl.signal(1)
	assert.True(t, a.IsFree(1), "IsFree must poll the timeline")
	assert.False(t, a.IsFree(2))
}

func TestAuthority_WaitUnsubmittedTick(t *testing.T) {
	a := New(newManualTimeline())

	err := a.Wait(context.Background(), a.PeekNext())
	require.ErrorIs(t, err, ErrNotSubmitted)

	err = a.Wait(context.Background(), a.PeekNext()+10)
	require.ErrorIs(t, err, ErrNotSubmitted)
}

func TestAuthority_WaitBlocksUntilSignaled(t *testing.T) {
	tl := newManualTimeline()
	a := New(tl)
	tick := a.Allocate()

	done := make(chan error, 1)
	go func() { done <- a.Wait(context.Background(), tick) }()

	select {
	case err := <-done:
		t.Fatalf("Wait returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	tl.signal(tick)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the tick was signaled")
	}
	assert.GreaterOrEqual(t, a.Completed(), tick)
}

func TestAuthority_WaitContextCanceled(t *testing.T) {
	a := New(newManualTimeline())
	tick := a.Allocate()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := a.Wait(ctx, tick)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestAuthority_WaitDeviceLost(t *testing.T) {
	tl := newManualTimeline()
	a := New(tl)
	tick := a.Allocate()
	tl.fail(gpucore.ErrDeviceLost)

	err := a.Wait(context.Background(), tick)
	require.ErrorIs(t, err, gpucore.ErrDeviceLost)
}
