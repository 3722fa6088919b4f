package cmdpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpusched/gpucore"
	"github.com/gogpu/gpusched/internal/fakegpu"
	"github.com/gogpu/gpusched/internal/tick"
)

type harness struct {
	dev   *fakegpu.Device
	ticks *tick.Authority
	pool  *Pool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dev := fakegpu.New()
	tl, err := dev.NewTimeline()
	require.NoError(t, err)
	ticks := tick.New(tl)
	return &harness{dev: dev, ticks: ticks, pool: New(dev, ticks)}
}

// submit ends cb, submits it signaling a fresh tick and retires it.
func (h *harness) submit(t *testing.T, cb gpucore.CommandBuffer) uint64 {
	t.Helper()
	require.NoError(t, cb.End())
	tk := h.ticks.Allocate()
	var info gpucore.SubmitInfo
	info.AddSignal(h.ticks.Timeline(), tk)
	require.NoError(t, h.dev.Queue().Submit(cb, &info))
	h.pool.Retire(cb, tk)
	return tk
}

func TestPool_CommitAllocatesWhenEmpty(t *testing.T) {
	h := newHarness(t)

	cb, err := h.pool.Commit()
	require.NoError(t, err)
	require.NotNil(t, cb)
	assert.Equal(t, 1, cb.(*fakegpu.CommandBuffer).Begins(), "Commit must open the buffer")

	s := h.pool.Stats()
	assert.Equal(t, 1, s.Allocated)
	assert.Equal(t, 0, s.Recycled)
	assert.Equal(t, 0, s.InFlight)
}

func TestPool_NeverReusesIncompleteBuffer(t *testing.T) {
	h := newHarness(t)

	first, err := h.pool.Commit()
	require.NoError(t, err)
	h.submit(t, first)

	second, err := h.pool.Commit()
	require.NoError(t, err)
	assert.NotSame(t, first, second, "in-flight buffer must not be recycled")
	assert.Equal(t, 2, h.pool.Stats().Allocated)
	assert.Empty(t, h.dev.Violations())
}

func TestPool_RecyclesCompletedBuffer(t *testing.T) {
	h := newHarness(t)

	first, err := h.pool.Commit()
	require.NoError(t, err)
	h.submit(t, first)
	h.dev.CompleteAll()

	again, err := h.pool.Commit()
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, h.pool.Stats().Recycled)
	assert.Equal(t, 2, first.(*fakegpu.CommandBuffer).Begins())
	assert.Empty(t, h.dev.Violations())
}

func TestPool_RecyclesInSubmissionOrder(t *testing.T) {
	h := newHarness(t)

	var submitted []gpucore.CommandBuffer
	for i := 0; i < 3; i++ {
		cb, err := h.pool.Commit()
		require.NoError(t, err)
		h.submit(t, cb)
		submitted = append(submitted, cb)
	}
	assert.Equal(t, 3, h.pool.Stats().InFlight)

	// Only the oldest submission completes.
	require.True(t, h.dev.CompleteNext())

	cb, err := h.pool.Commit()
	require.NoError(t, err)
	assert.Same(t, submitted[0], cb)

	cb, err = h.pool.Commit()
	require.NoError(t, err)
	for _, s := range submitted {
		assert.NotSame(t, s, cb, "incomplete buffers must not be recycled")
	}
	assert.Empty(t, h.dev.Violations())
}

func TestPool_AllocationFailure(t *testing.T) {
	h := newHarness(t)
	h.dev.FailAllocations(fakegpu.ErrInjected)

	_, err := h.pool.Commit()
	require.ErrorIs(t, err, fakegpu.ErrInjected)
}

func TestPool_Destroy(t *testing.T) {
	h := newHarness(t)

	cb, err := h.pool.Commit()
	require.NoError(t, err)
	h.submit(t, cb)
	h.dev.CompleteAll()

	h.pool.Destroy()
	h.pool.Destroy()
	assert.Equal(t, 0, h.pool.Stats().InFlight)

	_, err = h.pool.Commit()
	require.ErrorIs(t, err, ErrDestroyed)
	assert.Empty(t, h.dev.Violations())
}
