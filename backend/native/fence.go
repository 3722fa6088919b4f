package native

import "sync/atomic"

// Fence reports completion of the submission it was attached to through
// gpucore.SubmitInfo.Fence.
type Fence struct {
	queue *Queue
	index atomic.Uint64
}

func (f *Fence) arm(index uint64) { f.index.Store(index) }

// Signaled reports whether the submission carrying the fence completed.
// A fence that was never submitted is not signaled.
func (f *Fence) Signaled() bool {
	idx := f.index.Load()
	return idx != 0 && f.queue.completed() >= idx
}

// Reset makes the fence reusable for another submission.
func (f *Fence) Reset() { f.index.Store(0) }
