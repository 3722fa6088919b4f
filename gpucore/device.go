package gpucore

import "context"

// Device is the handle to a GPU device as seen by the scheduler.
type Device interface {
	// Queue returns the graphics queue all submissions go to.
	Queue() Queue

	// NewTimeline creates a timeline whose value starts at zero.
	NewTimeline() (Timeline, error)

	// NewCommandBuffer allocates a command buffer in the initial state.
	NewCommandBuffer() (CommandBuffer, error)
}

// Queue accepts finalized command buffers for execution.
//
// Submit is not required to be safe for concurrent use; the scheduler
// serializes all calls through its submission arbiter.
type Queue interface {
	// Submit hands cb and the wait/signal lists of info to the device.
	// Errors wrapping ErrDeviceLost mean the device can no longer be used.
	Submit(cb CommandBuffer, info *SubmitInfo) error
}

// CheckpointReporter is an optional Queue capability that reports the last
// known pipeline position of in-flight commands after device loss.
type CheckpointReporter interface {
	Checkpoints() []Checkpoint
}

// Timeline is a device-side counter that only increases.
// The scheduler signals it with one value per submission.
type Timeline interface {
	Semaphore

	// Value returns the currently signaled value.
	Value() (uint64, error)

	// Wait blocks until the signaled value is at least value or ctx is done.
	Wait(ctx context.Context, value uint64) error
}

// CommandBuffer records GPU commands.
//
// Lifecycle:
//
//	Begin -> (BeginRendering ... EndRendering | PipelineBarrier)* -> End -> Queue.Submit
//
// Begin must reset any previously recorded contents; it is only called
// once the previous submission of the buffer has completed.
type CommandBuffer interface {
	// Begin starts one-shot recording.
	Begin() error

	// BeginRendering opens a render pass over the attachments of state.
	BeginRendering(state *RenderState)

	// EndRendering closes the open render pass.
	EndRendering()

	// PipelineBarrier records one batched barrier.
	PipelineBarrier(src, dst PipelineStage, deps DependencyFlags, barriers []ImageBarrier)

	// End finishes recording.
	End() error

	// Destroy releases the buffer. It must not be pending execution.
	Destroy()
}

// ProfilerProvider is an optional Device capability.
// A nil Profiler means profiling is unavailable.
type ProfilerProvider interface {
	Profiler() Profiler
}

// Profiler instruments recording spans of command buffers.
type Profiler interface {
	// Begin opens a scope covering everything recorded into cb until the
	// returned scope is ended.
	Begin(cb CommandBuffer) ProfileScope

	// Collect gathers results recorded into cb. It is called after the
	// scope has ended and before cb is finalized.
	Collect(cb CommandBuffer)
}

// ProfileScope is an open profiling span.
type ProfileScope interface {
	End()
}
