// Package gpusched schedules command submission for a GPU rendering
// backend.
//
// # Overview
//
// A Scheduler owns one recording command buffer at a time. Callers record
// into it, open and close render passes through the scheduler, and submit
// with Flush, Finish or Wait. Every submission is assigned a tick: a
// counter that increases by one per submission and is signaled on a device
// timeline when the GPU finishes that submission.
//
//	s, err := gpusched.New(dev)
//	if err != nil {
//	    return err
//	}
//	defer s.Close(ctx)
//
//	s.BeginRendering(state)
//	// record draws into s.CommandBuffer()
//	s.Defer(func() { releaseStaging() }) // runs once this work completes
//	s.Flush(nil)
//
// # Render passes
//
// BeginRendering with a state equal to the open one is a no-op, so
// consecutive draws into the same attachments share one pass. Ending a
// pass records one batched barrier that makes every attachment written by
// the pass readable by fragment shaders of later passes.
//
// # Synchronization
//
//   - Flush submits and returns without waiting for the GPU.
//   - Finish submits and waits until everything recorded so far has run.
//   - Wait blocks until a given tick completes. Waiting on the tick that
//     the next submission would get flushes first, so it cannot deadlock.
//   - Defer queues a callback that runs, in order, once the current tick
//     completes.
//
// Command buffers are recycled only after their submission's tick has
// completed.
//
// # Concurrency
//
// A Scheduler is used from one goroutine. Several schedulers may submit to
// the same queue from different goroutines as long as they share an
// Arbiter (the default).
//
// # Device loss
//
// A failed submission is fatal. The scheduler logs the failure and any
// checkpoints the queue reports, then calls the FatalHandler, which by
// default exits the process. It never returns into normal scheduling.
package gpusched
