// Package gpucore defines the GPU collaborator contracts consumed by the
// gpusched scheduler.
//
// The scheduler never talks to a graphics API directly. Instead it drives a
// small set of interfaces that backends implement:
//   - [Device]: creates command buffers and timelines, exposes the queue
//   - [Queue]: accepts one finalized command buffer plus a [SubmitInfo]
//   - [CommandBuffer]: records render pass boundaries and image barriers
//   - [Timeline]: a monotonically increasing device-side counter
//
// Optional capabilities are discovered with type assertions:
//   - [CheckpointReporter] on a Queue provides device-loss diagnostics
//   - [ProfilerProvider] on a Device provides GPU profiling scopes
//
// # Architecture
//
//	               +-----------------+
//	               |    gpusched     |
//	               |   (Scheduler)   |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               |  (interfaces)   |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/native  |          |  test doubles   |
//	|  (hal.Device)   |          | (fake devices)  |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Value Types
//
// [RenderState] is a comparable value: two states are equal when all of
// their attachments, images and dimensions are equal, which is what the
// scheduler uses to batch consecutive passes over the same targets.
//
// [ImageBarrier] mirrors an image memory barrier: access masks, layouts,
// queue-family ownership and a subresource range. The scheduler emits at most
// [MaxColorAttachments]+1 of them per pass end, in a single batched call.
package gpucore
