package gpusched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpusched/gpucore"
	"github.com/gogpu/gpusched/internal/cmdpool"
	"github.com/gogpu/gpusched/internal/pending"
	"github.com/gogpu/gpusched/internal/tick"
)

// Stats reports scheduler counters.
type Stats struct {
	Submissions    uint64 // submissions made by this scheduler
	Passes         uint64 // render passes opened
	BarrierBatches uint64 // pass-end barrier calls
	Barriers       uint64 // image barriers across all batches
	DeferredRun    uint64 // deferred callbacks executed
	Pending        int    // deferred callbacks still queued

	BuffersAllocated int // command buffers created
	BuffersRecycled  int // commits served by a completed buffer
	BuffersInFlight  int // submitted buffers awaiting reuse
}

// Scheduler drives recording and submission for one command stream.
//
// A Scheduler is not safe for concurrent use. See the package
// documentation for the concurrency model.
type Scheduler struct {
	dev     gpucore.Device
	queue   gpucore.Queue
	ticks   *tick.Authority
	pool    *cmdpool.Pool
	pending pending.Queue
	arbiter *Arbiter

	profiler gpucore.Profiler
	scope    gpucore.ProfileScope

	cb        gpucore.CommandBuffer
	rendering bool
	state     gpucore.RenderState

	fatal FatalHandler
	log   *slog.Logger
	label string

	stats  Stats
	closed bool
	dead   *FatalError
}

// New creates a Scheduler over dev and opens its first command buffer.
func New(dev gpucore.Device, opts ...Option) (*Scheduler, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		dev:     dev,
		queue:   dev.Queue(),
		arbiter: o.arbiter,
		fatal:   o.fatal,
		log:     o.logger,
		label:   o.label,
	}
	propagateLogger(dev, s.logger())

	timeline, err := dev.NewTimeline()
	if err != nil {
		return nil, fmt.Errorf("gpusched: create timeline: %w", err)
	}
	s.ticks = tick.New(timeline)
	s.pool = cmdpool.New(dev, s.ticks)
	s.profiler = profilerFor(dev)

	if err := s.open(); err != nil {
		return nil, fmt.Errorf("gpusched: first command buffer: %w", err)
	}

	_, noProfiler := s.profiler.(nullProfiler)
	s.logger().Info("gpusched: scheduler created", "label", s.label, "profiling", !noProfiler)
	return s, nil
}

func (s *Scheduler) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return Logger()
}

func (s *Scheduler) checkUsable() {
	if s.closed {
		panic(ErrClosed)
	}
	if s.dead != nil {
		panic(s.dead)
	}
}

// open commits a fresh command buffer and starts its profiling scope.
func (s *Scheduler) open() error {
	cb, err := s.pool.Commit()
	if err != nil {
		return err
	}
	s.cb = cb
	s.scope = s.profiler.Begin(cb)
	return nil
}

// BeginRendering opens a render pass over state. If a pass over an equal
// state is already open it does nothing; any other open pass is ended
// first.
func (s *Scheduler) BeginRendering(state gpucore.RenderState) {
	s.checkUsable()
	if s.rendering && s.state.Equal(&state) {
		return
	}
	s.endRendering()

	s.rendering = true
	s.state = state
	s.cb.BeginRendering(&s.state)
	s.stats.Passes++
}

// EndRendering closes the open render pass, if any, and records the
// barrier that makes its attachments readable by later fragment shaders.
func (s *Scheduler) EndRendering() {
	s.checkUsable()
	s.endRendering()
}

func (s *Scheduler) endRendering() {
	if !s.rendering {
		return
	}
	s.rendering = false
	s.cb.EndRendering()

	b := barriersFor(&s.state)
	if b.n == 0 {
		return
	}
	s.cb.PipelineBarrier(b.src, dstStage, gpucore.DependencyByRegion, b.list())
	s.stats.BarrierBatches++
	s.stats.Barriers += uint64(b.n)
}

// Flush submits the recorded work with the waits and signals of info and
// returns without waiting for the GPU. A nil info submits with no extra
// waits or signals. Flush returns the tick assigned to the submission.
//
// info is consumed: the scheduler appends its own signal to it.
func (s *Scheduler) Flush(info *gpucore.SubmitInfo) uint64 {
	s.checkUsable()
	return s.mustSubmit(info)
}

// Finish submits the recorded work and blocks until it has executed.
func (s *Scheduler) Finish(ctx context.Context) error {
	s.checkUsable()
	presubmit := s.ticks.PeekNext()
	s.mustSubmit(nil)
	return s.wait(ctx, presubmit)
}

// Wait blocks until tick has completed.
//
// If tick is the one the next submission would be assigned, Wait flushes
// first so that the tick is guaranteed to be signaled. A tick further
// ahead than that can never be reached by this call and returns
// ErrTickNotSubmitted.
func (s *Scheduler) Wait(ctx context.Context, tick uint64) error {
	s.checkUsable()
	if tick >= s.ticks.PeekNext() {
		s.mustSubmit(nil)
	}
	return s.wait(ctx, tick)
}

func (s *Scheduler) wait(ctx context.Context, t uint64) error {
	err := s.ticks.Wait(ctx, t)
	if err == nil {
		s.drain()
		return nil
	}
	if errors.Is(err, gpucore.ErrDeviceLost) {
		s.die(s.fatalResult(t, err))
	}
	return fmt.Errorf("gpusched: wait for tick %d: %w", t, err)
}

// Defer queues fn to run once the work recorded so far has completed on
// the GPU. Callbacks run in the order they were deferred, during a later
// Flush, Finish, Wait or Close.
func (s *Scheduler) Defer(fn func()) {
	s.checkUsable()
	s.pending.Push(s.ticks.PeekNext(), fn)
}

// mustSubmit runs submit and escalates a fatal result.
func (s *Scheduler) mustSubmit(info *gpucore.SubmitInfo) uint64 {
	if info == nil {
		info = &gpucore.SubmitInfo{}
	}
	t, fe := s.submit(info)
	if fe != nil {
		s.die(fe)
	}
	return t
}

// submit closes the current command buffer, hands it to the queue and
// opens the next one. A non-nil *FatalError means the device can no longer
// be used.
func (s *Scheduler) submit(info *gpucore.SubmitInfo) (uint64, *FatalError) {
	t, fe := s.submitLocked(info)
	if fe != nil {
		return t, fe
	}

	completed, err := s.ticks.Refresh()
	if err != nil {
		if errors.Is(err, gpucore.ErrDeviceLost) {
			return t, s.fatalResult(t, err)
		}
		s.logger().Warn("gpusched: timeline refresh failed", "label", s.label, "error", err)
	}

	s.pool.Retire(s.cb, t)
	s.cb = nil
	if err := s.open(); err != nil {
		return t, s.fatalResult(t, fmt.Errorf("open command buffer: %w", err))
	}

	s.stats.Submissions++
	s.logger().Debug("gpusched: submitted",
		"label", s.label, "tick", t, "completed", completed,
		"waits", info.Waits(), "signals", info.Signals())

	s.drainTo(completed)
	return t, nil
}

// submitLocked is the part of a submission that must not interleave with
// other submitters of the queue.
func (s *Scheduler) submitLocked(info *gpucore.SubmitInfo) (uint64, *FatalError) {
	s.arbiter.Lock()
	defer s.arbiter.Unlock()

	t := s.ticks.Allocate()
	info.AddSignal(s.ticks.Timeline(), t)

	s.scope.End()
	s.profiler.Collect(s.cb)
	s.endRendering()

	if err := s.cb.End(); err != nil {
		return t, s.fatalResult(t, fmt.Errorf("end command buffer: %w", err))
	}
	if err := s.queue.Submit(s.cb, info); err != nil {
		return t, s.fatalResult(t, err)
	}
	s.arbiter.submissions.Add(1)
	return t, nil
}

// drain runs deferred callbacks whose tick has completed.
func (s *Scheduler) drain() {
	s.drainTo(s.ticks.Completed())
}

func (s *Scheduler) drainTo(completed uint64) {
	if n := s.pending.Drain(completed); n > 0 {
		s.stats.DeferredRun += uint64(n)
	}
}

// Close waits for all submitted work, runs the remaining deferred
// callbacks and releases the command buffers. The Scheduler must not be
// used afterwards.
func (s *Scheduler) Close(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.dead != nil {
		panic(s.dead)
	}
	if err := s.Finish(ctx); err != nil {
		return err
	}
	s.closed = true

	s.scope.End()
	s.cb.Destroy()
	s.cb = nil
	s.pool.Destroy()
	s.drain()

	if n := s.pending.Len(); n > 0 {
		s.logger().Warn("gpusched: deferred callbacks left at close", "label", s.label, "count", n)
	}
	s.logger().Info("gpusched: scheduler closed", "label", s.label, "submissions", s.stats.Submissions)
	return nil
}

// CurrentTick returns the tick the next submission will be assigned.
// Work recorded now completes when this tick does.
func (s *Scheduler) CurrentTick() uint64 { return s.ticks.PeekNext() }

// CompletedTick returns the last tick known to have completed.
func (s *Scheduler) CompletedTick() uint64 { return s.ticks.Completed() }

// IsFree reports whether tick has completed.
func (s *Scheduler) IsFree(tick uint64) bool { return s.ticks.IsFree(tick) }

// IsRendering reports whether a render pass is open.
func (s *Scheduler) IsRendering() bool { return s.rendering }

// RenderState returns the state of the open render pass. The second
// result is false when no pass is open.
func (s *Scheduler) RenderState() (gpucore.RenderState, bool) {
	return s.state, s.rendering
}

// CommandBuffer returns the buffer currently being recorded. It changes on
// every submission; do not keep it across Flush, Finish or Wait.
func (s *Scheduler) CommandBuffer() gpucore.CommandBuffer {
	s.checkUsable()
	return s.cb
}

// Arbiter returns the arbiter serializing this scheduler's submissions.
func (s *Scheduler) Arbiter() *Arbiter { return s.arbiter }

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Pending = s.pending.Len()
	ps := s.pool.Stats()
	st.BuffersAllocated = ps.Allocated
	st.BuffersRecycled = ps.Recycled
	st.BuffersInFlight = ps.InFlight
	return st
}
