// Package fakegpu is an in-memory gpucore device for tests and dry runs.
//
// Submissions complete either immediately (auto mode) or when the caller
// completes them in order with CompleteNext/CompleteAll. Every command
// recorded into its buffers is kept so that tests can inspect exactly what
// a scheduler emitted. Lifecycle misuse is recorded as a violation instead
// of panicking.
package fakegpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpusched/gpucore"
)

// ErrInjected is the default error for injected failures.
var ErrInjected = errors.New("fakegpu: injected failure")

// Option configures a Device.
type Option func(*Device)

// WithAutoComplete makes every submission complete as soon as it is
// submitted.
func WithAutoComplete() Option {
	return func(d *Device) { d.auto = true }
}

// WithProfiler exposes a recording Profiler through ProfilerProvider.
func WithProfiler() Option {
	return func(d *Device) { d.profiler = &Profiler{} }
}

// Image is a fake image handle. Distinct images never compare equal.
type Image struct {
	ID    int
	Label string
}

// ImageView is a fake view of an Image.
type ImageView struct {
	ID    int
	Image *Image
}

// Fence is signaled when the submission carrying it completes.
type Fence struct {
	mu       sync.Mutex
	signaled bool
}

// Signaled reports whether the fence has been signaled.
func (f *Fence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

func (f *Fence) signal() {
	f.mu.Lock()
	f.signaled = true
	f.mu.Unlock()
}

// Wait is one wait entry of a recorded submission.
type Wait struct {
	Semaphore gpucore.Semaphore
	Value     uint64
	Stage     gpucore.PipelineStage
}

// Signal is one signal entry of a recorded submission.
type Signal struct {
	Semaphore gpucore.Semaphore
	Value     uint64
}

// Submission is a recorded Queue.Submit call.
type Submission struct {
	Index    int
	Buffer   *CommandBuffer
	Commands []Command
	Waits    []Wait
	Signals  []Signal
	Fence    gpucore.Fence
	Complete bool
}

// Device is a fake gpucore.Device. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	auto     bool
	profiler *Profiler
	queue    *Queue

	nextID      int
	buffers     []*CommandBuffer
	timelines   []*Timeline
	submissions []*Submission
	completed   int // submissions[:completed] are complete
	violations  []string

	lost        bool
	failSubmit  error
	failAlloc   error
	checkpoints []gpucore.Checkpoint
}

var (
	_ gpucore.Device           = (*Device)(nil)
	_ gpucore.ProfilerProvider = (*Device)(nil)
)

// New creates a fake device.
func New(opts ...Option) *Device {
	d := &Device{}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = &Queue{dev: d}
	return d
}

// Queue implements gpucore.Device.
func (d *Device) Queue() gpucore.Queue { return d.queue }

// NewTimeline implements gpucore.Device.
func (d *Device) NewTimeline() (gpucore.Timeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAlloc != nil {
		return nil, d.failAlloc
	}
	t := &Timeline{dev: d}
	t.cond = sync.NewCond(&t.mu)
	d.timelines = append(d.timelines, t)
	return t, nil
}

// NewCommandBuffer implements gpucore.Device.
func (d *Device) NewCommandBuffer() (gpucore.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAlloc != nil {
		return nil, d.failAlloc
	}
	d.nextID++
	cb := &CommandBuffer{dev: d, ID: d.nextID}
	d.buffers = append(d.buffers, cb)
	return cb, nil
}

// Profiler implements gpucore.ProfilerProvider. It returns nil unless the
// device was created WithProfiler.
func (d *Device) Profiler() gpucore.Profiler {
	if d.profiler == nil {
		return nil
	}
	return d.profiler
}

// Recorder returns the profiler created by WithProfiler, or nil.
func (d *Device) Recorder() *Profiler { return d.profiler }

// NewImage creates a distinct image and a view of it.
func (d *Device) NewImage(label string) (*Image, *ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	img := &Image{ID: d.nextID, Label: label}
	d.nextID++
	return img, &ImageView{ID: d.nextID, Image: img}
}

// NewFence creates an unsignaled fence.
func (d *Device) NewFence() *Fence { return &Fence{} }

// Lose marks the device as lost. Subsequent submissions and waits fail
// with an error wrapping gpucore.ErrDeviceLost.
func (d *Device) Lose(checkpoints ...gpucore.Checkpoint) {
	d.mu.Lock()
	d.lost = true
	d.checkpoints = append(d.checkpoints, checkpoints...)
	timelines := append([]*Timeline(nil), d.timelines...)
	d.mu.Unlock()

	for _, t := range timelines {
		t.broadcast()
	}
}

// FailNextSubmit makes the next Submit return err (ErrInjected if nil).
func (d *Device) FailNextSubmit(err error) {
	if err == nil {
		err = ErrInjected
	}
	d.mu.Lock()
	d.failSubmit = err
	d.mu.Unlock()
}

// FailAllocations makes every following allocation return err. Pass nil to
// clear.
func (d *Device) FailAllocations(err error) {
	d.mu.Lock()
	d.failAlloc = err
	d.mu.Unlock()
}

// Submissions returns the recorded submissions in submission order.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Submission, len(d.submissions))
	for i, s := range d.submissions {
		out[i] = *s
	}
	return out
}

// BufferCount returns the number of command buffers ever allocated.
func (d *Device) BufferCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Violations returns every lifecycle misuse observed so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

func (d *Device) violate(format string, args ...any) {
	d.mu.Lock()
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

// Pending returns the number of submitted but incomplete submissions.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submissions) - d.completed
}

// CompleteNext completes the oldest incomplete submission. It reports
// whether there was one.
func (d *Device) CompleteNext() bool {
	d.mu.Lock()
	if d.completed >= len(d.submissions) {
		d.mu.Unlock()
		return false
	}
	s := d.submissions[d.completed]
	d.completed++
	s.Complete = true
	s.Buffer.pending = false
	d.mu.Unlock()

	applySignals(s)
	return true
}

// CompleteAll completes every outstanding submission and returns how many
// there were.
func (d *Device) CompleteAll() int {
	n := 0
	for d.CompleteNext() {
		n++
	}
	return n
}

func applySignals(s *Submission) {
	for _, sig := range s.Signals {
		if t, ok := sig.Semaphore.(*Timeline); ok {
			t.Signal(sig.Value)
		}
	}
	if f, ok := s.Fence.(*Fence); ok {
		f.signal()
	}
}

// Queue is the fake graphics queue.
type Queue struct {
	dev *Device
}

var (
	_ gpucore.Queue              = (*Queue)(nil)
	_ gpucore.CheckpointReporter = (*Queue)(nil)
)

// Submit implements gpucore.Queue.
func (q *Queue) Submit(cb gpucore.CommandBuffer, info *gpucore.SubmitInfo) error {
	d := q.dev
	buf, ok := cb.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("fakegpu: foreign command buffer %T", cb)
	}

	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return fmt.Errorf("%w: fakegpu submit", gpucore.ErrDeviceLost)
	}
	if err := d.failSubmit; err != nil {
		d.failSubmit = nil
		d.mu.Unlock()
		return err
	}
	if buf.state != stateExecutable {
		d.violations = append(d.violations,
			fmt.Sprintf("submit of buffer %d in state %s", buf.ID, buf.state))
	}

	s := &Submission{
		Index:    len(d.submissions),
		Buffer:   buf,
		Commands: append([]Command(nil), buf.commands...),
	}
	if info != nil {
		for i := range info.WaitSemaphores {
			s.Waits = append(s.Waits, Wait{
				Semaphore: info.WaitSemaphores[i],
				Value:     info.WaitValues[i],
				Stage:     info.WaitStages[i],
			})
		}
		for i := range info.SignalSemaphores {
			s.Signals = append(s.Signals, Signal{
				Semaphore: info.SignalSemaphores[i],
				Value:     info.SignalValues[i],
			})
		}
		s.Fence = info.Fence
	}
	buf.state = statePending
	buf.pending = true
	d.submissions = append(d.submissions, s)
	auto := d.auto
	d.mu.Unlock()

	if auto {
		d.CompleteNext()
	}
	return nil
}

// Checkpoints implements gpucore.CheckpointReporter.
func (q *Queue) Checkpoints() []gpucore.Checkpoint {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return append([]gpucore.Checkpoint(nil), q.dev.checkpoints...)
}
