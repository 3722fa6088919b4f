// Package native implements the gpusched device contracts on top of the
// gogpu/wgpu hardware abstraction layer.
//
// Any registered HAL backend can be used: Vulkan, Metal, DX12, GLES, the
// software rasterizer or the noop backend used in tests. Link a backend in
// with a blank import, then open it:
//
//	import _ "github.com/gogpu/wgpu/hal/noop"
//
//	dev, err := native.Open(gputypes.BackendEmpty)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//	s, err := gpusched.New(dev)
//
// Timelines are emulated from queue submission indexes: a signal of value v
// in a submission is reached once the queue reports that submission
// complete. Stage masks of barriers are not needed by HAL, which derives
// synchronization from texture usage transitions.
package native

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusched/gpucore"
)

// Device adapts a hal.Device and its queue to gpucore.Device.
type Device struct {
	hal   hal.Device
	queue *Queue
	info  gputypes.AdapterInfo

	// instance is set when Open created the device; Close then owns it.
	instance hal.Instance

	mu        sync.Mutex
	profiler  *SpanProfiler
	nextLabel int
	closed    bool
}

var (
	_ gpucore.Device           = (*Device)(nil)
	_ gpucore.ProfilerProvider = (*Device)(nil)
)

// New wraps an already opened HAL device and queue. The caller keeps
// ownership of both; Close only waits for the device to go idle.
func New(dev hal.Device, queue hal.Queue) *Device {
	d := &Device{hal: dev}
	d.queue = &Queue{dev: d, hal: queue}
	return d
}

// Open creates an instance of the registered HAL backend variant, picks an
// adapter (discrete, then integrated, then the first one) and opens a
// device on it.
func Open(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := pickAdapter(adapters)

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	d := New(open.Device, open.Queue)
	d.info = selected.Info
	d.instance = instance
	slogger().Info("native: device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType.String(),
		"backend", selected.Info.Backend.String())
	return d, nil
}

func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// FromProvider shares the device of an external gpucontext.DeviceProvider
// such as a gogpu window. The provider keeps ownership of the device.
//
// Providers that expose HalDevice() and HalQueue() are preferred; otherwise
// Device() and Queue() must themselves be hal.Device and hal.Queue.
func FromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}

	var devAny, queueAny any
	if hp, ok := p.(halProvider); ok {
		devAny, queueAny = hp.HalDevice(), hp.HalQueue()
	} else {
		devAny, queueAny = p.Device(), p.Queue()
	}

	dev, ok := devAny.(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrNotHALProvider, devAny)
	}
	queue, ok := queueAny.(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrNotHALProvider, queueAny)
	}

	d := New(dev, queue)
	info := p.AdapterInfo()
	d.info = gputypes.AdapterInfo{Name: info.Name}
	slogger().Info("native: using provider device", "adapter", info.Name, "type", info.Type.String())
	return d, nil
}

// HAL returns the wrapped HAL device.
func (d *Device) HAL() hal.Device { return d.hal }

// Info returns adapter information when known.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// SetLogger sets the logger of the native backend. gpusched calls it when
// a scheduler is created over the device.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Queue implements gpucore.Device.
func (d *Device) Queue() gpucore.Queue { return d.queue }

// NewTimeline implements gpucore.Device.
func (d *Device) NewTimeline() (gpucore.Timeline, error) {
	return &Timeline{queue: d.queue}, nil
}

// NewCommandBuffer implements gpucore.Device. Each buffer owns one HAL
// command encoder that is reset and reused across recordings.
func (d *Device) NewCommandBuffer() (gpucore.CommandBuffer, error) {
	d.mu.Lock()
	d.nextLabel++
	label := fmt.Sprintf("gpusched_cmd_%d", d.nextLabel)
	d.mu.Unlock()

	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	return &CommandBuffer{dev: d, enc: enc, label: label}, nil
}

// NewFence creates a fence that can be set on gpucore.SubmitInfo.
func (d *Device) NewFence() *Fence {
	return &Fence{queue: d.queue}
}

// EnableProfiling makes Profiler return a SpanProfiler that measures how
// long each command buffer stays open for recording.
func (d *Device) EnableProfiling() *SpanProfiler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.profiler == nil {
		d.profiler = newSpanProfiler()
	}
	return d.profiler
}

// Profiler implements gpucore.ProfilerProvider. It is nil until
// EnableProfiling is called.
func (d *Device) Profiler() gpucore.Profiler {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.profiler == nil {
		return nil
	}
	return d.profiler
}

// Close waits for the device to go idle. Devices created by Open are also
// destroyed together with their instance.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.hal.WaitIdle()
	if err != nil {
		err = fmt.Errorf("native: wait idle: %w", d.queue.mapError(err))
	}
	if d.instance != nil {
		d.hal.Destroy()
		d.instance.Destroy()
		d.instance = nil
	}
	return err
}
