package native

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpusched/gpucore"
)

// recordingEncoder wraps a HAL encoder and records pass and barrier calls.
type recordingEncoder struct {
	hal.CommandEncoder

	mu          sync.Mutex
	passes      []*hal.RenderPassDescriptor
	transitions [][]hal.TextureBarrier
	resets      int
	destroyed   bool
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.mu.Lock()
	e.passes = append(e.passes, desc)
	e.mu.Unlock()
	return e.CommandEncoder.BeginRenderPass(desc)
}

func (e *recordingEncoder) TransitionTextures(barriers []hal.TextureBarrier) {
	e.mu.Lock()
	e.transitions = append(e.transitions, append([]hal.TextureBarrier(nil), barriers...))
	e.mu.Unlock()
	e.CommandEncoder.TransitionTextures(barriers)
}

func (e *recordingEncoder) ResetAll(cbs []hal.CommandBuffer) {
	e.mu.Lock()
	e.resets++
	e.mu.Unlock()
	e.CommandEncoder.ResetAll(cbs)
}

func (e *recordingEncoder) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
	e.CommandEncoder.Destroy()
}

// recordingDevice hands out recordingEncoders.
type recordingDevice struct {
	hal.Device

	mu       sync.Mutex
	encoders []*recordingEncoder
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	rec := &recordingEncoder{CommandEncoder: enc}
	d.mu.Lock()
	d.encoders = append(d.encoders, rec)
	d.mu.Unlock()
	return rec, nil
}

// controlledQueue holds back completion until released and can simulate
// device loss.
type controlledQueue struct {
	hal.Queue

	released atomic.Uint64
	manual   bool
	lose     atomic.Bool
}

func (q *controlledQueue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	if q.lose.Load() {
		return 0, hal.ErrDeviceLost
	}
	return q.Queue.Submit(cbs)
}

func (q *controlledQueue) PollCompleted() uint64 {
	done := q.Queue.PollCompleted()
	if q.manual {
		return min(done, q.released.Load())
	}
	return done
}

type testDevice struct {
	*Device
	rec   *recordingDevice
	queue *controlledQueue
}

// openTestDevice opens a noop device wrapped for inspection. manual holds
// back queue completion until released.
func openTestDevice(t *testing.T, manual bool) *testDevice {
	t.Helper()
	base, err := Open(gputypes.BackendEmpty)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := base.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	rec := &recordingDevice{Device: base.HAL()}
	q := &controlledQueue{Queue: base.queue.HAL(), manual: manual}
	return &testDevice{Device: New(rec, q), rec: rec, queue: q}
}

func newBuffer(t *testing.T, d *testDevice) (*CommandBuffer, *recordingEncoder) {
	t.Helper()
	cb, err := d.NewCommandBuffer()
	if err != nil {
		t.Fatalf("NewCommandBuffer: %v", err)
	}
	d.rec.mu.Lock()
	enc := d.rec.encoders[len(d.rec.encoders)-1]
	d.rec.mu.Unlock()
	return cb.(*CommandBuffer), enc
}

func newTarget(t *testing.T, d *testDevice, label string, format gputypes.TextureFormat) *Target {
	t.Helper()
	tg, err := d.NewTarget(label, format, 64, 32)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	t.Cleanup(func() { d.DestroyTarget(tg) })
	return tg
}

func TestOpen(t *testing.T) {
	d, err := Open(gputypes.BackendEmpty)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := d.Info().Name; got != "Noop Adapter" {
		t.Errorf("Info().Name = %q, want %q", got, "Noop Adapter")
	}
	if d.Profiler() != nil {
		t.Error("Profiler() should be nil before EnableProfiling")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_NotRegistered(t *testing.T) {
	_, err := Open(gputypes.BackendVulkan)
	if !errors.Is(err, ErrBackendNotRegistered) {
		t.Fatalf("Open(Vulkan) error = %v, want ErrBackendNotRegistered", err)
	}
}

func TestCommandBuffer_RenderPass(t *testing.T) {
	d := openTestDevice(t, false)
	color := newTarget(t, d, "color", gputypes.TextureFormatRGBA8Unorm)
	depth := newTarget(t, d, "depth", gputypes.TextureFormatDepth24PlusStencil8)

	var rs gpucore.RenderState
	rs.Width, rs.Height = 64, 32
	rs.AddColor(color.Attachment(gpucore.LayoutColorAttachment, gputypes.Color{R: 1, A: 1}), color.Texture)
	rs.SetDepth(depth.Attachment(gpucore.LayoutDepthStencilAttachment, gputypes.Color{}), depth.Texture, true)

	cb, enc := newBuffer(t, d)
	if err := cb.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	cb.BeginRendering(&rs)
	if cb.Pass() == nil {
		t.Fatal("Pass() = nil after BeginRendering")
	}
	cb.EndRendering()
	if err := cb.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if len(enc.passes) != 1 {
		t.Fatalf("render passes = %d, want 1", len(enc.passes))
	}
	desc := enc.passes[0]
	if len(desc.ColorAttachments) != 1 {
		t.Fatalf("color attachments = %d, want 1", len(desc.ColorAttachments))
	}
	ca := desc.ColorAttachments[0]
	if ca.View != color.View || ca.LoadOp != gputypes.LoadOpClear || ca.StoreOp != gputypes.StoreOpStore {
		t.Errorf("color attachment = %+v", ca)
	}
	if ca.ClearValue.R != 1 {
		t.Errorf("clear R = %v, want 1", ca.ClearValue.R)
	}
	ds := desc.DepthStencilAttachment
	if ds == nil {
		t.Fatal("depth/stencil attachment missing")
	}
	if ds.DepthClearValue != 1 {
		t.Errorf("DepthClearValue = %v, want 1", ds.DepthClearValue)
	}
	if ds.StencilLoadOp != gputypes.LoadOpClear {
		t.Errorf("StencilLoadOp = %v, want clear", ds.StencilLoadOp)
	}
	if ds.DepthReadOnly {
		t.Error("DepthReadOnly set for a writable layout")
	}
}

func TestCommandBuffer_Barriers(t *testing.T) {
	d := openTestDevice(t, false)
	color := newTarget(t, d, "color", gputypes.TextureFormatRGBA8Unorm)
	depth := newTarget(t, d, "depth", gputypes.TextureFormatDepth24PlusStencil8)

	barriers := []gpucore.ImageBarrier{
		{
			SrcAccess: gpucore.AccessColorAttachmentWrite,
			DstAccess: gpucore.AccessShaderRead | gpucore.AccessShaderWrite,
			Image:     color.Texture,
			Range:     gpucore.FullRange(gpucore.AspectColor),
		},
		{
			SrcAccess: gpucore.AccessDepthStencilAttachmentWrite,
			DstAccess: gpucore.AccessShaderRead,
			Image:     depth.Texture,
			Range:     gpucore.FullRange(gpucore.AspectDepth | gpucore.AspectStencil),
		},
	}

	cb, enc := newBuffer(t, d)
	if err := cb.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	cb.PipelineBarrier(gpucore.StageColorAttachmentOutput, gpucore.StageFragmentShader, gpucore.DependencyByRegion, barriers)
	if err := cb.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if len(enc.transitions) != 1 {
		t.Fatalf("TransitionTextures calls = %d, want 1", len(enc.transitions))
	}
	got := enc.transitions[0]
	if len(got) != 2 {
		t.Fatalf("transitions = %d, want 2", len(got))
	}

	c := got[0]
	if c.Texture != color.Texture {
		t.Error("color transition targets the wrong texture")
	}
	if c.Usage.OldUsage != gputypes.TextureUsageRenderAttachment {
		t.Errorf("color old usage = %v", c.Usage.OldUsage)
	}
	if want := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding; c.Usage.NewUsage != want {
		t.Errorf("color new usage = %v, want %v", c.Usage.NewUsage, want)
	}
	if c.Range.Aspect != gputypes.TextureAspectAll || c.Range.MipLevelCount != 0 || c.Range.ArrayLayerCount != 0 {
		t.Errorf("color range = %+v, want all aspects and remaining levels/layers", c.Range)
	}

	ds := got[1]
	if ds.Range.Aspect != gputypes.TextureAspectAll {
		t.Errorf("depth+stencil aspect = %v, want all", ds.Range.Aspect)
	}
	if ds.Usage.NewUsage != gputypes.TextureUsageTextureBinding {
		t.Errorf("depth new usage = %v", ds.Usage.NewUsage)
	}
}

func TestAspectFor(t *testing.T) {
	tests := []struct {
		in   gpucore.Aspect
		want gputypes.TextureAspect
	}{
		{gpucore.AspectColor, gputypes.TextureAspectAll},
		{gpucore.AspectDepth, gputypes.TextureAspectDepthOnly},
		{gpucore.AspectStencil, gputypes.TextureAspectStencilOnly},
		{gpucore.AspectDepth | gpucore.AspectStencil, gputypes.TextureAspectAll},
	}
	for _, tt := range tests {
		if got := aspectFor(tt.in); got != tt.want {
			t.Errorf("aspectFor(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTextureRange_Explicit(t *testing.T) {
	r := textureRange(gpucore.SubresourceRange{
		Aspect:         gpucore.AspectColor,
		BaseMipLevel:   1,
		LevelCount:     2,
		BaseArrayLayer: 3,
		LayerCount:     4,
	})
	if r.BaseMipLevel != 1 || r.MipLevelCount != 2 || r.BaseArrayLayer != 3 || r.ArrayLayerCount != 4 {
		t.Errorf("textureRange = %+v", r)
	}
}

func TestCommandBuffer_Errors(t *testing.T) {
	d := openTestDevice(t, false)
	color := newTarget(t, d, "color", gputypes.TextureFormatRGBA8Unorm)

	var rs gpucore.RenderState
	rs.AddColor(color.Attachment(gpucore.LayoutColorAttachment, gputypes.Color{}), color.Texture)

	var foreign gpucore.RenderState
	foreign.AddColor(gpucore.Attachment{View: "not a view"}, color.Texture)

	tests := []struct {
		name   string
		record func(cb *CommandBuffer)
		want   error
	}{
		{
			name:   "pass left open",
			record: func(cb *CommandBuffer) { cb.BeginRendering(&rs) },
			want:   ErrPassOpen,
		},
		{
			name: "nested pass",
			record: func(cb *CommandBuffer) {
				cb.BeginRendering(&rs)
				cb.BeginRendering(&rs)
				cb.EndRendering()
			},
			want: ErrPassOpen,
		},
		{
			name: "barrier inside pass",
			record: func(cb *CommandBuffer) {
				cb.BeginRendering(&rs)
				cb.PipelineBarrier(gpucore.StageNone, gpucore.StageNone, 0,
					[]gpucore.ImageBarrier{{Image: color.Texture}})
				cb.EndRendering()
			},
			want: ErrPassOpen,
		},
		{
			name:   "foreign view",
			record: func(cb *CommandBuffer) { cb.BeginRendering(&foreign) },
			want:   ErrForeignHandle,
		},
		{
			name: "foreign barrier image",
			record: func(cb *CommandBuffer) {
				cb.PipelineBarrier(gpucore.StageNone, gpucore.StageNone, 0,
					[]gpucore.ImageBarrier{{Image: 42}})
			},
			want: ErrForeignHandle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newBuffer(t, d)
			defer cb.Destroy()
			if err := cb.Begin(); err != nil {
				t.Fatalf("Begin: %v", err)
			}
			tt.record(cb)
			err := cb.End()
			if !errors.Is(err, tt.want) {
				t.Fatalf("End() error = %v, want %v", err, tt.want)
			}
			// The buffer stays usable after a failed recording.
			if err := cb.Begin(); err != nil {
				t.Fatalf("Begin after failure: %v", err)
			}
			if err := cb.End(); err != nil {
				t.Fatalf("End after failure: %v", err)
			}
		})
	}
}

func TestCommandBuffer_ResetAndDestroy(t *testing.T) {
	d := openTestDevice(t, false)
	cb, enc := newBuffer(t, d)

	for range 3 {
		if err := cb.Begin(); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := cb.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
	}
	if enc.resets != 2 {
		t.Errorf("resets = %d, want 2", enc.resets)
	}

	cb.Destroy()
	cb.Destroy()
	if !enc.destroyed {
		t.Error("encoder not destroyed")
	}
	if err := cb.Begin(); err == nil {
		t.Error("Begin on destroyed buffer should fail")
	}
}

func TestQueue_SubmitSignalsTimeline(t *testing.T) {
	d := openTestDevice(t, true)
	tl, _ := d.NewTimeline()
	fence := d.NewFence()

	cb, _ := newBuffer(t, d)
	if err := cb.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := cb.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	info := &gpucore.SubmitInfo{Fence: fence}
	info.AddSignal(tl, 7)
	if err := d.Queue().Submit(cb, info); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if v, err := tl.Value(); err != nil || v != 0 {
		t.Fatalf("Value before completion = %d, %v; want 0", v, err)
	}
	if fence.Signaled() {
		t.Error("fence signaled before completion")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := tl.Wait(ctx, 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait before completion = %v, want deadline exceeded", err)
	}

	d.queue.released.Store(cb.submitted)
	if err := tl.Wait(context.Background(), 7); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v, _ := tl.Value(); v != 7 {
		t.Errorf("Value = %d, want 7", v)
	}
	if !fence.Signaled() {
		t.Error("fence not signaled after completion")
	}
	fence.Reset()
	if fence.Signaled() {
		t.Error("fence signaled after Reset")
	}
}

func TestQueue_SubmitValidation(t *testing.T) {
	d := openTestDevice(t, false)
	other := openTestDevice(t, false)
	tl, _ := d.NewTimeline()
	foreignTL, _ := other.NewTimeline()

	ended := func() *CommandBuffer {
		cb, _ := newBuffer(t, d)
		if err := cb.Begin(); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := cb.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
		return cb
	}

	tests := []struct {
		name string
		cb   func() gpucore.CommandBuffer
		info func() *gpucore.SubmitInfo
		want error
	}{
		{
			name: "buffer of another device",
			cb: func() gpucore.CommandBuffer {
				cb, _ := newBuffer(t, other)
				return cb
			},
			want: ErrForeignHandle,
		},
		{
			name: "wait on foreign timeline",
			cb:   func() gpucore.CommandBuffer { return ended() },
			info: func() *gpucore.SubmitInfo {
				info := &gpucore.SubmitInfo{}
				info.AddWait(foreignTL, 1)
				return info
			},
			want: ErrForeignHandle,
		},
		{
			name: "wait never signaled",
			cb:   func() gpucore.CommandBuffer { return ended() },
			info: func() *gpucore.SubmitInfo {
				info := &gpucore.SubmitInfo{}
				info.AddWait(tl, 3)
				return info
			},
			want: ErrUnsatisfiableWait,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var info *gpucore.SubmitInfo
			if tt.info != nil {
				info = tt.info()
			}
			err := d.Queue().Submit(tt.cb(), info)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Submit error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestQueue_WaitOnEarlierSignal(t *testing.T) {
	d := openTestDevice(t, false)
	tl, _ := d.NewTimeline()

	submit := func(info *gpucore.SubmitInfo) {
		t.Helper()
		cb, _ := newBuffer(t, d)
		if err := cb.Begin(); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := cb.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
		if err := d.Queue().Submit(cb, info); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	first := &gpucore.SubmitInfo{}
	first.AddSignal(tl, 1)
	submit(first)

	second := &gpucore.SubmitInfo{}
	second.AddWait(tl, 1)
	second.AddSignal(tl, 2)
	submit(second)

	if err := tl.Wait(context.Background(), 2); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueue_DeviceLost(t *testing.T) {
	d := openTestDevice(t, false)
	tl, _ := d.NewTimeline()

	cb, _ := newBuffer(t, d)
	if err := cb.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := cb.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	d.queue.lose.Store(true)
	err := d.Queue().Submit(cb, nil)
	if !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Fatalf("Submit error = %v, want gpucore.ErrDeviceLost", err)
	}
	if !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("Submit error = %v, should keep hal.ErrDeviceLost", err)
	}

	if _, err := tl.Value(); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Value after loss = %v, want ErrDeviceLost", err)
	}
	if err := tl.Wait(context.Background(), 1); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Wait after loss = %v, want ErrDeviceLost", err)
	}
}

func TestSpanProfiler(t *testing.T) {
	p := newSpanProfiler()
	clock := time.Unix(0, 0)
	p.now = func() time.Time { return clock }

	d := openTestDevice(t, false)
	cb, _ := newBuffer(t, d)

	sc := p.Begin(cb)
	clock = clock.Add(3 * time.Millisecond)
	sc.End()
	clock = clock.Add(time.Hour)
	sc.End()
	p.Collect(cb)
	p.Collect(cb)

	spans := p.Spans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Duration != 3*time.Millisecond {
		t.Errorf("duration = %v, want 3ms", spans[0].Duration)
	}
	if spans[0].Buffer != cb.Label() {
		t.Errorf("buffer = %q, want %q", spans[0].Buffer, cb.Label())
	}
	if p.Total() != 3*time.Millisecond {
		t.Errorf("Total = %v, want 3ms", p.Total())
	}
}

func TestSpanProfiler_Bounded(t *testing.T) {
	p := newSpanProfiler()
	p.limit = 2
	d := openTestDevice(t, false)
	cb, _ := newBuffer(t, d)

	for range 5 {
		p.Begin(cb).End()
		p.Collect(cb)
	}
	if n := len(p.Spans()); n != 2 {
		t.Errorf("spans = %d, want 2", n)
	}
}
