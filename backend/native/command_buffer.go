package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusched/gpucore"
)

// CommandBuffer records through one HAL command encoder.
//
// Recording methods of gpucore.CommandBuffer return nothing, so the first
// recording error is kept and reported by End.
type CommandBuffer struct {
	dev   *Device
	enc   hal.CommandEncoder
	label string

	pass      hal.RenderPassEncoder
	recording bool
	err       error

	// recorded is the result of the last End. It is reset on the next
	// Begin, which only happens once its submission completed.
	recorded  hal.CommandBuffer
	submitted uint64
}

var _ gpucore.CommandBuffer = (*CommandBuffer)(nil)

// Label returns the debug label of the underlying encoder.
func (c *CommandBuffer) Label() string { return c.label }

// Encoder returns the HAL encoder for recording draw commands while the
// buffer is open.
func (c *CommandBuffer) Encoder() hal.CommandEncoder { return c.enc }

// Pass returns the open render pass encoder, or nil.
func (c *CommandBuffer) Pass() hal.RenderPassEncoder { return c.pass }

// Begin implements gpucore.CommandBuffer.
func (c *CommandBuffer) Begin() error {
	if c.enc == nil {
		return errors.New("native: begin of destroyed command buffer")
	}
	c.release()
	c.err = nil
	if err := c.enc.BeginEncoding(c.label); err != nil {
		return fmt.Errorf("native: begin encoding %s: %w", c.label, err)
	}
	c.recording = true
	return nil
}

func (c *CommandBuffer) release() {
	if c.recorded == nil {
		return
	}
	c.enc.ResetAll([]hal.CommandBuffer{c.recorded})
	c.recorded = nil
	c.submitted = 0
}

func (c *CommandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// BeginRendering implements gpucore.CommandBuffer. Attachment views must
// be hal.TextureView values.
func (c *CommandBuffer) BeginRendering(state *gpucore.RenderState) {
	if !c.recording {
		c.fail(errors.New("native: render pass outside recording"))
		return
	}
	if c.pass != nil {
		c.fail(ErrPassOpen)
		return
	}
	desc, err := renderPassDescriptor(c.label, state)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass = c.enc.BeginRenderPass(desc)
}

func renderPassDescriptor(label string, state *gpucore.RenderState) (*hal.RenderPassDescriptor, error) {
	desc := &hal.RenderPassDescriptor{
		Label:            label,
		ColorAttachments: make([]hal.RenderPassColorAttachment, 0, state.NumColorAttachments),
	}
	for i, att := range state.Colors() {
		view, ok := att.View.(hal.TextureView)
		if !ok {
			return nil, fmt.Errorf("%w: color attachment %d view is %T", ErrForeignHandle, i, att.View)
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     att.Load,
			StoreOp:    att.Store,
			ClearValue: att.Clear,
		})
	}
	if state.HasDepth {
		att := state.DepthAttachment
		view, ok := att.View.(hal.TextureView)
		if !ok {
			return nil, fmt.Errorf("%w: depth attachment view is %T", ErrForeignHandle, att.View)
		}
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     att.Load,
			DepthStoreOp:    att.Store,
			DepthClearValue: att.ClearDepth,
			DepthReadOnly:   att.Layout == gpucore.LayoutDepthStencilReadOnly,
		}
		if state.HasStencil {
			ds.StencilLoadOp = att.Load
			ds.StencilStoreOp = att.Store
			ds.StencilClearValue = att.ClearStencil
			ds.StencilReadOnly = ds.DepthReadOnly
		}
		desc.DepthStencilAttachment = ds
	}
	return desc, nil
}

// EndRendering implements gpucore.CommandBuffer.
func (c *CommandBuffer) EndRendering() {
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass = nil
}

// PipelineBarrier implements gpucore.CommandBuffer as texture usage
// transitions. Images must be hal.Texture values.
func (c *CommandBuffer) PipelineBarrier(_, _ gpucore.PipelineStage, _ gpucore.DependencyFlags, barriers []gpucore.ImageBarrier) {
	if c.pass != nil {
		c.fail(fmt.Errorf("%w: barrier inside render pass", ErrPassOpen))
		return
	}
	if len(barriers) == 0 {
		return
	}
	transitions := make([]hal.TextureBarrier, 0, len(barriers))
	for i := range barriers {
		b := &barriers[i]
		tex, ok := b.Image.(hal.Texture)
		if !ok {
			c.fail(fmt.Errorf("%w: barrier image %d is %T", ErrForeignHandle, i, b.Image))
			return
		}
		transitions = append(transitions, hal.TextureBarrier{
			Texture: tex,
			Range:   textureRange(b.Range),
			Usage: hal.TextureUsageTransition{
				OldUsage: usageFor(b.SrcAccess),
				NewUsage: usageFor(b.DstAccess),
			},
		})
	}
	c.enc.TransitionTextures(transitions)
}

// usageFor maps an access mask to the texture usage HAL tracks.
func usageFor(a gpucore.Access) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if a&(gpucore.AccessColorAttachmentWrite|gpucore.AccessDepthStencilAttachmentWrite) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if a.Has(gpucore.AccessShaderRead) {
		u |= gputypes.TextureUsageTextureBinding
	}
	if a.Has(gpucore.AccessShaderWrite) {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

func textureRange(r gpucore.SubresourceRange) hal.TextureRange {
	out := hal.TextureRange{
		Aspect:          aspectFor(r.Aspect),
		BaseMipLevel:    r.BaseMipLevel,
		MipLevelCount:   r.LevelCount,
		BaseArrayLayer:  r.BaseArrayLayer,
		ArrayLayerCount: r.LayerCount,
	}
	// HAL uses 0 for "all remaining".
	if r.LevelCount == gpucore.RemainingMipLevels {
		out.MipLevelCount = 0
	}
	if r.LayerCount == gpucore.RemainingArrayLayers {
		out.ArrayLayerCount = 0
	}
	return out
}

func aspectFor(a gpucore.Aspect) gputypes.TextureAspect {
	switch a {
	case gpucore.AspectDepth:
		return gputypes.TextureAspectDepthOnly
	case gpucore.AspectStencil:
		return gputypes.TextureAspectStencilOnly
	default:
		return gputypes.TextureAspectAll
	}
}

// End implements gpucore.CommandBuffer.
func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.New("native: end without begin")
	}
	if c.pass != nil {
		c.fail(fmt.Errorf("%w: at end of %s", ErrPassOpen, c.label))
		c.pass.End()
		c.pass = nil
	}
	if c.err != nil {
		c.enc.DiscardEncoding()
		c.recording = false
		return c.err
	}
	cb, err := c.enc.EndEncoding()
	c.recording = false
	if err != nil {
		return fmt.Errorf("native: end encoding %s: %w", c.label, err)
	}
	c.recorded = cb
	return nil
}

// Destroy implements gpucore.CommandBuffer.
func (c *CommandBuffer) Destroy() {
	if c.enc == nil {
		return
	}
	if c.recording {
		c.enc.DiscardEncoding()
		c.recording = false
	}
	c.release()
	c.enc.Destroy()
	c.enc = nil
}
