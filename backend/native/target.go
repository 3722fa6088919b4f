package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusched/gpucore"
)

// Target is a 2D texture with one view, usable as a render pass
// attachment and as a barrier image.
type Target struct {
	Texture hal.Texture
	View    hal.TextureView
	Format  gputypes.TextureFormat
	Width   uint32
	Height  uint32
}

// NewTarget creates a render target that can also be sampled and stored
// to by shaders after the pass ends.
func (d *Device) NewTarget(label string, format gputypes.TextureFormat, width, height uint32) (*Target, error) {
	tex, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %s: %w", label, err)
	}
	view, err := d.hal.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:     label + "_view",
		Format:    format,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		d.hal.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create view %s: %w", label, err)
	}
	return &Target{Texture: tex, View: view, Format: format, Width: width, Height: height}, nil
}

// Attachment returns a pass attachment that clears to clear and stores.
func (t *Target) Attachment(layout gpucore.Layout, clear gputypes.Color) gpucore.Attachment {
	return gpucore.Attachment{
		View:       t.View,
		Layout:     layout,
		Load:       gputypes.LoadOpClear,
		Store:      gputypes.StoreOpStore,
		Clear:      clear,
		ClearDepth: 1,
	}
}

// DestroyTarget releases t. It must not be in use by pending work.
func (d *Device) DestroyTarget(t *Target) {
	if t == nil {
		return
	}
	d.hal.DestroyTextureView(t.View)
	d.hal.DestroyTexture(t.Texture)
}
