package gpusched

import "github.com/gogpu/gpusched/gpucore"

// passBarriers is the barrier batch emitted when a render pass ends.
// It holds at most one barrier per color attachment plus one for depth.
type passBarriers struct {
	src      gpucore.PipelineStage
	barriers [gpucore.MaxPassBarriers]gpucore.ImageBarrier
	n        int
}

// dstStage is where sampling of the rendered attachments happens.
const dstStage = gpucore.StageFragmentShader

const shaderAccess = gpucore.AccessShaderRead | gpucore.AccessShaderWrite

func (b *passBarriers) push(ib gpucore.ImageBarrier) {
	b.barriers[b.n] = ib
	b.n++
}

// list returns the filled part of the batch.
func (b *passBarriers) list() []gpucore.ImageBarrier {
	return b.barriers[:b.n]
}

// barriersFor makes the writes of every attachment in rs visible to
// fragment shaders of later passes. Layouts are left unchanged.
func barriersFor(rs *gpucore.RenderState) passBarriers {
	b := passBarriers{src: gpucore.StageColorAttachmentOutput}

	for i := 0; i < rs.NumColorAttachments; i++ {
		b.push(gpucore.ImageBarrier{
			SrcAccess:      gpucore.AccessColorAttachmentWrite,
			DstAccess:      shaderAccess,
			OldLayout:      gpucore.LayoutColorAttachment,
			NewLayout:      gpucore.LayoutColorAttachment,
			SrcQueueFamily: gpucore.QueueFamilyIgnored,
			DstQueueFamily: gpucore.QueueFamilyIgnored,
			Image:          rs.ColorImages[i],
			Range:          gpucore.FullRange(gpucore.AspectColor),
		})
	}

	if rs.HasDepth {
		aspect := gpucore.AspectDepth
		if rs.HasStencil {
			aspect |= gpucore.AspectStencil
		}
		layout := rs.DepthAttachment.Layout
		b.push(gpucore.ImageBarrier{
			SrcAccess:      gpucore.AccessDepthStencilAttachmentWrite,
			DstAccess:      shaderAccess,
			OldLayout:      layout,
			NewLayout:      layout,
			SrcQueueFamily: gpucore.QueueFamilyIgnored,
			DstQueueFamily: gpucore.QueueFamilyIgnored,
			Image:          rs.DepthImage,
			Range:          gpucore.FullRange(aspect),
		})
		b.src |= gpucore.StageEarlyFragmentTests | gpucore.StageLateFragmentTests
	}
	return b
}
