package gpucore

import (
	"fmt"
	"strings"
)

// Opaque handles
//
// These are type tokens for backend objects. Concrete backends type-assert
// them back to their own types (e.g. hal.Texture, hal.TextureView).

// Image is an opaque handle to a GPU image used as an attachment.
type Image interface{}

// ImageView is an opaque handle to a view of an Image.
type ImageView interface{}

// Semaphore is an opaque handle usable in SubmitInfo wait/signal lists.
type Semaphore interface{}

// Fence is an opaque handle to an optional completion fence.
type Fence interface{}

// PipelineStage is a bitmask of pipeline stages used as barrier scopes.
type PipelineStage uint32

// Pipeline stages.
const (
	// StageNone is the empty stage mask.
	StageNone PipelineStage = 0

	// StageEarlyFragmentTests covers depth/stencil tests before fragment shading.
	StageEarlyFragmentTests PipelineStage = 1 << 0

	// StageFragmentShader covers fragment shader execution.
	StageFragmentShader PipelineStage = 1 << 1

	// StageLateFragmentTests covers depth/stencil tests after fragment shading.
	StageLateFragmentTests PipelineStage = 1 << 2

	// StageColorAttachmentOutput covers blending and color attachment writes.
	StageColorAttachmentOutput PipelineStage = 1 << 3

	// StageAllCommands covers every stage.
	StageAllCommands PipelineStage = 1 << 4
)

// Has reports whether all stages in flag are set in s.
func (s PipelineStage) Has(flag PipelineStage) bool {
	return s&flag == flag
}

// Access is a bitmask of memory access types.
type Access uint32

// Memory access types.
const (
	// AccessNone is the empty access mask.
	AccessNone Access = 0

	// AccessShaderRead is a read from any shader stage.
	AccessShaderRead Access = 1 << 0

	// AccessShaderWrite is a write from any shader stage.
	AccessShaderWrite Access = 1 << 1

	// AccessColorAttachmentWrite is a color attachment write.
	AccessColorAttachmentWrite Access = 1 << 2

	// AccessDepthStencilAttachmentWrite is a depth/stencil attachment write.
	AccessDepthStencilAttachmentWrite Access = 1 << 3
)

// Has reports whether all access bits in flag are set in a.
func (a Access) Has(flag Access) bool {
	return a&flag == flag
}

// Layout is an image layout.
type Layout int

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case LayoutDepthStencilReadOnly:
		return "DepthStencilReadOnly"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	default:
		return "Unknown"
	}
}

// Aspect is a bitmask of image aspects.
type Aspect uint32

// Image aspects.
const (
	AspectNone    Aspect = 0
	AspectColor   Aspect = 1 << 0
	AspectDepth   Aspect = 1 << 1
	AspectStencil Aspect = 1 << 2
)

// DependencyFlags modify how a pipeline barrier applies.
type DependencyFlags uint32

// DependencyByRegion makes the barrier framebuffer-local.
const DependencyByRegion DependencyFlags = 1 << 0

// QueueFamilyIgnored marks a barrier that does not transfer queue ownership.
const QueueFamilyIgnored = ^uint32(0)

// Remaining counts select every mip level or array layer from the base onward.
const (
	RemainingMipLevels   = ^uint32(0)
	RemainingArrayLayers = ^uint32(0)
)

// SubresourceRange selects a range of an image's subresources.
type SubresourceRange struct {
	Aspect         Aspect
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// FullRange returns a range covering every mip level and array layer of
// the given aspects.
func FullRange(aspect Aspect) SubresourceRange {
	return SubresourceRange{
		Aspect:     aspect,
		LevelCount: RemainingMipLevels,
		LayerCount: RemainingArrayLayers,
	}
}

// ImageBarrier describes a memory transition on one image.
type ImageBarrier struct {
	SrcAccess      Access
	DstAccess      Access
	OldLayout      Layout
	NewLayout      Layout
	SrcQueueFamily uint32
	DstQueueFamily uint32
	Image          Image
	Range          SubresourceRange
}

// Checkpoint is a diagnostic marker reported after device loss: the last
// pipeline stage and marker value a command reached.
type Checkpoint struct {
	Stage  PipelineStage
	Marker uint64
}

var stageNames = [...]struct {
	stage PipelineStage
	name  string
}{
	{StageEarlyFragmentTests, "EarlyFragmentTests"},
	{StageFragmentShader, "FragmentShader"},
	{StageLateFragmentTests, "LateFragmentTests"},
	{StageColorAttachmentOutput, "ColorAttachmentOutput"},
	{StageAllCommands, "AllCommands"},
}

// String returns the set stages joined with "|".
func (s PipelineStage) String() string {
	if s == StageNone {
		return "None"
	}
	var b strings.Builder
	for _, n := range stageNames {
		if s&n.stage == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(n.name)
	}
	if b.Len() == 0 {
		return fmt.Sprintf("PipelineStage(%#x)", uint32(s))
	}
	return b.String()
}
