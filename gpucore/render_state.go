package gpucore

import "github.com/gogpu/gputypes"

// MaxColorAttachments is the maximum number of color attachments in one
// RenderState.
const MaxColorAttachments = 8

// MaxPassBarriers is the largest barrier batch a pass end can produce:
// one per color attachment plus one for depth/stencil.
const MaxPassBarriers = MaxColorAttachments + 1

// Attachment describes one render target of a pass.
type Attachment struct {
	View   ImageView
	Layout Layout

	Load  gputypes.LoadOp
	Store gputypes.StoreOp

	// Clear is used for color attachments with LoadOpClear.
	Clear gputypes.Color

	// ClearDepth and ClearStencil are used for the depth/stencil attachment.
	ClearDepth   float32
	ClearStencil uint32
}

// RenderState is the set of attachments a render pass draws into.
//
// RenderState is a comparable value: == compares every attachment, image
// and dimension. Only the first NumColorAttachments entries of the color
// arrays are meaningful; the rest must be left zero so that equal states
// compare equal.
type RenderState struct {
	Width  uint32
	Height uint32

	NumColorAttachments int
	ColorAttachments    [MaxColorAttachments]Attachment
	ColorImages         [MaxColorAttachments]Image

	HasDepth        bool
	HasStencil      bool
	DepthAttachment Attachment
	DepthImage      Image
}

// Equal reports whether s and o describe the same attachments.
func (s *RenderState) Equal(o *RenderState) bool {
	return *s == *o
}

// AddColor appends a color attachment backed by img.
// It reports false when the state already holds MaxColorAttachments.
func (s *RenderState) AddColor(att Attachment, img Image) bool {
	if s.NumColorAttachments >= MaxColorAttachments {
		return false
	}
	s.ColorAttachments[s.NumColorAttachments] = att
	s.ColorImages[s.NumColorAttachments] = img
	s.NumColorAttachments++
	return true
}

// SetDepth sets the depth attachment; stencil marks that the same
// attachment also carries a stencil aspect.
func (s *RenderState) SetDepth(att Attachment, img Image, stencil bool) {
	s.HasDepth = true
	s.HasStencil = stencil
	s.DepthAttachment = att
	s.DepthImage = img
}

// Colors returns the active color attachments.
func (s *RenderState) Colors() []Attachment {
	return s.ColorAttachments[:s.NumColorAttachments]
}
