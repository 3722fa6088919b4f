package fakegpu

import (
	"fmt"

	"github.com/gogpu/gpusched/gpucore"
)

// bufferState is the recording lifecycle of a CommandBuffer.
type bufferState int

const (
	stateInitial bufferState = iota
	stateRecording
	stateExecutable
	statePending
	stateDestroyed
)

func (s bufferState) String() string {
	switch s {
	case stateInitial:
		return "Initial"
	case stateRecording:
		return "Recording"
	case stateExecutable:
		return "Executable"
	case statePending:
		return "Pending"
	case stateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// CommandKind identifies a recorded command.
type CommandKind int

const (
	CmdBeginRendering CommandKind = iota
	CmdEndRendering
	CmdPipelineBarrier
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CmdBeginRendering:
		return "BeginRendering"
	case CmdEndRendering:
		return "EndRendering"
	case CmdPipelineBarrier:
		return "PipelineBarrier"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Command is one recorded command. Fields not used by Kind are zero.
type Command struct {
	Kind     CommandKind
	State    gpucore.RenderState
	Src, Dst gpucore.PipelineStage
	Deps     gpucore.DependencyFlags
	Barriers []gpucore.ImageBarrier
}

// CommandBuffer is a fake gpucore.CommandBuffer.
type CommandBuffer struct {
	dev *Device
	ID  int

	state    bufferState
	inPass   bool
	pending  bool // submitted and not yet complete
	commands []Command
	begins   int
}

var _ gpucore.CommandBuffer = (*CommandBuffer)(nil)

// Begin implements gpucore.CommandBuffer. Recycling a buffer whose last
// submission has not completed is recorded as a violation.
func (cb *CommandBuffer) Begin() error {
	d := cb.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAlloc != nil {
		return d.failAlloc
	}
	if cb.pending {
		d.violations = append(d.violations,
			fmt.Sprintf("begin of buffer %d before its submission completed", cb.ID))
	}
	if cb.state == stateRecording || cb.state == stateDestroyed {
		d.violations = append(d.violations,
			fmt.Sprintf("begin of buffer %d in state %s", cb.ID, cb.state))
	}
	cb.state = stateRecording
	cb.inPass = false
	cb.commands = cb.commands[:0]
	cb.begins++
	return nil
}

func (cb *CommandBuffer) record(c Command) {
	d := cb.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb.state != stateRecording {
		d.violations = append(d.violations,
			fmt.Sprintf("%s on buffer %d in state %s", c.Kind, cb.ID, cb.state))
	}
	switch c.Kind {
	case CmdBeginRendering:
		if cb.inPass {
			d.violations = append(d.violations,
				fmt.Sprintf("nested render pass on buffer %d", cb.ID))
		}
		cb.inPass = true
	case CmdEndRendering:
		if !cb.inPass {
			d.violations = append(d.violations,
				fmt.Sprintf("end rendering outside a pass on buffer %d", cb.ID))
		}
		cb.inPass = false
	case CmdPipelineBarrier:
		if cb.inPass {
			d.violations = append(d.violations,
				fmt.Sprintf("barrier inside a render pass on buffer %d", cb.ID))
		}
	}
	cb.commands = append(cb.commands, c)
}

// BeginRendering implements gpucore.CommandBuffer.
func (cb *CommandBuffer) BeginRendering(state *gpucore.RenderState) {
	cb.record(Command{Kind: CmdBeginRendering, State: *state})
}

// EndRendering implements gpucore.CommandBuffer.
func (cb *CommandBuffer) EndRendering() {
	cb.record(Command{Kind: CmdEndRendering})
}

// PipelineBarrier implements gpucore.CommandBuffer.
func (cb *CommandBuffer) PipelineBarrier(src, dst gpucore.PipelineStage, deps gpucore.DependencyFlags, barriers []gpucore.ImageBarrier) {
	cb.record(Command{
		Kind:     CmdPipelineBarrier,
		Src:      src,
		Dst:      dst,
		Deps:     deps,
		Barriers: append([]gpucore.ImageBarrier(nil), barriers...),
	})
}

// End implements gpucore.CommandBuffer.
func (cb *CommandBuffer) End() error {
	d := cb.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb.state != stateRecording {
		d.violations = append(d.violations,
			fmt.Sprintf("end of buffer %d in state %s", cb.ID, cb.state))
	}
	if cb.inPass {
		d.violations = append(d.violations,
			fmt.Sprintf("end of buffer %d inside a render pass", cb.ID))
	}
	cb.state = stateExecutable
	return nil
}

// Destroy implements gpucore.CommandBuffer.
func (cb *CommandBuffer) Destroy() {
	d := cb.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb.pending {
		d.violations = append(d.violations,
			fmt.Sprintf("destroy of buffer %d while pending", cb.ID))
	}
	cb.state = stateDestroyed
}

// Begins returns how many times the buffer has been opened for recording.
func (cb *CommandBuffer) Begins() int {
	cb.dev.mu.Lock()
	defer cb.dev.mu.Unlock()
	return cb.begins
}

// Commands returns the commands recorded since the last Begin.
func (cb *CommandBuffer) Commands() []Command {
	cb.dev.mu.Lock()
	defer cb.dev.mu.Unlock()
	return append([]Command(nil), cb.commands...)
}
