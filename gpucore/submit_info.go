package gpucore

// SubmitInfo accumulates the wait and signal lists of one submission.
//
// Each wait entry pairs a semaphore with the value to wait for and the
// pipeline stage that waits; each signal entry pairs a semaphore with the
// value it is signaled to. A SubmitInfo is owned by the submission it is
// passed to and must not be reused afterwards.
type SubmitInfo struct {
	WaitSemaphores []Semaphore
	WaitValues     []uint64
	WaitStages     []PipelineStage

	SignalSemaphores []Semaphore
	SignalValues     []uint64

	// Fence is signaled when the submission completes. Optional.
	Fence Fence
}

// defaultWaitStages is the conventional stage for each wait slot: the
// first wait blocks all commands, the second only color output.
var defaultWaitStages = [...]PipelineStage{
	StageAllCommands,
	StageColorAttachmentOutput,
}

// AddWait appends a wait on sem reaching value, with the conventional stage
// for its slot. Slots past the conventional ones wait at all commands.
func (i *SubmitInfo) AddWait(sem Semaphore, value uint64) {
	stage := StageAllCommands
	if n := len(i.WaitSemaphores); n < len(defaultWaitStages) {
		stage = defaultWaitStages[n]
	}
	i.AddWaitStage(sem, value, stage)
}

// AddWaitStage appends a wait on sem reaching value at the given stage.
func (i *SubmitInfo) AddWaitStage(sem Semaphore, value uint64, stage PipelineStage) {
	i.WaitSemaphores = append(i.WaitSemaphores, sem)
	i.WaitValues = append(i.WaitValues, value)
	i.WaitStages = append(i.WaitStages, stage)
}

// AddSignal appends a signal of sem to value.
func (i *SubmitInfo) AddSignal(sem Semaphore, value uint64) {
	i.SignalSemaphores = append(i.SignalSemaphores, sem)
	i.SignalValues = append(i.SignalValues, value)
}

// Waits returns the number of wait entries.
func (i *SubmitInfo) Waits() int { return len(i.WaitSemaphores) }

// Signals returns the number of signal entries.
func (i *SubmitInfo) Signals() int { return len(i.SignalSemaphores) }
