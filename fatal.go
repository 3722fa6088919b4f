package gpusched

import (
	"fmt"
	"os"

	"github.com/gogpu/gpusched/gpucore"
)

// FatalError is the result of a submission the device could not accept.
//
// A FatalError is never returned to callers of Flush, Finish or Wait. It is
// handed to the FatalHandler, and the scheduler stops: with the default
// handler the process exits, and if a custom handler returns the scheduler
// panics with the FatalError.
type FatalError struct {
	// Tick is the tick assigned to the failed submission.
	Tick uint64

	// Err is the underlying device error.
	Err error

	// Checkpoints holds the loss diagnostics reported by the queue, if it
	// supports them.
	Checkpoints []gpucore.Checkpoint
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("gpusched: fatal submission failure at tick %d: %v", e.Tick, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// FatalHandler receives the fatal result of a failed submission. It is
// expected not to return.
type FatalHandler func(*FatalError)

// ExitOnFatal is the default FatalHandler. It logs the failure and exits
// the process with status 1.
func ExitOnFatal(fe *FatalError) {
	Logger().Error("gpusched: device lost, terminating", "tick", fe.Tick, "error", fe.Err)
	os.Exit(1)
}

// fatalResult builds the FatalError for a failure at tick t and logs the
// checkpoints reported by the queue.
func (s *Scheduler) fatalResult(t uint64, err error) *FatalError {
	fe := &FatalError{Tick: t, Err: err}
	if r, ok := s.queue.(gpucore.CheckpointReporter); ok {
		fe.Checkpoints = r.Checkpoints()
	}

	log := s.logger()
	log.Error("gpusched: submission failed",
		"label", s.label, "tick", t, "error", err, "checkpoints", len(fe.Checkpoints))
	for _, cp := range fe.Checkpoints {
		log.Error("gpusched: checkpoint", "stage", cp.Stage.String(), "marker", cp.Marker)
	}
	return fe
}

// die hands fe to the handler. It never returns.
func (s *Scheduler) die(fe *FatalError) {
	s.dead = fe
	s.fatal(fe)
	panic(fe)
}
