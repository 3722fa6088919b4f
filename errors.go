package gpusched

import (
	"errors"

	"github.com/gogpu/gpusched/internal/tick"
)

var (
	// ErrNilDevice is returned by New when no device is given.
	ErrNilDevice = errors.New("gpusched: nil device")

	// ErrClosed is the panic value for use of a closed Scheduler, and is
	// returned by a second Close.
	ErrClosed = errors.New("gpusched: scheduler closed")

	// ErrTickNotSubmitted is returned by Wait for a tick that is still
	// unassigned after the forced flush, i.e. more than one submission
	// ahead of the scheduler.
	ErrTickNotSubmitted = tick.ErrNotSubmitted
)
