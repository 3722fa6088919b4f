package gpusched

import (
	"sync"
	"sync/atomic"
)

// Arbiter serializes submissions to one device queue.
//
// Every Scheduler that submits to the same queue must share one Arbiter.
// Schedulers created without WithArbiter share DefaultArbiter, so the
// default is one submitter at a time across the whole process. Code that
// submits to the queue outside a Scheduler (presentation, uploads) can take
// the same Arbiter with Lock and Unlock.
type Arbiter struct {
	mu          sync.Mutex
	submissions atomic.Uint64
}

// NewArbiter creates an independent Arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

var defaultArbiter = NewArbiter()

// DefaultArbiter returns the process-wide Arbiter used by schedulers
// created without WithArbiter.
func DefaultArbiter() *Arbiter {
	return defaultArbiter
}

// Lock acquires exclusive access to the queue.
func (a *Arbiter) Lock() { a.mu.Lock() }

// Unlock releases the queue.
func (a *Arbiter) Unlock() { a.mu.Unlock() }

// Submissions returns how many scheduler submissions went through a.
func (a *Arbiter) Submissions() uint64 {
	return a.submissions.Load()
}
