// Package pending holds CPU callbacks deferred until a GPU tick completes.
package pending

// op is one deferred callback tagged with the tick it waits on.
type op struct {
	tick uint64
	fn   func()
}

// Queue is a FIFO of deferred operations.
//
// Operations run in enqueue order. Drain only ever runs a contiguous prefix:
// an operation whose tick has not completed blocks every operation behind
// it, even those with smaller ticks.
//
// Queue is not safe for concurrent use; it is owned by a single scheduler.
type Queue struct {
	ops  []op
	head int
}

// Push enqueues fn to run once tick has completed.
func (q *Queue) Push(tick uint64, fn func()) {
	if fn == nil {
		return
	}
	q.ops = append(q.ops, op{tick: tick, fn: fn})
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	return len(q.ops) - q.head
}

// Front returns the tick of the oldest queued operation.
func (q *Queue) Front() (uint64, bool) {
	if q.head >= len(q.ops) {
		return 0, false
	}
	return q.ops[q.head].tick, true
}

// Drain runs and removes queued operations from the front while their tick
// is at or below completed. It returns the number of operations run.
func (q *Queue) Drain(completed uint64) int {
	n := 0
	for q.head < len(q.ops) {
		o := q.ops[q.head]
		if o.tick > completed {
			break
		}
		q.ops[q.head] = op{} // release the closure
		q.head++
		n++
		o.fn()
	}
	q.compact()
	return n
}

// compact reclaims the consumed prefix once it dominates the slice.
func (q *Queue) compact() {
	if q.head == len(q.ops) {
		q.ops = q.ops[:0]
		q.head = 0
		return
	}
	if q.head > 32 && q.head*2 > len(q.ops) {
		n := copy(q.ops, q.ops[q.head:])
		clear(q.ops[n:])
		q.ops = q.ops[:n]
		q.head = 0
	}
}
