// Package cmdpool recycles command buffers once the GPU has finished with
// them.
package cmdpool

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpusched/gpucore"
	"github.com/gogpu/gpusched/internal/tick"
)

// ErrDestroyed is returned by Commit after Destroy.
var ErrDestroyed = errors.New("cmdpool: pool destroyed")

// inflight is a submitted buffer and the tick that retires it.
type inflight struct {
	cb   gpucore.CommandBuffer
	tick uint64
}

// Stats reports pool counters.
type Stats struct {
	Allocated int // buffers created through the device
	Recycled  int // commits served by a retired buffer
	InFlight  int // buffers submitted and not yet reused
}

// Pool hands out command buffers ready for recording.
//
// Submitted buffers are kept in submission order. Since ticks complete in
// order, only the oldest one needs checking: if it is not free, none are.
// Commit never blocks on the GPU; it allocates a new buffer instead.
//
// Pool is not safe for concurrent use.
type Pool struct {
	dev      gpucore.Device
	ticks    *tick.Authority
	inflight []inflight
	stats    Stats
	closed   bool
}

// New creates a pool allocating from dev and retiring against ticks.
func New(dev gpucore.Device, ticks *tick.Authority) *Pool {
	return &Pool{dev: dev, ticks: ticks}
}

// Commit returns a command buffer that has been opened for one-shot
// recording.
func (p *Pool) Commit() (gpucore.CommandBuffer, error) {
	if p.closed {
		return nil, ErrDestroyed
	}

	cb, err := p.take()
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(); err != nil {
		cb.Destroy()
		return nil, fmt.Errorf("cmdpool: begin: %w", err)
	}
	return cb, nil
}

// take pops a reusable buffer or allocates a new one.
func (p *Pool) take() (gpucore.CommandBuffer, error) {
	if len(p.inflight) > 0 && p.reusable(p.inflight[0].tick) {
		front := p.inflight[0]
		p.inflight[0] = inflight{}
		p.inflight = p.inflight[1:]
		p.stats.Recycled++
		return front.cb, nil
	}

	cb, err := p.dev.NewCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("cmdpool: allocate: %w", err)
	}
	p.stats.Allocated++
	slogger().Debug("cmdpool: allocated command buffer",
		"allocated", p.stats.Allocated, "inflight", len(p.inflight))
	return cb, nil
}

// reusable checks the cached completion first and polls at most once.
func (p *Pool) reusable(t uint64) bool {
	if p.ticks.Completed() >= t {
		return true
	}
	done, err := p.ticks.Refresh()
	if err != nil {
		slogger().Warn("cmdpool: timeline poll failed", "error", err)
		return false
	}
	return done >= t
}

// Retire records that cb was submitted as tick. Buffers must be retired in
// submission order.
func (p *Pool) Retire(cb gpucore.CommandBuffer, t uint64) {
	if p.closed {
		cb.Destroy()
		return
	}
	p.inflight = append(p.inflight, inflight{cb: cb, tick: t})
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	s := p.stats
	s.InFlight = len(p.inflight)
	return s
}

// Destroy releases every pooled buffer. The caller must ensure the device
// has finished with them.
func (p *Pool) Destroy() {
	if p.closed {
		return
	}
	p.closed = true
	for i := range p.inflight {
		p.inflight[i].cb.Destroy()
	}
	slogger().Debug("cmdpool: destroyed", "buffers", len(p.inflight))
	p.inflight = nil
}
