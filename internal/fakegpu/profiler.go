package fakegpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpusched/gpucore"
)

// Profiler records scope events as strings like "begin 3", "end 3" and
// "collect 3", where the number is the command buffer ID.
type Profiler struct {
	mu     sync.Mutex
	events []string
}

var _ gpucore.Profiler = (*Profiler)(nil)

func bufferID(cb gpucore.CommandBuffer) int {
	if b, ok := cb.(*CommandBuffer); ok {
		return b.ID
	}
	return -1
}

func (p *Profiler) add(event string, cb gpucore.CommandBuffer) {
	p.mu.Lock()
	p.events = append(p.events, fmt.Sprintf("%s %d", event, bufferID(cb)))
	p.mu.Unlock()
}

// Begin implements gpucore.Profiler.
func (p *Profiler) Begin(cb gpucore.CommandBuffer) gpucore.ProfileScope {
	p.add("begin", cb)
	return &scope{p: p, cb: cb}
}

// Collect implements gpucore.Profiler.
func (p *Profiler) Collect(cb gpucore.CommandBuffer) {
	p.add("collect", cb)
}

// Events returns the recorded events in order.
func (p *Profiler) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type scope struct {
	p     *Profiler
	cb    gpucore.CommandBuffer
	ended bool
}

func (s *scope) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.p.add("end", s.cb)
}
