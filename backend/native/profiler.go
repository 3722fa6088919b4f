package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpusched/gpucore"
)

// Span is one measured recording span of a command buffer.
type Span struct {
	Buffer   string
	Start    time.Time
	Duration time.Duration
}

// SpanProfiler measures the time each command buffer stays open for
// recording. HAL does not expose timestamp queries uniformly across
// backends, so the spans are CPU-side.
type SpanProfiler struct {
	mu     sync.Mutex
	open  map[gpucore.CommandBuffer]*spanScope
	ended map[gpucore.CommandBuffer]Span
	spans []Span
	total time.Duration
	now   func() time.Time
	limit int
}

// maxSpans bounds the history kept by a SpanProfiler.
const maxSpans = 1024

var _ gpucore.Profiler = (*SpanProfiler)(nil)

func newSpanProfiler() *SpanProfiler {
	return &SpanProfiler{
		open:  make(map[gpucore.CommandBuffer]*spanScope),
		ended: make(map[gpucore.CommandBuffer]Span),
		now:   time.Now,
		limit: maxSpans,
	}
}

type spanScope struct {
	p     *SpanProfiler
	cb    gpucore.CommandBuffer
	start time.Time
	done  bool
}

// Begin implements gpucore.Profiler.
func (p *SpanProfiler) Begin(cb gpucore.CommandBuffer) gpucore.ProfileScope {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc := &spanScope{p: p, cb: cb, start: p.now()}
	p.open[cb] = sc
	return sc
}

// End closes the scope. Ending twice has no effect.
func (sc *spanScope) End() {
	p := sc.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if sc.done {
		return
	}
	sc.done = true
	delete(p.open, sc.cb)
	p.ended[sc.cb] = Span{
		Buffer:   bufferName(sc.cb),
		Start:    sc.start,
		Duration: p.now().Sub(sc.start),
	}
}

// Collect implements gpucore.Profiler.
func (p *SpanProfiler) Collect(cb gpucore.CommandBuffer) {
	p.mu.Lock()
	span, ok := p.ended[cb]
	if ok {
		delete(p.ended, cb)
		if len(p.spans) == p.limit {
			p.spans = append(p.spans[:0], p.spans[1:]...)
		}
		p.spans = append(p.spans, span)
		p.total += span.Duration
	}
	p.mu.Unlock()

	if ok {
		slogger().Debug("native: recording span", "buffer", span.Buffer, "duration", span.Duration)
	}
}

// Spans returns the collected spans, oldest first.
func (p *SpanProfiler) Spans() []Span {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Span(nil), p.spans...)
}

// Total returns the summed duration of every collected span.
func (p *SpanProfiler) Total() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func bufferName(cb gpucore.CommandBuffer) string {
	if l, ok := cb.(interface{ Label() string }); ok {
		return l.Label()
	}
	return fmt.Sprintf("%p", cb)
}
