package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop" // registers gputypes.BackendEmpty
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gpusched"
	"github.com/gogpu/gpusched/backend/native"
	"github.com/gogpu/gpusched/gpucore"
	"github.com/gogpu/gpusched/internal/config"
	"github.com/gogpu/gpusched/internal/fakegpu"
)

// retireInterval is how often the fake backend retires submissions when
// auto completion is off.
const retireInterval = 200 * time.Microsecond

// StreamReport is the outcome of one scheduler.
type StreamReport struct {
	Stream   int            `json:"stream"`
	Deferred int            `json:"deferred_run"`
	LastTick uint64         `json:"last_tick"`
	Stats    gpusched.Stats `json:"stats"`
}

// Report summarizes a workload run.
type Report struct {
	Backend string        `json:"backend"`
	Streams int           `json:"streams"`
	Frames  int           `json:"frames"`
	Elapsed time.Duration `json:"elapsed_ns"`

	Submissions      uint64 `json:"submissions"`
	Arbitrated       uint64 `json:"arbitrated_submissions"`
	Passes           uint64 `json:"passes"`
	BarrierBatches   uint64 `json:"barrier_batches"`
	Barriers         uint64 `json:"barriers"`
	DeferredRun      uint64 `json:"deferred_run"`
	BuffersAllocated int    `json:"buffers_allocated"`
	BuffersRecycled  int    `json:"buffers_recycled"`
	ProfileSpans     int    `json:"profile_spans,omitempty"`

	PerStream []StreamReport `json:"per_stream"`
}

// backend is an opened device plus the hooks the workload needs from it.
type backend struct {
	dev       gpucore.Device
	newTarget func(label string, format gputypes.TextureFormat, width, height uint32) (gpucore.Image, gpucore.ImageView, error)
	spans     func() int
	close     func() error
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Backend {
	case config.BackendNoop:
		return openNoop(cfg)
	case config.BackendFake:
		return openFake(cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openNoop(cfg *config.Config) (*backend, error) {
	dev, err := native.Open(gputypes.BackendEmpty)
	if err != nil {
		return nil, err
	}
	var prof *native.SpanProfiler
	if cfg.Profile {
		prof = dev.EnableProfiling()
	}

	var (
		mu      sync.Mutex
		targets []*native.Target
	)
	return &backend{
		dev: dev,
		newTarget: func(label string, format gputypes.TextureFormat, w, h uint32) (gpucore.Image, gpucore.ImageView, error) {
			t, err := dev.NewTarget(label, format, w, h)
			if err != nil {
				return nil, nil, err
			}
			mu.Lock()
			targets = append(targets, t)
			mu.Unlock()
			return t.Texture, t.View, nil
		},
		spans: func() int {
			if prof == nil {
				return 0
			}
			return len(prof.Spans())
		},
		close: func() error {
			for _, t := range targets {
				dev.DestroyTarget(t)
			}
			return dev.Close()
		},
	}, nil
}

func openFake(cfg *config.Config) *backend {
	var opts []fakegpu.Option
	if cfg.AutoComplete {
		opts = append(opts, fakegpu.WithAutoComplete())
	}
	if cfg.Profile {
		opts = append(opts, fakegpu.WithProfiler())
	}
	dev := fakegpu.New(opts...)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	if !cfg.AutoComplete {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(retireInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					dev.CompleteAll()
				}
			}
		}()
	}

	return &backend{
		dev: dev,
		newTarget: func(label string, _ gputypes.TextureFormat, _, _ uint32) (gpucore.Image, gpucore.ImageView, error) {
			img, view := dev.NewImage(label)
			return img, view, nil
		},
		spans: func() int {
			rec := dev.Recorder()
			if rec == nil {
				return 0
			}
			n := 0
			for _, e := range rec.Events() {
				if strings.HasPrefix(e, "collect ") {
					n++
				}
			}
			return n
		},
		close: func() error {
			close(stop)
			wg.Wait()
			if v := dev.Violations(); len(v) > 0 {
				return fmt.Errorf("fake device recorded %d violations, first: %s", len(v), v[0])
			}
			return nil
		},
	}
}

// renderState builds the attachments of one of the two targets a stream
// alternates between. The clear colors differ per target so that the
// states never compare equal.
func renderState(b *backend, cfg *config.Config, stream, which int) (gpucore.RenderState, error) {
	var rs gpucore.RenderState
	rs.Width, rs.Height = cfg.Width, cfg.Height
	clear := gputypes.Color{R: float64(which), B: float64(1 - which), A: 1}

	for c := range cfg.ColorAttachments {
		label := fmt.Sprintf("s%d_t%d_color%d", stream, which, c)
		img, view, err := b.newTarget(label, gputypes.TextureFormatRGBA8Unorm, cfg.Width, cfg.Height)
		if err != nil {
			return rs, err
		}
		rs.AddColor(gpucore.Attachment{
			View:   view,
			Layout: gpucore.LayoutColorAttachment,
			Load:   gputypes.LoadOpClear,
			Store:  gputypes.StoreOpStore,
			Clear:  clear,
		}, img)
	}

	if cfg.Depth {
		format := gputypes.TextureFormatDepth32Float
		if cfg.Stencil {
			format = gputypes.TextureFormatDepth24PlusStencil8
		}
		label := fmt.Sprintf("s%d_t%d_depth", stream, which)
		img, view, err := b.newTarget(label, format, cfg.Width, cfg.Height)
		if err != nil {
			return rs, err
		}
		rs.SetDepth(gpucore.Attachment{
			View:       view,
			Layout:     gpucore.LayoutDepthStencilAttachment,
			Load:       gputypes.LoadOpClear,
			Store:      gputypes.StoreOpStore,
			Clear:      clear,
			ClearDepth: float32(which),
		}, img, cfg.Stencil)
	}
	return rs, nil
}

// RunWorkload runs cfg to completion and reports the scheduler counters.
func RunWorkload(ctx context.Context, cfg config.Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := openBackend(&cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	arbiter := gpusched.NewArbiter()
	streams := make([]StreamReport, cfg.Streams)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Streams {
		g.Go(func() error {
			r, err := runStream(gctx, b, arbiter, &cfg, i)
			if err != nil {
				return fmt.Errorf("stream %d: %w", i, err)
			}
			streams[i] = r
			return nil
		})
	}
	runErr := g.Wait()
	elapsed := time.Since(start)

	if err := b.close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close %s backend: %w", cfg.Backend, err)
	}
	if runErr != nil {
		return nil, runErr
	}

	rep := &Report{
		Backend:      cfg.Backend,
		Streams:      cfg.Streams,
		Frames:       cfg.Frames,
		Elapsed:      elapsed,
		Arbitrated:   arbiter.Submissions(),
		ProfileSpans: b.spans(),
		PerStream:    streams,
	}
	for _, s := range streams {
		rep.Submissions += s.Stats.Submissions
		rep.Passes += s.Stats.Passes
		rep.BarrierBatches += s.Stats.BarrierBatches
		rep.Barriers += s.Stats.Barriers
		rep.DeferredRun += s.Stats.DeferredRun
		rep.BuffersAllocated += s.Stats.BuffersAllocated
		rep.BuffersRecycled += s.Stats.BuffersRecycled
	}
	return rep, nil
}

func runStream(ctx context.Context, b *backend, arbiter *gpusched.Arbiter, cfg *config.Config, stream int) (StreamReport, error) {
	rep := StreamReport{Stream: stream}

	var states [2]gpucore.RenderState
	for i := range states {
		rs, err := renderState(b, cfg, stream, i)
		if err != nil {
			return rep, fmt.Errorf("create targets: %w", err)
		}
		states[i] = rs
	}

	s, err := gpusched.New(b.dev,
		gpusched.WithArbiter(arbiter),
		gpusched.WithLabel(fmt.Sprintf("stream%d", stream)),
	)
	if err != nil {
		return rep, err
	}

	for f := range cfg.Frames {
		if err := ctx.Err(); err != nil {
			_ = s.Close(context.Background())
			return rep, err
		}
		for p := range cfg.PassesPerFrame {
			s.BeginRendering(states[p%2])
		}
		for range cfg.DeferPerFrame {
			s.Defer(func() { rep.Deferred++ })
		}
		if cfg.FinishEvery > 0 && (f+1)%cfg.FinishEvery == 0 {
			if err := s.Finish(ctx); err != nil {
				return rep, err
			}
			continue
		}
		s.Flush(nil)
	}

	if err := s.Close(ctx); err != nil {
		return rep, err
	}
	rep.Stats = s.Stats()
	rep.LastTick = s.CompletedTick()
	return rep, nil
}
