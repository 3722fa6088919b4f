package gpusched

import "github.com/gogpu/gpusched/gpucore"

// nullProfiler is used when the device has no profiling capability.
type nullProfiler struct{}

func (nullProfiler) Begin(gpucore.CommandBuffer) gpucore.ProfileScope { return nullScope{} }
func (nullProfiler) Collect(gpucore.CommandBuffer)                    {}

type nullScope struct{}

func (nullScope) End() {}

// profilerFor returns the device profiler, or nullProfiler if there is
// none.
func profilerFor(dev gpucore.Device) gpucore.Profiler {
	if pp, ok := dev.(gpucore.ProfilerProvider); ok {
		if p := pp.Profiler(); p != nil {
			return p
		}
	}
	return nullProfiler{}
}
