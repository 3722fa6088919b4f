package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// OutputFormatter writes reports as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Report writes rep in the configured format.
func (f *OutputFormatter) Report(rep *Report) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	w := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "backend\t%s\n", rep.Backend)
	fmt.Fprintf(w, "streams\t%d\n", rep.Streams)
	fmt.Fprintf(w, "frames\t%d\n", rep.Frames)
	fmt.Fprintf(w, "elapsed\t%s\n", rep.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "submissions\t%d (arbitrated %d)\n", rep.Submissions, rep.Arbitrated)
	fmt.Fprintf(w, "passes\t%d\n", rep.Passes)
	fmt.Fprintf(w, "barriers\t%d in %d batches\n", rep.Barriers, rep.BarrierBatches)
	fmt.Fprintf(w, "deferred\t%d\n", rep.DeferredRun)
	fmt.Fprintf(w, "buffers\t%d allocated, %d recycled\n", rep.BuffersAllocated, rep.BuffersRecycled)
	if rep.ProfileSpans > 0 {
		fmt.Fprintf(w, "profiled\t%d spans\n", rep.ProfileSpans)
	}
	return w.Flush()
}
