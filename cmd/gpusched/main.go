// Command gpusched runs render-pass workloads through the gpusched
// submission scheduler and reports its counters.
package main

import (
	"fmt"
	"os"

	"github.com/gogpu/gpusched/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gpusched:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
