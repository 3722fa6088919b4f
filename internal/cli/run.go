package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpusched/internal/config"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string

	// flags holds flag values; only flags the user set override the
	// configuration file.
	flags config.Config
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts, flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a render-pass workload through the scheduler",
		Long: `Run records frames of render passes on one or more scheduler streams that
share a submission arbiter, then prints the scheduler counters.

Settings come from the defaults, then the --config file, then flags.

Example:
  gpusched run --frames 120 --streams 4
  gpusched run --backend fake --auto-complete=false --finish-every 10
  gpusched run --config workload.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "workload YAML file")
	f.StringVar(&opts.flags.Backend, "backend", opts.flags.Backend, "device backend (noop|fake)")
	f.IntVar(&opts.flags.Streams, "streams", opts.flags.Streams, "concurrent scheduler streams")
	f.IntVar(&opts.flags.Frames, "frames", opts.flags.Frames, "frames per stream")
	f.IntVar(&opts.flags.PassesPerFrame, "passes", opts.flags.PassesPerFrame, "render passes per frame")
	f.IntVar(&opts.flags.ColorAttachments, "colors", opts.flags.ColorAttachments, "color attachments per pass")
	f.BoolVar(&opts.flags.Depth, "depth", opts.flags.Depth, "attach a depth buffer")
	f.BoolVar(&opts.flags.Stencil, "stencil", opts.flags.Stencil, "give the depth buffer a stencil aspect")
	f.IntVar(&opts.flags.FinishEvery, "finish-every", opts.flags.FinishEvery, "end every Nth frame with Finish (0 = never)")
	f.IntVar(&opts.flags.DeferPerFrame, "defer", opts.flags.DeferPerFrame, "deferred callbacks per frame")
	f.Uint32Var(&opts.flags.Width, "width", opts.flags.Width, "target width")
	f.Uint32Var(&opts.flags.Height, "height", opts.flags.Height, "target height")
	f.BoolVar(&opts.flags.AutoComplete, "auto-complete", opts.flags.AutoComplete, "fake backend completes submissions immediately")
	f.BoolVar(&opts.flags.Profile, "profile", opts.flags.Profile, "enable the backend profiler")

	return cmd
}

// resolveConfig layers the config file and the flags the user set.
func resolveConfig(cmd *cobra.Command, opts *RunOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	fl := &opts.flags
	overrides := []struct {
		name  string
		apply func()
	}{
		{"backend", func() { cfg.Backend = fl.Backend }},
		{"streams", func() { cfg.Streams = fl.Streams }},
		{"frames", func() { cfg.Frames = fl.Frames }},
		{"passes", func() { cfg.PassesPerFrame = fl.PassesPerFrame }},
		{"colors", func() { cfg.ColorAttachments = fl.ColorAttachments }},
		{"depth", func() { cfg.Depth = fl.Depth }},
		{"stencil", func() { cfg.Stencil = fl.Stencil }},
		{"finish-every", func() { cfg.FinishEvery = fl.FinishEvery }},
		{"defer", func() { cfg.DeferPerFrame = fl.DeferPerFrame }},
		{"width", func() { cfg.Width = fl.Width }},
		{"height", func() { cfg.Height = fl.Height }},
		{"auto-complete", func() { cfg.AutoComplete = fl.AutoComplete }},
		{"profile", func() { cfg.Profile = fl.Profile }},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.name) {
			o.apply()
		}
	}
	return cfg, cfg.Validate()
}

func runWorkload(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := RunWorkload(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "workload failed", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Report(rep)
}
