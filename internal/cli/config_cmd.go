package cli

import (
	"github.com/spf13/cobra"

	"github.com/gogpu/gpusched/internal/config"
)

// NewConfigCommand creates the config command, which prints the effective
// workload configuration as YAML.
func NewConfigCommand(_ *RootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the workload configuration",
		Long: `Print the default workload configuration, or the validated contents of
--config with defaults filled in. The output is a valid --config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid configuration", err)
				}
				cfg = loaded
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "workload YAML file")
	return cmd
}
