package commands

import (
	"github.com/spf13/cobra"

	userCmd "github.com/switchyard/switchyard/cmd/switchyard/commands/user"
	"github.com/switchyard/switchyard/pkg/config"
	"github.com/switchyard/switchyard/pkg/logging"
)

const cliExecutable = "switchyard"

// NewCommand constructs the top-level switchyard CLI command, wiring global
// flags and shared logging setup.
func NewCommand() *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Switchyard is a small authenticated line-protocol server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// serve reconfigures logging from the full layered
			// configuration; this keeps the short commands honest.
			if debug {
				logging.SetLevel("debug")
			} else if f := cmd.Flags().Lookup("log.level"); f != nil && f.Changed {
				logging.SetLevel(f.Value.String())
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Shorthand for --log.level debug")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(userCmd.NewCommand())

	return cmd
}
