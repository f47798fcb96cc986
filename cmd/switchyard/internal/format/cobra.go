package format

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// FromCommand derives a Formatter from a command's writers and the
// --output, --quiet and --no-color flags when the command defines them.
func FromCommand(cmd *cobra.Command) Formatter {
	stdout := cmd.OutOrStdout()
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cmd.ErrOrStderr()
	if stderr == nil {
		stderr = os.Stderr
	}

	mode := ModeTable
	if f := cmd.Flags().Lookup("output"); f != nil {
		mode = ParseMode(f.Value.String())
	}

	return New(stdout, stderr, mode, boolFlag(cmd, "quiet"), !boolFlag(cmd, "no-color"))
}

// boolFlag reads a boolean flag, false when absent or malformed.
func boolFlag(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return false
	}
	v, err := strconv.ParseBool(f.Value.String())
	return err == nil && v
}
