// cmd/switchyard/main.go
package main

import (
	"os"

	"github.com/switchyard/switchyard/cmd/switchyard/commands"
	"github.com/switchyard/switchyard/pkg/server"
)

// main builds the root command and maps a failed execution onto a
// process exit code.
//
// Exit codes:
//   - 0: success
//   - 1: general error (default)
//   - 2: invalid usage or configuration (SERVER_INVALID_PORT, SERVER_INVALID_CONFIG)
//   - 7: resource unavailable (SERVER_LISTEN_FAILED, SERVER_USERDB_FAILED, SERVER_INIT_FAILED)
func main() {
	command := commands.NewCommand()

	if err := command.Execute(); err != nil {
		os.Exit(server.ExitCode(err))
	}
}
