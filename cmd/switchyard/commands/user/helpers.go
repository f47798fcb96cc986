package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchyard/switchyard/pkg/config"
)

// resolveUsersFile picks the database path: the --users-file flag when
// set, otherwise whatever the layered configuration resolves to for the
// server itself.
func resolveUsersFile(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("users-file")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}

	configFile := ""
	if f := cmd.Flags().Lookup("config"); f != nil {
		configFile = f.Value.String()
	}

	manager := config.NewManager()
	if err := manager.Load(nil, configFile); err != nil {
		return "", fmt.Errorf("load configuration: %w", err)
	}
	return manager.Get().Server.UsersFile, nil
}
