// Copyright 2025 Switchyard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package user

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the user command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User database management",
		Long: `Manage the file-backed user database answering AUTH.

Accounts live in a YAML file guarded by an advisory lock. A running
server holds that lock exclusively, so point these commands at a
stopped database (or send the server SIGHUP after editing a copy).`,
		Example: `  # Add an administrator, prompting for the password
  switchyard user add alice --role admin

  # Add an account non-interactively
  switchyard user add bob --password builder-pass-99

  # List accounts
  switchyard user list

  # List accounts as JSON
  switchyard user list --output json`,
	}

	cmd.AddCommand(newAddCommand())
	cmd.AddCommand(newListCommand())

	return cmd
}
