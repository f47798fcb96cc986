package user

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/switchyard/switchyard/cmd/switchyard/internal/format"
	"github.com/switchyard/switchyard/pkg/logging"
	"github.com/switchyard/switchyard/pkg/userdb"
)

func newAddCommand() *cobra.Command {
	var (
		roleName string
		password string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an account to the user database",
		Long: `Add an account to the user database.

The password is taken from --password when given, otherwise read from
standard input. The database file is created on first use.`,
		Example: `  # Prompted for the password
  switchyard user add alice --role admin

  # Non-interactive
  switchyard user add bob --password builder-pass-99 --users-file users.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.FromCommand(cmd)
			name := args[0]

			role, err := userdb.ParseRole(roleName)
			if err != nil {
				return err
			}

			if password == "" {
				read, err := promptPassword(cmd)
				if err != nil {
					return err
				}
				password = read
			}

			path, err := resolveUsersFile(cmd)
			if err != nil {
				return err
			}

			store, err := userdb.Open(path, userdb.Options{
				Logger: logging.NewLogger("userdb", zerolog.WarnLevel),
			})
			if err != nil {
				return fmt.Errorf("open user database: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.Add(name, password, role); err != nil {
				return fmt.Errorf("add user: %w", err)
			}

			return formatter.PrintSuccess(fmt.Sprintf("Added user %s (%s)", name, role))
		},
	}

	cmd.Flags().String("users-file", "", "User database file (default: from configuration)")
	cmd.Flags().StringVar(&roleName, "role", "user", "Account role: guest, user or admin")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().String("output", "table", "Output format: table or json")
	cmd.Flags().Bool("quiet", false, "Suppress the confirmation message")

	return cmd
}

// promptPassword reads one line from the command's input stream.
func promptPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
