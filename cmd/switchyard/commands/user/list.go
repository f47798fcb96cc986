package user

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/switchyard/switchyard/cmd/switchyard/internal/format"
	"github.com/switchyard/switchyard/pkg/logging"
	"github.com/switchyard/switchyard/pkg/userdb"
)

var (
	countStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	lockedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// listedAccount is the display shape of an account. Password hashes
// stay out of command output.
type listedAccount struct {
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login,omitempty"`
	Locked    bool      `json:"locked"`
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts in the user database",
		Long: `List all accounts in the user database.

Shows name, role, creation time, last login and lock state for every
account. Locked accounts exhausted their login attempts recently and
unlock on their own once the lock window passes.`,
		Example: `  # List accounts
  switchyard user list

  # List accounts from a specific database as JSON
  switchyard user list --users-file users.yaml --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.FromCommand(cmd)
			out := cmd.OutOrStdout()

			path, err := resolveUsersFile(cmd)
			if err != nil {
				return err
			}

			store, err := userdb.Open(path, userdb.Options{
				ReadOnly: true,
				Logger:   logging.NewLogger("userdb", zerolog.WarnLevel),
			})
			if err != nil {
				return fmt.Errorf("open user database: %w", err)
			}
			defer func() { _ = store.Close() }()

			now := time.Now()
			accounts := make([]listedAccount, 0, store.Len())
			for _, u := range store.List() {
				accounts = append(accounts, listedAccount{
					Name:      u.Name,
					Role:      string(u.Role),
					CreatedAt: u.CreatedAt,
					LastLogin: u.LastLogin,
					Locked:    now.Before(u.LockedUntil),
				})
			}

			if formatter.IsJSON() {
				return formatter.PrintJSON(accounts)
			}

			if len(accounts) == 0 {
				fmt.Fprintln(out, "No accounts yet.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "To add one, use:")
				fmt.Fprintln(out, "  switchyard user add <name>")
				return nil
			}

			fmt.Fprintf(out, "%s\n\n",
				countStyle.Render(fmt.Sprintf("%d account(s) in %s", len(accounts), path)))

			rows := make([][]string, 0, len(accounts))
			for _, a := range accounts {
				state := "active"
				if a.Locked {
					state = lockedStyle.Render("locked")
				}
				lastLogin := "never"
				if !a.LastLogin.IsZero() {
					lastLogin = a.LastLogin.Format(time.RFC3339)
				}
				rows = append(rows, []string{
					a.Name,
					a.Role,
					a.CreatedAt.Format(time.RFC3339),
					lastLogin,
					state,
				})
			}

			if err := formatter.PrintTable([]string{"Name", "Role", "Created", "Last Login", "State"}, rows); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%s\n",
				subtleStyle.Render("Locked accounts unlock automatically after the lock window."))
			return nil
		},
	}

	cmd.Flags().String("users-file", "", "User database file (default: from configuration)")
	cmd.Flags().String("output", "table", "Output format: table or json")
	cmd.Flags().Bool("no-color", false, "Disable colored output")

	return cmd
}
