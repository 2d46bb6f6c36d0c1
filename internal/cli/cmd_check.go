// Package cli implements the duckling command-line interface.
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/task"
)

// newCheckCmd creates the check command with subcommands.
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Manage pre-commit checks",
		Long: `Manage the pre-commit checks the server runs before committing.

Checks run in order inside the task's repository. A failing check sends
its output back to the coding assistant for a fix, up to the configured
retry limit. A check with a path pattern only runs when at least one
changed file matches it.

Subcommands:
  add     Add a check
  list    List checks
  remove  Remove a check

Examples:
  duckling check add lint --command "make lint"
  duckling check add gotest --command "go test ./..." --paths "**/*.go"
  duckling check list
  duckling check remove 3`,
	}

	cmd.AddCommand(newCheckAddCmd())
	cmd.AddCommand(newCheckListCmd())
	cmd.AddCommand(newCheckRemoveCmd())

	return cmd
}

// newCheckAddCmd creates the 'check add' subcommand.
func newCheckAddCmd() *cobra.Command {
	var (
		command string
		paths   string
		order   int
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a pre-commit check",
		Long: `Add a pre-commit check.

The command runs through the shell in the task's repository. --paths takes
a doublestar glob; the check is skipped when no changed file matches.

Examples:
  duckling check add lint --command "make lint"
  duckling check add gotest --command "go test ./..." --paths "**/*.go"
  duckling check add e2e --command "make e2e" --order 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				return fmt.Errorf("--command is required")
			}

			check, err := apiClient().AddCheck(cmd.Context(), task.PrecommitCheck{
				Name:       args[0],
				Command:    command,
				Paths:      paths,
				OrderIndex: order,
			})
			if err != nil {
				return fmt.Errorf("add check: %w", err)
			}

			if jsonOut {
				return printJSON(check)
			}

			fmt.Printf("Added check %d: %s (%s)\n", check.ID, check.Name, check.Command)
			return nil
		},
	}

	cmd.Flags().StringVarP(&command, "command", "c", "", "shell command to run (required)")
	cmd.Flags().StringVar(&paths, "paths", "", "doublestar glob restricting the check to matching changed files")
	cmd.Flags().IntVar(&order, "order", 0, "run order (lower runs first)")

	return cmd
}

// newCheckListCmd creates the 'check list' subcommand.
func newCheckListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pre-commit checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			checks, err := apiClient().Checks(cmd.Context())
			if err != nil {
				return fmt.Errorf("list checks: %w", err)
			}

			if jsonOut {
				return printJSON(checks)
			}

			if len(checks) == 0 {
				fmt.Println("No checks configured. Add one with: duckling check add <name> --command <cmd>")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tORDER\tNAME\tPATHS\tCOMMAND")
			fmt.Fprintln(w, "──\t─────\t────\t─────\t───────")
			for _, c := range checks {
				paths := c.Paths
				if paths == "" {
					paths = "-"
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", c.ID, c.OrderIndex, c.Name, paths, truncate(c.Command, 50))
			}
			w.Flush()
			return nil
		},
	}
}

// newCheckRemoveCmd creates the 'check remove' subcommand.
func newCheckRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <check-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a pre-commit check",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "check id")
			if err != nil {
				return err
			}

			if err := apiClient().RemoveCheck(cmd.Context(), id); err != nil {
				return fmt.Errorf("remove check: %w", err)
			}

			if !quiet {
				fmt.Printf("Removed check %d\n", id)
			}
			return nil
		},
	}
}
