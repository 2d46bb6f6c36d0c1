// Package cli implements the duckling command-line interface.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/server"
)

// newTaskCmd creates the task command with subcommands.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and manage tasks",
		Long: `Create and manage duckling tasks.

A task is one unit of work: a description of a code change plus the
repository it applies to. The server picks up pending tasks in creation
order and drives each through branch, code, checks, commit, and PR.

Subcommands:
  create    Queue a new task
  list      List tasks
  show      Show one task in detail
  cancel    Cancel a task
  retry     Retry a failed or cancelled task
  complete  Mark a task completed
  import    Create a task from a Jira issue

Examples:
  duckling task create "Fix login bug" --repo ~/src/app
  duckling task list
  duckling task show 12
  duckling task cancel 12`,
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskCancelCmd())
	cmd.AddCommand(newTaskRetryCmd())
	cmd.AddCommand(newTaskCompleteCmd())
	cmd.AddCommand(newTaskImportCmd())

	return cmd
}

// newTaskCreateCmd creates the 'task create' subcommand.
func newTaskCreateCmd() *cobra.Command {
	var (
		description string
		repoPath    string
		tool        string
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Queue a new task",
		Long: `Queue a new task on the duckling server.

The repository must already be registered (see 'duckling repo add'). When
--description is omitted the title doubles as the description. The coding
tool defaults to the server's default_coding_tool setting.

Examples:
  duckling task create "Fix login bug" --repo ~/src/app
  duckling task create "Add dark mode" -d "Add a dark theme toggle to settings" --repo .
  duckling task create "Bump deps" --repo . --tool openai`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := args[0]
			if description == "" {
				description = title
			}

			repo, err := filepath.Abs(repoPath)
			if err != nil {
				return fmt.Errorf("resolve repository path: %w", err)
			}

			client := apiClient()
			t, err := client.CreateTask(cmd.Context(), server.TaskCreateRequest{
				Title:          title,
				Description:    description,
				CodingTool:     tool,
				RepositoryPath: repo,
			})
			if err != nil {
				return fmt.Errorf("create task: %w", err)
			}

			if jsonOut {
				return printJSON(t)
			}

			fmt.Printf("Created task %d: %s\n", t.ID, t.Title)
			if !quiet {
				fmt.Printf("  Status: %s\n", t.Status)
				fmt.Printf("  Repository: %s\n", t.RepositoryPath)
				fmt.Printf("  Tool: %s\n", t.CodingTool)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "task description (defaults to the title)")
	cmd.Flags().StringVarP(&repoPath, "repo", "r", ".", "registered repository the task applies to")
	cmd.Flags().StringVar(&tool, "tool", "", "coding tool: amp or openai (defaults to server setting)")

	return cmd
}
