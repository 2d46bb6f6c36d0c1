// Package cli implements the duckling command-line interface.
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/task"
)

// newTaskListCmd creates the 'task list' subcommand.
func newTaskListCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long: `List tasks on the duckling server, newest first.

Example:
  duckling task list
  duckling task list --status in-progress
  duckling task list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiClient()
			tasks, err := client.Tasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			if statusFilter != "" {
				filtered := tasks[:0]
				for _, t := range tasks {
					if t.Status == task.Status(statusFilter) {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}

			if jsonOut {
				return printJSON(tasks)
			}

			if len(tasks) == 0 {
				fmt.Println("No tasks found. Create one with: duckling task create \"Your task\"")
				return nil
			}

			// Print tasks in table format
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tPR\tTITLE")
			fmt.Fprintln(w, "──\t──────\t─────\t──\t─────")

			for _, t := range tasks {
				status := fmt.Sprintf("%s %s", statusIcon(t.Status), t.Status)
				stage := string(t.CurrentStage)
				if stage == "" {
					stage = "-"
				}
				pr := "-"
				if t.PRNumber > 0 {
					pr = fmt.Sprintf("#%d", t.PRNumber)
				}
				title := truncate(t.Title, 40)
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, status, stage, pr, title)
			}

			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "only show tasks with this status")

	return cmd
}

// newTaskShowCmd creates the 'task show' subcommand.
func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task details",
		Long: `Show one task in detail: status, stage, branch, and pull request.

Example:
  duckling task show 12
  duckling task show 12 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}

			client := apiClient()
			t, err := client.Task(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load task: %w", err)
			}

			if jsonOut {
				return printJSON(t)
			}

			fmt.Printf("\nTask %d - %s\n", t.ID, t.Title)
			fmt.Printf("────────────────────────────────────────────\n")
			fmt.Printf("Status:     %s %s\n", statusIcon(t.Status), t.Status)
			if t.CurrentStage != "" {
				fmt.Printf("Stage:      %s\n", t.CurrentStage)
			}
			fmt.Printf("Tool:       %s\n", t.CodingTool)
			fmt.Printf("Repository: %s\n", t.RepositoryPath)
			if t.BranchName != "" {
				fmt.Printf("Branch:     %s\n", t.BranchName)
			}
			if t.PRNumber > 0 {
				fmt.Printf("PR:         #%d %s\n", t.PRNumber, t.PRURL)
			}
			fmt.Printf("Created:    %s\n", t.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:    %s\n", t.UpdatedAt.Format(time.RFC3339))
			if t.CompletedAt != nil {
				fmt.Printf("Completed:  %s\n", t.CompletedAt.Format(time.RFC3339))
			}

			if t.Summary != "" {
				fmt.Printf("\nSummary:\n%s\n", t.Summary)
			}
			if t.Description != "" && t.Description != t.Title {
				fmt.Printf("\nDescription:\n%s\n", t.Description)
			}

			return nil
		},
	}
}
