// Package cli implements the duckling command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/task"
)

// newTaskCancelCmd creates the 'task cancel' subcommand.
func newTaskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a task",
		Long: `Cancel a task.

Pending tasks never start. A task already in flight finishes its current
pipeline run and is cancelled at the next scheduling boundary. Cancelling
a cancelled task is a no-op.

Example:
  duckling task cancel 12`,
		Args: cobra.ExactArgs(1),
		RunE: runLifecycleVerb("cancel", func(ctx context.Context, id int64) (*task.Task, error) {
			return apiClient().CancelTask(ctx, id)
		}),
	}
}

// newTaskRetryCmd creates the 'task retry' subcommand.
func newTaskRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Retry a failed task",
		Long: `Put a failed task back in the queue.

The retried task runs the full pipeline again. If its branch already
exists a numeric suffix is appended, and an open PR for the branch is
reused instead of duplicated.

Example:
  duckling task retry 12`,
		Args: cobra.ExactArgs(1),
		RunE: runLifecycleVerb("retry", func(ctx context.Context, id int64) (*task.Task, error) {
			return apiClient().RetryTask(ctx, id)
		}),
	}
}

// newTaskCompleteCmd creates the 'task complete' subcommand.
func newTaskCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task completed",
		Long: `Mark a task completed without waiting for its PR to merge.

Useful when a change was merged out of band or the PR is being handled
manually from here on.

Example:
  duckling task complete 12`,
		Args: cobra.ExactArgs(1),
		RunE: runLifecycleVerb("complete", func(ctx context.Context, id int64) (*task.Task, error) {
			return apiClient().CompleteTask(ctx, id)
		}),
	}
}

// runLifecycleVerb wraps the shared parse-call-print shape of the cancel,
// retry, and complete subcommands.
func runLifecycleVerb(verb string, call func(context.Context, int64) (*task.Task, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "task id")
		if err != nil {
			return err
		}

		t, err := call(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("%s task %d: %w", verb, id, err)
		}

		if jsonOut {
			return printJSON(t)
		}

		fmt.Printf("Task %d is now %s\n", t.ID, t.Status)
		return nil
	}
}
