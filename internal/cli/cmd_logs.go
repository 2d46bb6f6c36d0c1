// Package cli implements the duckling command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/server"
	"github.com/randalmurphal/duckling/internal/task"
)

// ANSI color codes for log display
const (
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

// followPollInterval is how often --follow asks the server for new entries.
const followPollInterval = 2 * time.Second

// newLogsCmd creates the logs command
func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <task-id>",
		Short: "Show task logs (use --follow for live streaming)",
		Long: `Show the log trail of a task.

Every pipeline step, check result, and review round is logged on the
server. Use this to see what a task did or why it failed.

Examples:
  duckling logs 12               # Most recent entries
  duckling logs 12 --level error # Errors only
  duckling logs 12 -n 20         # Last 20 entries
  duckling logs 12 --follow      # Stream new entries as they appear`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}

			level, _ := cmd.Flags().GetString("level")
			limit, _ := cmd.Flags().GetInt("limit")
			follow, _ := cmd.Flags().GetBool("follow")
			noColor, _ := cmd.Flags().GetBool("no-color")

			if level != "" && !task.IsValidLogLevel(task.LogLevel(level)) {
				return fmt.Errorf("invalid log level %q (debug, info, warn, error)", level)
			}

			useColor := !noColor && isatty.IsTerminal(os.Stdout.Fd())
			client := apiClient()

			logs, err := client.TaskLogs(cmd.Context(), id, server.LogQuery{Level: level})
			if err != nil {
				return fmt.Errorf("get logs: %w", err)
			}

			// Apply tail limit (default 100, 0 for all)
			if limit > 0 && len(logs) > limit {
				logs = logs[len(logs)-limit:]
			}

			if jsonOut && !follow {
				return printJSON(logs)
			}

			if len(logs) == 0 && !follow {
				fmt.Printf("No log entries for task %d\n", id)
				return nil
			}

			for _, entry := range logs {
				displayLogEntry(entry, useColor)
			}

			if !follow {
				return nil
			}

			var lastID int64
			if len(logs) > 0 {
				lastID = logs[len(logs)-1].ID
			}
			return followLogs(client, id, level, lastID, useColor)
		},
	}

	cmd.Flags().StringP("level", "l", "", "only show entries at this level (debug, info, warn, error)")
	cmd.Flags().IntP("limit", "n", 100, "number of entries to show (0 for all)")
	cmd.Flags().BoolP("follow", "f", false, "stream new entries as they are written")
	cmd.Flags().Bool("no-color", false, "disable color output")

	return cmd
}

// followLogs polls for entries newer than lastID until interrupted.
func followLogs(client *server.Client, id int64, level string, lastID int64, useColor bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopping...")
		cancel()
	}()

	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logs, err := client.TaskLogs(ctx, id, server.LogQuery{
				Level:   level,
				AfterID: lastID,
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("get logs: %w", err)
			}
			for _, entry := range logs {
				displayLogEntry(entry, useColor)
				lastID = entry.ID
			}
		}
	}
}

// displayLogEntry renders a single log entry
func displayLogEntry(entry task.Log, useColor bool) {
	timeStr := entry.CreatedAt.Local().Format("15:04:05")
	level := strings.ToUpper(string(entry.Level))

	if !useColor {
		fmt.Printf("[%s] %-5s %s\n", timeStr, level, entry.Message)
		return
	}

	levelColor := ansiCyan
	switch entry.Level {
	case task.LogDebug:
		levelColor = ansiDim
	case task.LogInfo:
		levelColor = ansiGreen
	case task.LogWarn:
		levelColor = ansiYellow
	case task.LogError:
		levelColor = ansiRed + ansiBold
	}

	fmt.Printf("%s[%s]%s %s%-5s%s %s\n", ansiDim, timeStr, ansiReset, levelColor, level, ansiReset, entry.Message)
}
