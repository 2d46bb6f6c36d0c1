// Package cli implements the duckling command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/tui"
)

// newWatchCmd creates the watch command
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch tasks live in the terminal",
		Long: `Open a live task board in the terminal.

The board shows every task with its status and stage, updated in real
time from the server's websocket stream. Press q to quit.

Example:
  duckling watch
  duckling watch --addr remote-host:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(apiClient())
		},
	}
}
