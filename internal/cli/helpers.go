// Package cli implements the duckling command-line interface.
// This file contains shared helper functions used across multiple commands.
package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/randalmurphal/duckling/internal/server"
	"github.com/randalmurphal/duckling/internal/task"
)

// defaultServerURL is where client commands look for the server when neither
// --addr, DUCKLING_ADDR, nor the config file names an address.
const defaultServerURL = "http://127.0.0.1:8080"

// apiClient builds a client for the duckling server. The address comes from
// the --addr flag, then the DUCKLING_ADDR environment variable or config
// file, then the default.
func apiClient() *server.Client {
	addr := apiAddr
	if addr == "" {
		addr = viper.GetString("addr")
	}
	if addr == "" {
		addr = defaultServerURL
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return server.NewClient(addr)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func statusIcon(status task.Status) string {
	switch status {
	case task.StatusPending:
		return "📝"
	case task.StatusInProgress:
		return "⏳"
	case task.StatusAwaitingReview:
		return "👀"
	case task.StatusCompleted:
		return "✅"
	case task.StatusFailed:
		return "❌"
	case task.StatusCancelled:
		return "🚫"
	default:
		return "❓"
	}
}

// parseID converts a numeric id argument into its int64 form. what names
// the id kind in the error ("task id", "check id").
func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
