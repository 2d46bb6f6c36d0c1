// Package cli implements the duckling command-line interface.
package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/randalmurphal/duckling/internal/config"
	"github.com/randalmurphal/duckling/internal/settings"
)

// secretKeys are settings whose values are hidden in listings.
var secretKeys = map[string]bool{
	settings.KeyGitHubToken:  true,
	settings.KeyGitLabToken:  true,
	settings.KeyAmpAPIKey:    true,
	settings.KeyOpenAIAPIKey: true,
}

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and server settings",
		Long: `Manage duckling configuration.

Two kinds of configuration exist:
  - The config file (.duckling/config.yaml) holds process-level settings:
    listen address, database path, scheduler interval, logging. 'config
    init' writes a starter file.
  - Server settings (branch prefix, tokens, API keys, retry limit) live in
    the server's database. 'config get' and 'config set' read and write
    them over the HTTP API, so the server must be running.

Examples:
  duckling config init
  duckling config get
  duckling config get branchPrefix
  duckling config set maxRetries 5
  duckling config set githubToken --secret`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

// newConfigInitCmd creates the 'config init' subcommand.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a config file with default values to ~/.duckling/config.yaml.

Example:
  duckling config init
  duckling config init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(force); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Initialized duckling config at %s\n", config.DefaultPath())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	return cmd
}

// newConfigGetCmd creates the 'config get' subcommand.
func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Show server settings",
		Long: `Show server settings.

Without a key, lists every known setting with secrets masked. With a key,
prints the raw stored value.

Examples:
  duckling config get
  duckling config get branchPrefix
  duckling config get githubToken`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := apiClient().Settings(cmd.Context())
			if err != nil {
				return fmt.Errorf("get settings: %w", err)
			}

			if len(args) == 1 {
				value, ok := all[args[0]]
				if !ok {
					return fmt.Errorf("unknown setting: %s", args[0])
				}
				fmt.Println(value)
				return nil
			}

			if jsonOut {
				return printJSON(all)
			}

			keys := make([]string, 0, len(all))
			for k := range all {
				// Bookkeeping keys are engine-owned noise in a listing.
				if settings.Known(k) {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			fmt.Fprintln(w, "───\t─────")
			for _, k := range keys {
				v := all[k]
				if secretKeys[k] {
					if v == "" {
						v = "(not set)"
					} else {
						v = "********"
					}
				}
				fmt.Fprintf(w, "%s\t%s\n", k, v)
			}
			w.Flush()
			return nil
		},
	}
}

// newConfigSetCmd creates the 'config set' subcommand.
func newConfigSetCmd() *cobra.Command {
	var secret bool

	cmd := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Set a server setting",
		Long: `Set a server setting.

Use --secret for tokens and API keys: the value is read from the terminal
without echoing, so it never lands in shell history.

Examples:
  duckling config set maxRetries 5
  duckling config set baseBranch develop
  duckling config set githubToken --secret`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var value string
			switch {
			case secret && len(args) == 2:
				return fmt.Errorf("--secret reads the value from the terminal; do not pass it as an argument")
			case secret:
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return fmt.Errorf("--secret requires an interactive terminal")
				}
				fmt.Printf("Enter value for %s: ", key)
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
				value = strings.TrimSpace(string(raw))
			case len(args) == 2:
				value = args[1]
			default:
				return fmt.Errorf("value required (or use --secret to prompt for one)")
			}

			if err := apiClient().SetSetting(cmd.Context(), key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}

			if !quiet {
				if secret {
					fmt.Printf("Set %s\n", key)
				} else {
					fmt.Printf("Set %s = %s\n", key, value)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&secret, "secret", false, "prompt for the value without echoing it")

	return cmd
}
