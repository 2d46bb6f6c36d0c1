// Package cli implements the duckling command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/gitx"
	"github.com/randalmurphal/duckling/internal/hosting"
	"github.com/randalmurphal/duckling/internal/task"
)

// newRepoCmd creates the repo command with subcommands.
func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage the repository registry",
		Long: `Manage the repositories duckling can work on.

A repository must be registered before tasks can reference it. Registration
reads the git remote to work out the hosting provider (GitHub or GitLab)
and the owner/name used when opening pull requests.

Subcommands:
  add     Register a repository
  list    List registered repositories
  remove  Remove a repository from the registry

Examples:
  duckling repo add .
  duckling repo add ~/src/app
  duckling repo list
  duckling repo remove ~/src/app`,
	}

	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoListCmd())
	cmd.AddCommand(newRepoRemoveCmd())

	return cmd
}

// newRepoAddCmd creates the 'repo add' subcommand.
func newRepoAddCmd() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Register a repository",
		Long: `Register a local working copy so tasks can target it.

The path defaults to the current directory. The provider, owner, and name
are derived from the git remote URL.

Examples:
  duckling repo add
  duckling repo add ~/src/app
  duckling repo add . --remote upstream`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve repository path: %w", err)
			}

			ctx := cmd.Context()
			remoteURL, err := gitx.New(abs, nil, nil).RemoteURL(ctx, remote)
			if err != nil {
				return fmt.Errorf("read remote %q: %w", remote, err)
			}

			provider := hosting.DetectProvider(remoteURL)
			if provider == hosting.ProviderUnknown {
				return fmt.Errorf("cannot determine hosting provider from remote %q", remoteURL)
			}
			owner, name := hosting.ParseOwnerRepo(remoteURL)
			if owner == "" || name == "" {
				return fmt.Errorf("cannot parse owner/name from remote %q", remoteURL)
			}

			repo, err := apiClient().AddRepository(ctx, task.Repository{
				Path:     abs,
				Name:     name,
				Owner:    owner,
				Provider: string(provider),
			})
			if err != nil {
				return fmt.Errorf("register repository: %w", err)
			}

			if jsonOut {
				return printJSON(repo)
			}

			fmt.Printf("Registered %s as %s/%s (%s)\n", repo.Path, repo.Owner, repo.Name, repo.Provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "origin", "git remote to derive the hosted repository from")

	return cmd
}

// newRepoListCmd creates the 'repo list' subcommand.
func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := apiClient().Repositories(cmd.Context())
			if err != nil {
				return fmt.Errorf("list repositories: %w", err)
			}

			if jsonOut {
				return printJSON(repos)
			}

			if len(repos) == 0 {
				fmt.Println("No repositories registered. Add one with: duckling repo add <path>")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tPROVIDER\tOWNER\tNAME")
			fmt.Fprintln(w, "────\t────────\t─────\t────")
			for _, r := range repos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path, r.Provider, r.Owner, r.Name)
			}
			w.Flush()
			return nil
		},
	}
}

// newRepoRemoveCmd creates the 'repo remove' subcommand.
func newRepoRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <path>",
		Aliases: []string{"rm"},
		Short:   "Remove a repository from the registry",
		Long: `Remove a repository from the registry.

Existing tasks keep their history; only new task creation against the
path stops working.

Example:
  duckling repo remove ~/src/app`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve repository path: %w", err)
			}

			if err := apiClient().RemoveRepository(cmd.Context(), abs); err != nil {
				return fmt.Errorf("remove repository: %w", err)
			}

			if !quiet {
				fmt.Printf("Removed %s\n", abs)
			}
			return nil
		},
	}
}
