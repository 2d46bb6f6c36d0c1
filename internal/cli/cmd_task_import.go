package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/config"
	"github.com/randalmurphal/duckling/internal/jira"
	"github.com/randalmurphal/duckling/internal/server"
)

// newTaskImportCmd creates the 'task import' subcommand.
func newTaskImportCmd() *cobra.Command {
	var (
		url      string
		email    string
		token    string
		repoPath string
		tool     string
	)

	cmd := &cobra.Command{
		Use:   "import <issue-key>",
		Short: "Create a task from a Jira Cloud issue",
		Long: `Fetch a Jira Cloud issue and queue it as a duckling task.

The task title becomes "[KEY] summary" and the description is the issue
description converted to plain text.

Authentication requires a Jira Cloud API token:
  1. Generate at https://id.atlassian.com/manage-profile/security/api-tokens
  2. Set DUCKLING_JIRA_TOKEN environment variable (recommended)
  3. Or pass --token flag

URL and email can be set in the config file under the 'jira' key:
  jira:
    url: "https://acme.atlassian.net"
    email: "user@acme.com"

Examples:
  duckling task import PROJ-123 --repo ~/src/app
  duckling task import PROJ-123 --url https://acme.atlassian.net --email user@acme.com --repo .`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				// Non-fatal, the config file may not exist
				cfg = config.Default()
			}

			// Resolve auth: flags > env > config
			jiraURL := resolveString(url, "DUCKLING_JIRA_URL", cfg.Jira.URL)
			jiraEmail := resolveString(email, "DUCKLING_JIRA_EMAIL", cfg.Jira.Email)
			jiraToken := resolveString(token, "DUCKLING_JIRA_TOKEN", cfg.Jira.APIToken)

			if jiraURL == "" {
				return fmt.Errorf("jira URL is required: use --url flag or set jira.url in config")
			}
			if jiraEmail == "" {
				return fmt.Errorf("jira email is required: use --email flag or set jira.email in config")
			}
			if jiraToken == "" {
				return fmt.Errorf("jira API token is required: set DUCKLING_JIRA_TOKEN env var or use --token flag")
			}

			jc, err := jira.NewClient(jira.Config{
				BaseURL:  jiraURL,
				Email:    jiraEmail,
				APIToken: jiraToken,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			issue, err := jc.GetIssue(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch jira issue: %w", err)
			}

			repo, err := filepath.Abs(repoPath)
			if err != nil {
				return fmt.Errorf("resolve repository path: %w", err)
			}

			description := issue.Description
			if description == "" {
				description = issue.Summary
			}

			t, err := apiClient().CreateTask(ctx, server.TaskCreateRequest{
				Title:          fmt.Sprintf("[%s] %s", issue.Key, issue.Summary),
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

			fmt.Printf("Imported %s as task %d: %s\n", issue.Key, t.ID, t.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Jira Cloud URL (e.g., https://acme.atlassian.net)")
	cmd.Flags().StringVar(&email, "email", "", "Email for authentication (or DUCKLING_JIRA_EMAIL)")
	cmd.Flags().StringVar(&token, "token", "", "API token (or DUCKLING_JIRA_TOKEN, recommended)")
	cmd.Flags().StringVarP(&repoPath, "repo", "r", ".", "registered repository the task applies to")
	cmd.Flags().StringVar(&tool, "tool", "", "coding tool: amp or openai (defaults to server setting)")

	return cmd
}

// resolveString resolves a value from flag, env var, or config (in priority order).
func resolveString(flag, envVar, configVal string) string {
	if flag != "" {
		return flag
	}
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	return configVal
}
