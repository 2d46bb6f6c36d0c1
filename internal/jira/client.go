// Package jira fetches issues from Jira Cloud so they can be imported
// as duckling tasks.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
)

// ErrIssueNotFound is returned when the requested issue key does not
// exist or is not visible to the configured account.
var ErrIssueNotFound = errors.New("jira issue not found")

// issueFields limits each fetch to the fields a task import reads.
var issueFields = []string{"summary", "description", "labels"}

// Config holds the connection settings for a Jira Cloud instance.
type Config struct {
	// BaseURL is the instance URL, e.g. "https://yourcompany.atlassian.net".
	BaseURL string
	// Email is the account email for basic auth.
	Email string
	// APIToken is an API token created at id.atlassian.com.
	APIToken string
}

// Issue is the slice of a Jira issue that becomes a duckling task.
type Issue struct {
	Key         string
	Summary     string
	Description string
	Labels      []string
}

// Client wraps the go-atlassian Jira v3 client with the one lookup the
// importer needs.
type Client struct {
	jira *v3.Client
}

// NewClient creates a Jira Cloud client with basic auth.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("jira email is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("jira API token is required")
	}

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	client.Auth.SetBasicAuth(cfg.Email, cfg.APIToken)
	client.Auth.SetUserAgent("duckling-jira-import/1.0")

	return &Client{jira: client}, nil
}

// GetIssue fetches a single issue by key, e.g. "PROJ-123". The
// description is flattened from ADF to plain text.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("issue key is required")
	}

	jql := fmt.Sprintf("key = %q", key)
	result, resp, err := c.jira.Issue.Search.SearchJQL(ctx, jql, issueFields, nil, 1, "")
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("jira search (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("jira search: %w", err)
	}
	if result == nil || len(result.Issues) == 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrIssueNotFound)
	}

	issue := convertIssue(result.Issues[0])
	return &issue, nil
}

func convertIssue(issue *models.IssueScheme) Issue {
	if issue == nil {
		return Issue{}
	}
	out := Issue{Key: issue.Key}
	fields := issue.Fields
	if fields == nil {
		return out
	}
	out.Summary = fields.Summary
	out.Description = ADFToText(fields.Description)
	out.Labels = fields.Labels
	return out
}
