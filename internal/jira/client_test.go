package jira

import (
	"context"
	"testing"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	valid := Config{
		BaseURL:  "https://duckling.atlassian.net",
		Email:    "dev@example.com",
		APIToken: "token123",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.BaseURL = "" },
			wantErr: "jira base URL is required",
		},
		{
			name:    "missing email",
			mutate:  func(c *Config) { c.Email = "" },
			wantErr: "jira email is required",
		},
		{
			name:    "missing API token",
			mutate:  func(c *Config) { c.APIToken = "" },
			wantErr: "jira API token is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewClient(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		client, err := NewClient(valid)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("trailing slash accepted", func(t *testing.T) {
		t.Parallel()
		cfg := valid
		cfg.BaseURL = "https://duckling.atlassian.net/"
		client, err := NewClient(cfg)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestGetIssueRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		BaseURL:  "https://duckling.atlassian.net",
		Email:    "dev@example.com",
		APIToken: "token123",
	})
	require.NoError(t, err)

	_, err = client.GetIssue(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue key is required")
}

func TestConvertIssue(t *testing.T) {
	t.Parallel()

	t.Run("full issue", func(t *testing.T) {
		t.Parallel()
		issue := convertIssue(&models.IssueScheme{
			Key: "DUCK-7",
			Fields: &models.IssueFieldsScheme{
				Summary: "Fix login flake",
				Description: doc(
					node("paragraph", text("The login test fails on CI.")),
					node("bulletList",
						node("listItem", node("paragraph", text("only on retries"))),
					),
				),
				Labels: []string{"bug", "ci"},
			},
		})

		assert.Equal(t, "DUCK-7", issue.Key)
		assert.Equal(t, "Fix login flake", issue.Summary)
		assert.Equal(t, "The login test fails on CI.\n\n- only on retries", issue.Description)
		assert.Equal(t, []string{"bug", "ci"}, issue.Labels)
	})

	t.Run("nil fields", func(t *testing.T) {
		t.Parallel()
		issue := convertIssue(&models.IssueScheme{Key: "DUCK-8"})
		assert.Equal(t, "DUCK-8", issue.Key)
		assert.Empty(t, issue.Summary)
		assert.Empty(t, issue.Description)
		assert.Empty(t, issue.Labels)
	})

	t.Run("nil issue", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Issue{}, convertIssue(nil))
	})
}
