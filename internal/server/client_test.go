package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/duckling/internal/settings"
	"github.com/randalmurphal/duckling/internal/task"
)

func newClientFixture(t *testing.T) (*fixture, *Client) {
	t.Helper()
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)
	return f, NewClient(ts.URL)
}

func TestClientTaskFlow(t *testing.T) {
	t.Parallel()
	f, c := newClientFixture(t)
	f.registerRepo()
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	created, err := c.CreateTask(ctx, TaskCreateRequest{
		Title:          "Dark mode",
		Description:    "Add dark mode",
		RepositoryPath: testRepoPath,
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, created.Status)

	got, err := c.Task(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	tasks, err := c.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	logs, err := c.TaskLogs(ctx, created.ID, LogQuery{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Task created", logs[0].Message)

	cancelled, err := c.CancelTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)

	d, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Total)
	assert.Equal(t, 1, d.Cancelled)
}

func TestClientRetryAndComplete(t *testing.T) {
	t.Parallel()
	f, c := newClientFixture(t)
	f.registerRepo()
	ctx := context.Background()

	failed := f.seedTask(task.StatusFailed)

	retried, err := c.RetryTask(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, retried.Status)

	completed, err := c.CompleteTask(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}

func TestClientRegistry(t *testing.T) {
	t.Parallel()
	_, c := newClientFixture(t)
	ctx := context.Background()

	saved, err := c.AddRepository(ctx, task.Repository{
		Path: testRepoPath, Name: "widget", Owner: "acme", Provider: "github",
	})
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	repos, err := c.Repositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)

	require.NoError(t, c.RemoveRepository(ctx, testRepoPath))
	repos, err = c.Repositories(ctx)
	require.NoError(t, err)
	assert.Empty(t, repos)

	check, err := c.AddCheck(ctx, task.PrecommitCheck{Name: "lint", Command: "make lint"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), check.ID)

	checks, err := c.Checks(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 1)

	require.NoError(t, c.RemoveCheck(ctx, check.ID))

	require.NoError(t, c.SetSetting(ctx, settings.KeyBaseBranch, "trunk"))
	all, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "trunk", all[settings.KeyBaseBranch])
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	t.Parallel()
	_, c := newClientFixture(t)
	ctx := context.Background()

	_, err := c.Task(ctx, 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not found")
	assert.Contains(t, apiErr.Error(), "status 404")

	err = c.SetSetting(ctx, "bogusKey", "x")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClientWebSocketURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://duckling.example.com", "wss://duckling.example.com/ws"},
		{"http://localhost:8080/", "ws://localhost:8080/ws"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NewClient(tc.base).WebSocketURL())
	}
}
