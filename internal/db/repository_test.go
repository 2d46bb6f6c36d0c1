package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/duckling/internal/task"
)

func TestRepositoryRegistry(t *testing.T) {
	t.Parallel()
	store := NewTestDB(t)
	ctx := context.Background()

	r := &task.Repository{Path: "/srv/repos/widget", Name: "widget", Owner: "acme"}
	require.NoError(t, store.SaveRepository(ctx, r))
	assert.Equal(t, "github", r.Provider)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := store.GetRepository(ctx, "/srv/repos/widget")
	require.NoError(t, err)
	assert.Equal(t, "widget", got.Name)
	assert.Equal(t, "acme", got.Owner)
	assert.Equal(t, "github", got.Provider)

	// Upsert by path keeps the row identity.
	r.Owner = "acme-corp"
	r.Provider = "gitlab"
	require.NoError(t, store.SaveRepository(ctx, r))

	got, err = store.GetRepository(ctx, "/srv/repos/widget")
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", got.Owner)
	assert.Equal(t, "gitlab", got.Provider)

	repos, err := store.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 1)

	require.NoError(t, store.DeleteRepository(ctx, "/srv/repos/widget"))
	_, err = store.GetRepository(ctx, "/srv/repos/widget")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteRepository(ctx, "/srv/repos/widget"), ErrNotFound)
}
