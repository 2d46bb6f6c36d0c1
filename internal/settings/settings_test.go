package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/duckling/internal/db"
)

func newView(t *testing.T) (*Settings, *db.DB) {
	t.Helper()
	store := db.NewTestDB(t)
	return New(store), store
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newView(t)
	ctx := context.Background()

	assert.Equal(t, "duckling-", s.BranchPrefix(ctx))
	assert.Equal(t, "[DUCKLING]", s.PRTitlePrefix(ctx))
	assert.Equal(t, " [quack]", s.CommitSuffix(ctx))
	assert.Equal(t, 3, s.MaxRetries(ctx))
	assert.Equal(t, "main", s.BaseBranch(ctx))
	assert.Equal(t, "amp", s.DefaultCodingTool(ctx))
	assert.Empty(t, s.GitHubToken(ctx))
	assert.Empty(t, s.GitHubUsername(ctx))
}

func TestStoredValuesWin(t *testing.T) {
	t.Parallel()
	s, _ := newView(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyBranchPrefix, "robot-"))
	require.NoError(t, s.Set(ctx, KeyMaxRetries, "7"))
	require.NoError(t, s.Set(ctx, KeyGitHubUsername, "octocat"))

	assert.Equal(t, "robot-", s.BranchPrefix(ctx))
	assert.Equal(t, 7, s.MaxRetries(ctx))
	assert.Equal(t, "octocat", s.GitHubUsername(ctx))
}

func TestMaxRetriesRejectsGarbage(t *testing.T) {
	t.Parallel()
	s, _ := newView(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyMaxRetries, "not-a-number"))
	assert.Equal(t, 3, s.MaxRetries(ctx))

	require.NoError(t, s.Set(ctx, KeyMaxRetries, "0"))
	assert.Equal(t, 3, s.MaxRetries(ctx))
}

func TestLastReviewBookkeeping(t *testing.T) {
	t.Parallel()
	s, store := newView(t)
	ctx := context.Background()

	require.NoError(t, s.LastReviewBookkeeping(ctx, 42, 9001))

	val, err := store.GetSetting(ctx, "last_comment_42")
	require.NoError(t, err)
	assert.Equal(t, "9001", val)
}

func TestKnown(t *testing.T) {
	t.Parallel()

	assert.True(t, Known(KeyBranchPrefix))
	assert.True(t, Known(KeyGitLabToken))
	assert.False(t, Known("last_comment_7"))
	assert.False(t, Known("nonsense"))
}

func TestSeedFillsOnlyMissingKeys(t *testing.T) {
	t.Parallel()
	s, store := newView(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyBranchPrefix, "robot-"))
	require.NoError(t, s.Seed(ctx))

	all, err := store.AllSettings(ctx)
	require.NoError(t, err)

	assert.Equal(t, "robot-", all[KeyBranchPrefix])
	assert.Equal(t, "main", all[KeyBaseBranch])
	assert.Equal(t, "3", all[KeyMaxRetries])
	for key := range Defaults() {
		_, ok := all[key]
		assert.True(t, ok, "key %s not seeded", key)
	}
}
