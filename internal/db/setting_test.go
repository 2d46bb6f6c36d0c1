package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewTestDB(t)
	ctx := context.Background()

	val, err := store.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, store.SetSetting(ctx, "branchPrefix", "duckling-"))
	require.NoError(t, store.SetSetting(ctx, "branchPrefix", "feature-"))

	val, err = store.GetSetting(ctx, "branchPrefix")
	require.NoError(t, err)
	assert.Equal(t, "feature-", val)

	require.NoError(t, store.SetSetting(ctx, "maxRetries", "5"))
	all, err := store.AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"branchPrefix": "feature-",
		"maxRetries":   "5",
	}, all)
}
