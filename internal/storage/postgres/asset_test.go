package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/turf/internal/storage/postgres"
	"github.com/cory-johannsen/turf/internal/testutil"
)

func TestPlaceAndGetAsset(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	_, gameID := setupGame(t, pool, "alice")
	assets := postgres.NewAssetRepository(pool)

	placed, err := assets.Place(ctx, gameID, "alice", "suffolk", "factory")
	require.NoError(t, err)
	require.NotEmpty(t, placed.ID)
	assert.Equal(t, "alice", placed.OwnerID)
	assert.Equal(t, "suffolk", placed.RegionName)
	assert.Equal(t, "factory", placed.Kind)

	fetched, err := assets.Get(ctx, gameID, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed, fetched)

	_, err = assets.Get(ctx, gameID, "no-such-asset")
	assert.ErrorIs(t, err, postgres.ErrAssetNotFound)
}

func TestRemoveAssetRequiresOwner(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	_, gameID := setupGame(t, pool, "alice", "bob")
	assets := postgres.NewAssetRepository(pool)

	placed, err := assets.Place(ctx, gameID, "alice", "suffolk", "factory")
	require.NoError(t, err)

	// Another player cannot remove it.
	err = assets.Remove(ctx, gameID, "bob", placed.ID)
	assert.ErrorIs(t, err, postgres.ErrAssetNotFound)

	_, err = assets.Get(ctx, gameID, placed.ID)
	require.NoError(t, err)

	require.NoError(t, assets.Remove(ctx, gameID, "alice", placed.ID))
	_, err = assets.Get(ctx, gameID, placed.ID)
	assert.ErrorIs(t, err, postgres.ErrAssetNotFound)

	// Removing again reports not found.
	err = assets.Remove(ctx, gameID, "alice", placed.ID)
	assert.ErrorIs(t, err, postgres.ErrAssetNotFound)
}

func TestAssetsForPlayerOrdering(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	_, gameID := setupGame(t, pool, "alice", "bob")
	assets := postgres.NewAssetRepository(pool)

	first, err := assets.Place(ctx, gameID, "alice", "suffolk", "factory")
	require.NoError(t, err)
	second, err := assets.Place(ctx, gameID, "alice", "essex", "farm")
	require.NoError(t, err)
	_, err = assets.Place(ctx, gameID, "bob", "norfolk", "factory")
	require.NoError(t, err)

	owned, err := assets.AssetsForPlayer(ctx, gameID, "alice")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, first.ID, owned[0].ID)
	assert.Equal(t, second.ID, owned[1].ID)

	none, err := assets.AssetsForPlayer(ctx, gameID, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAssetCounts(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	_, gameID := setupGame(t, pool, "alice", "bob")
	assets := postgres.NewAssetRepository(pool)

	for _, placement := range []struct{ user, region string }{
		{"alice", "suffolk"},
		{"alice", "essex"},
		{"bob", "norfolk"},
	} {
		_, err := assets.Place(ctx, gameID, placement.user, placement.region, "factory")
		require.NoError(t, err)
	}

	counts, err := assets.AssetCounts(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, counts)

	empty, err := assets.AssetCounts(ctx, uniqueID("game"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
