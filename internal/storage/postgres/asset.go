package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/turf/internal/game/economy"
)

// ErrAssetNotFound is returned when an asset lookup yields no results.
var ErrAssetNotFound = errors.New("asset not found")

// AssetRepository persists placed assets. It implements the income
// calculator's asset source.
type AssetRepository struct {
	db *pgxpool.Pool
}

// NewAssetRepository creates an AssetRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAssetRepository(db *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{db: db}
}

// Place inserts a new asset and returns it with a generated ID.
//
// Precondition: gameID, ownerID, and regionName must be non-empty.
// Postcondition: Returns the created asset with ID set.
func (r *AssetRepository) Place(ctx context.Context, gameID, ownerID, regionName, kind string) (economy.Asset, error) {
	asset := economy.Asset{
		ID:         uuid.NewString(),
		GameID:     gameID,
		OwnerID:    ownerID,
		RegionName: regionName,
		Kind:       kind,
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO assets (id, game_id, user_id, region, kind)
		 VALUES ($1, $2, $3, $4, $5)`,
		asset.ID, asset.GameID, asset.OwnerID, asset.RegionName, asset.Kind,
	)
	if err != nil {
		return economy.Asset{}, fmt.Errorf("inserting asset: %w", err)
	}
	return asset, nil
}

// Remove deletes an asset owned by ownerID.
//
// Postcondition: The asset is removed, or ErrAssetNotFound when no asset with
// that ID belongs to the owner.
func (r *AssetRepository) Remove(ctx context.Context, gameID, ownerID, assetID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM assets
		 WHERE id = $1 AND game_id = $2 AND user_id = $3`,
		assetID, gameID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// Get retrieves an asset by ID within a game.
//
// Postcondition: Returns the asset or ErrAssetNotFound.
func (r *AssetRepository) Get(ctx context.Context, gameID, assetID string) (economy.Asset, error) {
	var a economy.Asset
	err := r.db.QueryRow(ctx,
		`SELECT id, game_id, user_id, region, kind
		 FROM assets WHERE id = $1 AND game_id = $2`,
		assetID, gameID,
	).Scan(&a.ID, &a.GameID, &a.OwnerID, &a.RegionName, &a.Kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return economy.Asset{}, ErrAssetNotFound
		}
		return economy.Asset{}, fmt.Errorf("querying asset: %w", err)
	}
	return a, nil
}

// AssetsForPlayer returns all assets the user owns in the game, in placement order.
//
// Postcondition: Returns a slice (may be empty).
func (r *AssetRepository) AssetsForPlayer(ctx context.Context, gameID, userID string) ([]economy.Asset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, game_id, user_id, region, kind
		 FROM assets WHERE game_id = $1 AND user_id = $2
		 ORDER BY placed_at`,
		gameID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying player assets: %w", err)
	}
	defer rows.Close()

	var assets []economy.Asset
	for rows.Next() {
		var a economy.Asset
		if err := rows.Scan(&a.ID, &a.GameID, &a.OwnerID, &a.RegionName, &a.Kind); err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating asset rows: %w", err)
	}
	return assets, nil
}

// AssetCounts returns the number of assets held by each user in the game.
//
// Postcondition: Returns a map (may be empty).
func (r *AssetRepository) AssetCounts(ctx context.Context, gameID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, COUNT(*) FROM assets
		 WHERE game_id = $1 GROUP BY user_id`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying asset counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scanning asset count row: %w", err)
		}
		counts[userID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating asset count rows: %w", err)
	}
	return counts, nil
}
