package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegionRepository persists region ownership. One row per claimed region;
// the (game_id, region) primary key is what makes concurrent claims safe.
type RegionRepository struct {
	db *pgxpool.Pool
}

// NewRegionRepository creates a RegionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRegionRepository(db *pgxpool.Pool) *RegionRepository {
	return &RegionRepository{db: db}
}

// ClaimIfAvailable records userID as owner iff the region has no owner. The
// conditional insert resolves racing claims: exactly one inserts the row.
//
// Postcondition: Returns true when the claim was recorded.
func (r *RegionRepository) ClaimIfAvailable(ctx context.Context, gameID, region, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO region_claims (game_id, region, user_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (game_id, region) DO NOTHING`,
		gameID, region, userID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting region claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseIfOwner removes the claim iff userID is the current owner.
//
// Postcondition: Returns true when a claim was removed.
func (r *RegionRepository) ReleaseIfOwner(ctx context.Context, gameID, region, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM region_claims
		 WHERE game_id = $1 AND region = $2 AND user_id = $3`,
		gameID, region, userID,
	)
	if err != nil {
		return false, fmt.Errorf("deleting region claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Owner returns the current owner of the region, if any.
//
// Postcondition: Returns (owner, true, nil) when claimed, ("", false, nil)
// when unclaimed.
func (r *RegionRepository) Owner(ctx context.Context, gameID, region string) (string, bool, error) {
	var owner string
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM region_claims WHERE game_id = $1 AND region = $2`,
		gameID, region,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying region owner: %w", err)
	}
	return owner, true, nil
}

// AllTaken returns region name → owner for every claimed region in the game.
//
// Postcondition: Returns a map (may be empty).
func (r *RegionRepository) AllTaken(ctx context.Context, gameID string) (map[string]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT region, user_id FROM region_claims WHERE game_id = $1`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying taken regions: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]string)
	for rows.Next() {
		var region, owner string
		if err := rows.Scan(&region, &owner); err != nil {
			return nil, fmt.Errorf("scanning taken region row: %w", err)
		}
		taken[region] = owner
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating taken region rows: %w", err)
	}
	return taken, nil
}

// OwnedBy returns the regions owned by userID in the game, in claim order.
//
// Postcondition: Returns a slice (may be empty).
func (r *RegionRepository) OwnedBy(ctx context.Context, gameID, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT region FROM region_claims
		 WHERE game_id = $1 AND user_id = $2
		 ORDER BY claimed_at`,
		gameID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying owned regions: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, fmt.Errorf("scanning owned region row: %w", err)
		}
		regions = append(regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owned region rows: %w", err)
	}
	return regions, nil
}
