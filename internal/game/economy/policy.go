// Package economy provides the income policy: placement cost scaling and
// per-turn income computation over a player's placed assets.
package economy

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/turf/internal/game/geo"
)

// Default cost-scaling parameters.
const (
	DefaultPopulationCeiling int64 = 250_000
	DefaultMaxPlacementCost  int64 = 10_000
)

// Asset is a revenue-generating placement on a region.
type Asset struct {
	ID         string
	GameID     string
	OwnerID    string
	RegionName string
	Kind       string
}

// CostPolicy computes placement cost from region population.
// Cost scales linearly from 0 at population 0 up to MaxCost at Ceiling,
// and is capped at MaxCost above the ceiling.
type CostPolicy struct {
	Ceiling int64
	MaxCost int64
}

// DefaultCostPolicy returns the standard cost scaling.
func DefaultCostPolicy() CostPolicy {
	return CostPolicy{Ceiling: DefaultPopulationCeiling, MaxCost: DefaultMaxPlacementCost}
}

// CostForPlacement returns the placement cost for a region with the given
// population. Negative populations are treated as zero.
//
// Precondition: the policy's Ceiling must be >= 1.
// Postcondition: Returns a value in [0, MaxCost]; deterministic.
func (p CostPolicy) CostForPlacement(population int64) int64 {
	if population <= 0 {
		return 0
	}
	if population >= p.Ceiling {
		return p.MaxCost
	}
	return population * p.MaxCost / p.Ceiling
}

// ContributionFunc computes the per-turn income of a single asset from its
// region's population. Implementations must be pure.
type ContributionFunc func(population int64) (int64, error)

// AssetSource supplies the assets a player holds in a game.
type AssetSource interface {
	// AssetsForPlayer returns all assets the user owns in the game.
	AssetsForPlayer(ctx context.Context, gameID, userID string) ([]Asset, error)
	// AssetCounts returns the number of assets held by each user in the game.
	AssetCounts(ctx context.Context, gameID string) (map[string]int, error)
}

// Calculator computes per-turn income for players. It is deterministic given
// the same asset set, atlas, and contribution function.
type Calculator struct {
	assets  AssetSource
	atlas   *geo.Atlas
	contrib ContributionFunc
	cost    CostPolicy
}

// NewCalculator creates an income Calculator.
//
// Precondition: assets and atlas must be non-nil. contrib may be nil, in which
// case the built-in formula (a tenth of the placement cost) is used.
func NewCalculator(assets AssetSource, atlas *geo.Atlas, cost CostPolicy, contrib ContributionFunc) *Calculator {
	c := &Calculator{assets: assets, atlas: atlas, contrib: contrib, cost: cost}
	if c.contrib == nil {
		c.contrib = c.defaultContribution
	}
	return c
}

// defaultContribution yields a tenth of the region's placement cost per asset
// per turn.
func (c *Calculator) defaultContribution(population int64) (int64, error) {
	return c.cost.CostForPlacement(population) / 10, nil
}

// IncomeForPlayer sums the contribution of every asset the player owns in the
// game. Assets on regions missing from the atlas contribute nothing.
//
// Postcondition: Returns a non-negative total, or a non-nil error if the
// asset source or contribution function fails.
func (c *Calculator) IncomeForPlayer(ctx context.Context, gameID, userID string) (int64, error) {
	assets, err := c.assets.AssetsForPlayer(ctx, gameID, userID)
	if err != nil {
		return 0, fmt.Errorf("fetching assets for %s in %s: %w", userID, gameID, err)
	}

	var total int64
	for _, a := range assets {
		population, ok := c.atlas.Population(a.RegionName)
		if !ok {
			continue
		}
		amount, err := c.contrib(population)
		if err != nil {
			return 0, fmt.Errorf("computing contribution for asset %s: %w", a.ID, err)
		}
		if amount > 0 {
			total += amount
		}
	}
	return total, nil
}

// AssetCounts exposes per-player asset counts for stat snapshots.
//
// Postcondition: Returns a map (may be empty) or a non-nil error.
func (c *Calculator) AssetCounts(ctx context.Context, gameID string) (map[string]int, error) {
	counts, err := c.assets.AssetCounts(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("counting assets in %s: %w", gameID, err)
	}
	return counts, nil
}
