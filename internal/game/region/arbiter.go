// Package region arbitrates exclusive ownership of map regions. A region in
// a game has at most one owner at any time, and every claim or release is
// decided against durable state so concurrent requests for the same region
// resolve to exactly one winner.
package region

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/game/geo"
)

var (
	// ErrUnknownRegion indicates the requested region is not in the atlas.
	ErrUnknownRegion = errors.New("unknown region")
	// ErrRegionTaken indicates the region is already owned by another player.
	ErrRegionTaken = errors.New("region already claimed by another player")
	// ErrRegionUnclaimed indicates a release for a region nobody owns.
	ErrRegionUnclaimed = errors.New("region is not claimed")
	// ErrNotOwner indicates a release by a player who does not own the region.
	ErrNotOwner = errors.New("region is owned by another player")
)

// ClaimOutcome reports how a claim request resolved.
type ClaimOutcome int

const (
	// ClaimGranted means the caller now owns the region.
	ClaimGranted ClaimOutcome = iota
	// ClaimAlreadyOwned means the caller already owned the region; the
	// request is an idempotent no-op.
	ClaimAlreadyOwned
)

// Store persists region ownership. ClaimIfAvailable must be atomic: given
// concurrent calls for the same (gameID, region), exactly one returns true.
type Store interface {
	// ClaimIfAvailable records userID as owner iff the region has no owner.
	// Returns true when the claim was recorded.
	ClaimIfAvailable(ctx context.Context, gameID, region, userID string) (bool, error)
	// ReleaseIfOwner removes the claim iff userID is the current owner.
	// Returns true when a claim was removed.
	ReleaseIfOwner(ctx context.Context, gameID, region, userID string) (bool, error)
	// Owner returns the current owner of the region, if any.
	Owner(ctx context.Context, gameID, region string) (string, bool, error)
	// AllTaken returns region name → owner for every claimed region in the game.
	AllTaken(ctx context.Context, gameID string) (map[string]string, error)
	// OwnedBy returns the regions owned by userID in the game.
	OwnedBy(ctx context.Context, gameID, userID string) ([]string, error)
}

// ActivityRecorder marks a user as recently active. Recording is best-effort.
type ActivityRecorder interface {
	TouchActivity(ctx context.Context, userID string) error
}

// Arbiter decides claim and release requests against the atlas and the
// ownership store.
type Arbiter struct {
	store    Store
	atlas    *geo.Atlas
	activity ActivityRecorder
	logger   *zap.Logger
}

// NewArbiter creates an Arbiter.
//
// Precondition: store and logger must be non-nil; activity may be nil to
// disable activity tracking.
func NewArbiter(store Store, atlas *geo.Atlas, activity ActivityRecorder, logger *zap.Logger) *Arbiter {
	return &Arbiter{
		store:    store,
		atlas:    atlas,
		activity: activity,
		logger:   logger,
	}
}

// Claim attempts to take the region for userID.
//
// Precondition: The caller must hold the region lock for (gameID, region) so
// the broadcast that follows a grant is ordered with the claim itself.
// Postcondition: Returns ClaimGranted if the caller now owns the region,
// ClaimAlreadyOwned if it already did, ErrUnknownRegion for a region not in
// the atlas, or ErrRegionTaken if another player owns it.
func (a *Arbiter) Claim(ctx context.Context, gameID, region, userID string) (ClaimOutcome, error) {
	if _, ok := a.atlas.Lookup(region); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}

	claimed, err := a.store.ClaimIfAvailable(ctx, gameID, region, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to claim region %q: %w", region, err)
	}
	if claimed {
		a.touch(ctx, userID)
		return ClaimGranted, nil
	}

	owner, ok, err := a.store.Owner(ctx, gameID, region)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve owner of region %q: %w", region, err)
	}
	if ok && owner == userID {
		return ClaimAlreadyOwned, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrRegionTaken, region)
}

// Release gives up a region owned by userID.
//
// Precondition: The caller must hold the region lock for (gameID, region).
// Postcondition: Returns nil when the claim was removed, ErrUnknownRegion
// for a region not in the atlas, ErrRegionUnclaimed when nobody owns it, or
// ErrNotOwner when another player owns it.
func (a *Arbiter) Release(ctx context.Context, gameID, region, userID string) error {
	if _, ok := a.atlas.Lookup(region); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}

	released, err := a.store.ReleaseIfOwner(ctx, gameID, region, userID)
	if err != nil {
		return fmt.Errorf("failed to release region %q: %w", region, err)
	}
	if released {
		a.touch(ctx, userID)
		return nil
	}

	_, ok, err := a.store.Owner(ctx, gameID, region)
	if err != nil {
		return fmt.Errorf("failed to resolve owner of region %q: %w", region, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrRegionUnclaimed, region)
	}
	return fmt.Errorf("%w: %q", ErrNotOwner, region)
}

// Owned returns every region userID owns in the game.
func (a *Arbiter) Owned(ctx context.Context, gameID, userID string) ([]string, error) {
	regions, err := a.store.OwnedBy(ctx, gameID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned regions: %w", err)
	}
	return regions, nil
}

// Owner returns the current owner of the region, if any.
func (a *Arbiter) Owner(ctx context.Context, gameID, region string) (string, bool, error) {
	owner, ok, err := a.store.Owner(ctx, gameID, region)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve owner of region %q: %w", region, err)
	}
	return owner, ok, nil
}

// AllTaken returns region name → owner for every claimed region in the game.
func (a *Arbiter) AllTaken(ctx context.Context, gameID string) (map[string]string, error) {
	taken, err := a.store.AllTaken(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list taken regions: %w", err)
	}
	return taken, nil
}

func (a *Arbiter) touch(ctx context.Context, userID string) {
	if a.activity == nil {
		return
	}
	if err := a.activity.TouchActivity(ctx, userID); err != nil {
		a.logger.Warn("failed to record user activity",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
