package gameserver

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/game/economy"
	"github.com/cory-johannsen/turf/internal/game/geo"
	"github.com/cory-johannsen/turf/internal/game/region"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/protocol"
)

// AssetHandler handles asset-placed and asset-removed. Placement debits the
// population-scaled cost from the player's balance; both the balance change
// and the money mutation run inside the game's keyed lock.
type AssetHandler struct {
	assets AssetStore
	games  GameStore
	owners *region.Arbiter
	atlas  *geo.Atlas
	cost   economy.CostPolicy
	locks  *state.KeyedMutex
	router *broadcast.Router
	logger *zap.Logger
}

// NewAssetHandler creates an AssetHandler with the given dependencies.
//
// Precondition: all dependencies must be non-nil.
func NewAssetHandler(assets AssetStore, games GameStore, owners *region.Arbiter, atlas *geo.Atlas, cost economy.CostPolicy, locks *state.KeyedMutex, router *broadcast.Router, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		games:  games,
		owners: owners,
		atlas:  atlas,
		cost:   cost,
		locks:  locks,
		router: router,
		logger: logger,
	}
}

// Place processes an asset-placed request: the region must exist and be owned
// by the requester, and the placement cost must not exceed their balance. On
// success the room receives asset-added followed by the payer's money-update.
func (h *AssetHandler) Place(ctx context.Context, sess *session.Session, data json.RawMessage) {
	var req protocol.AssetData
	if err := json.Unmarshal(data, &req); err != nil || req.RegionName == "" {
		h.router.Error(sess.ID, "asset-placed requires a regionName")
		return
	}

	population, ok := h.atlas.Population(req.RegionName)
	if !ok {
		h.router.Error(sess.ID, fmt.Sprintf("unknown region %q", req.RegionName))
		return
	}

	unlock := h.locks.Lock(state.GameKey(sess.GameID))
	defer unlock()

	owner, claimed, err := h.owners.Owner(ctx, sess.GameID, req.RegionName)
	if err != nil {
		h.logger.Error("failed to check region owner", zap.String("session_id", sess.ID), zap.Error(err))
		h.router.Error(sess.ID, "could not place asset")
		return
	}
	if !claimed || owner != sess.UserID {
		h.router.Error(sess.ID, fmt.Sprintf("you do not own region %q", req.RegionName))
		return
	}

	cost := h.cost.CostForPlacement(population)
	money, err := h.games.PlayerMoney(ctx, sess.GameID, sess.UserID)
	if err != nil {
		h.logger.Error("failed to read balance", zap.String("session_id", sess.ID), zap.Error(err))
		h.router.Error(sess.ID, "could not place asset")
		return
	}
	if money < cost {
		h.router.Error(sess.ID, fmt.Sprintf("placement costs %d, you have %d", cost, money))
		return
	}

	newMoney := money - cost
	if err := h.games.UpdateMoney(ctx, sess.GameID, sess.UserID, newMoney); err != nil {
		h.logger.Error("failed to debit placement cost", zap.String("session_id", sess.ID), zap.Error(err))
		h.router.Error(sess.ID, "could not place asset")
		return
	}

	asset, err := h.assets.Place(ctx, sess.GameID, sess.UserID, req.RegionName, req.Kind)
	if err != nil {
		// The debit landed but the asset did not; give the money back.
		h.logger.Error("failed to store asset, refunding",
			zap.String("session_id", sess.ID),
			zap.Int64("cost", cost),
			zap.Error(err))
		if err := h.games.UpdateMoney(ctx, sess.GameID, sess.UserID, money); err != nil {
			h.logger.Error("failed to refund placement cost",
				zap.String("session_id", sess.ID),
				zap.Int64("cost", cost),
				zap.Error(err))
		}
		h.router.Error(sess.ID, "could not place asset")
		return
	}

	err = h.router.ToGame(sess.GameID, protocol.EventAssetAdded, protocol.AssetData{
		AssetID:    asset.ID,
		RegionName: asset.RegionName,
		Kind:       asset.Kind,
		OwnerID:    asset.OwnerID,
	})
	if err != nil {
		h.logger.Warn("failed to announce asset", zap.String("game_id", sess.GameID), zap.Error(err))
	}
	err = h.router.ToGame(sess.GameID, protocol.EventMoneyUpdate, protocol.MoneyUpdate{
		UserID:   sess.UserID,
		NewMoney: newMoney,
	})
	if err != nil {
		h.logger.Warn("failed to announce debit", zap.String("game_id", sess.GameID), zap.Error(err))
	}
}

// Remove processes an asset-removed request. Only the asset's owner may
// remove it; the room receives asset-removed on success. The placement cost
// is not refunded.
func (h *AssetHandler) Remove(ctx context.Context, sess *session.Session, data json.RawMessage) {
	var req protocol.AssetData
	if err := json.Unmarshal(data, &req); err != nil || req.AssetID == "" {
		h.router.Error(sess.ID, "asset-removed requires an assetId")
		return
	}

	unlock := h.locks.Lock(state.GameKey(sess.GameID))
	defer unlock()

	if err := h.assets.Remove(ctx, sess.GameID, sess.UserID, req.AssetID); err != nil {
		h.logger.Debug("asset removal rejected",
			zap.String("session_id", sess.ID),
			zap.String("asset_id", req.AssetID),
			zap.Error(err))
		h.router.Error(sess.ID, fmt.Sprintf("no asset %q to remove", req.AssetID))
		return
	}

	err := h.router.ToGame(sess.GameID, protocol.EventAssetGone, protocol.AssetData{
		AssetID: req.AssetID,
		OwnerID: sess.UserID,
	})
	if err != nil {
		h.logger.Warn("failed to announce asset removal", zap.String("game_id", sess.GameID), zap.Error(err))
	}
}
