package gameserver

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/game/region"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/protocol"
)

// RegionHandler handles claim-region, release-region, and the region listing
// events. Each claim or release runs inside the region's keyed lock, so the
// broadcasts that announce an outcome leave in the same order the outcomes
// were decided.
type RegionHandler struct {
	arbiter *region.Arbiter
	locks   *state.KeyedMutex
	router  *broadcast.Router
	logger  *zap.Logger
}

// NewRegionHandler creates a RegionHandler with the given dependencies.
//
// Precondition: all dependencies must be non-nil.
func NewRegionHandler(arbiter *region.Arbiter, locks *state.KeyedMutex, router *broadcast.Router, logger *zap.Logger) *RegionHandler {
	return &RegionHandler{
		arbiter: arbiter,
		locks:   locks,
		router:  router,
		logger:  logger,
	}
}

// Claim processes a claim-region request. The claimer gets region-claimed,
// the rest of the room gets region-taken; a losing claimer gets an error.
func (h *RegionHandler) Claim(ctx context.Context, sess *session.Session, data json.RawMessage) {
	var req protocol.RegionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RegionName == "" {
		h.router.Error(sess.ID, "claim-region requires a regionName")
		return
	}

	unlock := h.locks.Lock(state.RegionKey(sess.GameID, req.RegionName))
	defer unlock()

	outcome, err := h.arbiter.Claim(ctx, sess.GameID, req.RegionName, sess.UserID)
	if err != nil {
		h.reject(sess, "claim", req.RegionName, err)
		return
	}

	if err := h.router.ToSession(sess.ID, protocol.EventRegionClaimed, protocol.RegionClaimed{RegionName: req.RegionName}); err != nil {
		h.logger.Warn("failed to confirm claim", zap.String("session_id", sess.ID), zap.Error(err))
	}
	h.pushOwned(ctx, sess)
	if outcome == region.ClaimAlreadyOwned {
		// The room already knows; only the confirmation is resent.
		return
	}
	err = h.router.ToOthers(sess.GameID, sess.ID, protocol.EventRegionTaken, protocol.RegionTaken{
		RegionName: req.RegionName,
		UserID:     sess.UserID,
	})
	if err != nil {
		h.logger.Warn("failed to announce claim", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// Release processes a release-region request. The owner gets region-released,
// the rest of the room gets region-available.
func (h *RegionHandler) Release(ctx context.Context, sess *session.Session, data json.RawMessage) {
	var req protocol.RegionRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RegionName == "" {
		h.router.Error(sess.ID, "release-region requires a regionName")
		return
	}

	unlock := h.locks.Lock(state.RegionKey(sess.GameID, req.RegionName))
	defer unlock()

	if err := h.arbiter.Release(ctx, sess.GameID, req.RegionName, sess.UserID); err != nil {
		h.reject(sess, "release", req.RegionName, err)
		return
	}

	if err := h.router.ToSession(sess.ID, protocol.EventRegionReleased, protocol.RegionReleased{RegionName: req.RegionName}); err != nil {
		h.logger.Warn("failed to confirm release", zap.String("session_id", sess.ID), zap.Error(err))
	}
	h.pushOwned(ctx, sess)
	err := h.router.ToOthers(sess.GameID, sess.ID, protocol.EventRegionAvailable, protocol.RegionAvailable{RegionName: req.RegionName})
	if err != nil {
		h.logger.Warn("failed to announce release", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// pushOwned refreshes the session's owned-regions view after a claim or
// release lands, so the client converges without polling get-owned-regions.
func (h *RegionHandler) pushOwned(ctx context.Context, sess *session.Session) {
	owned, err := h.arbiter.Owned(ctx, sess.GameID, sess.UserID)
	if err != nil {
		h.logger.Warn("failed to refresh owned regions", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	if owned == nil {
		owned = []string{}
	}
	err = h.router.ToSession(sess.ID, protocol.EventRegionsUpdate, protocol.RegionsUpdate{OwnedRegions: owned})
	if err != nil {
		h.logger.Warn("failed to push owned regions", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// Owned answers get-owned-regions with the requester's holdings.
func (h *RegionHandler) Owned(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	owned, err := h.arbiter.Owned(ctx, sess.GameID, sess.UserID)
	if err != nil {
		h.logger.Error("failed to list owned regions", zap.String("session_id", sess.ID), zap.Error(err))
		h.router.Error(sess.ID, "could not list owned regions")
		return
	}
	if owned == nil {
		owned = []string{}
	}
	err = h.router.ToSession(sess.ID, protocol.EventOwnedRegions, protocol.OwnedRegions{OwnedRegions: owned})
	if err != nil {
		h.logger.Warn("failed to send owned regions", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// AllTaken answers get-all-taken-regions with every claim in the game.
func (h *RegionHandler) AllTaken(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	taken, err := h.arbiter.AllTaken(ctx, sess.GameID)
	if err != nil {
		h.logger.Error("failed to list taken regions", zap.String("session_id", sess.ID), zap.Error(err))
		h.router.Error(sess.ID, "could not list taken regions")
		return
	}
	err = h.router.ToSession(sess.ID, protocol.EventAllTakenRegions, protocol.AllTakenRegions{Regions: taken})
	if err != nil {
		h.logger.Warn("failed to send taken regions", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// reject maps arbiter errors to a targeted error event. Expected rejections
// stay at debug; anything else is a storage failure worth an error log.
func (h *RegionHandler) reject(sess *session.Session, op, regionName string, err error) {
	switch {
	case errors.Is(err, region.ErrUnknownRegion),
		errors.Is(err, region.ErrRegionTaken),
		errors.Is(err, region.ErrRegionUnclaimed),
		errors.Is(err, region.ErrNotOwner):
		h.logger.Debug("region request rejected",
			zap.String("op", op),
			zap.String("region", regionName),
			zap.String("user_id", sess.UserID),
			zap.Error(err))
	default:
		h.logger.Error("region request failed",
			zap.String("op", op),
			zap.String("region", regionName),
			zap.String("user_id", sess.UserID),
			zap.Error(err))
	}
	h.router.Error(sess.ID, err.Error())
}
