// Package protocol defines the JSON event envelope exchanged with clients
// and the payload types for every inbound and outbound event.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names (client → server).
const (
	EventClaimRegion        = "claim-region"
	EventReleaseRegion      = "release-region"
	EventGetOwnedRegions    = "get-owned-regions"
	EventGetAllTakenRegions = "get-all-taken-regions"
	EventAssetPlaced        = "asset-placed"
	EventAssetRemoved       = "asset-removed"
	EventAdvanceTurn        = "advance-turn"
	EventGamePaused         = "game-paused"
	EventGameResumed        = "game-resumed"
	EventGetGameState       = "get-game-state"
)

// Outbound event names (server → client(s)).
const (
	EventRegionsUpdate   = "regions-update"
	EventRegionClaimed   = "region-claimed"
	EventRegionTaken     = "region-taken"
	EventRegionReleased  = "region-released"
	EventRegionAvailable = "region-available"
	EventOwnedRegions    = "owned-regions"
	EventAllTakenRegions = "all-taken-regions"
	EventAssetAdded      = "asset-added"
	EventAssetGone       = "asset-removed"
	EventTurnUpdate      = "turn-update"
	EventTurnError       = "turn-error"
	EventMoneyUpdate     = "money-update"
	EventTimeUpdate      = "time-update"
	EventGameState       = "game-state"
	EventPlayerJoined    = "player-joined"
	EventPlayerLeft      = "player-left"
	EventError           = "error"
)

// RegionRequest is the payload for claim-region and release-region.
type RegionRequest struct {
	RegionName string `json:"regionName"`
}

// RegionClaimed confirms a claim to the originating session.
type RegionClaimed struct {
	RegionName string `json:"regionName"`
}

// RegionTaken informs the rest of the room that a region was claimed.
type RegionTaken struct {
	RegionName string `json:"regionName"`
	UserID     string `json:"userId"`
}

// RegionReleased confirms a release to the originating session.
type RegionReleased struct {
	RegionName string `json:"regionName"`
}

// RegionAvailable informs the rest of the room that a region was released.
type RegionAvailable struct {
	RegionName string `json:"regionName"`
}

// OwnedRegions lists the regions held by the requesting player.
type OwnedRegions struct {
	OwnedRegions []string `json:"ownedRegions"`
}

// RegionsUpdate refreshes the originating session's owned-regions view after
// a claim or release lands.
type RegionsUpdate struct {
	OwnedRegions []string `json:"ownedRegions"`
}

// AllTakenRegions maps region name to owning user for one game.
type AllTakenRegions struct {
	Regions map[string]string `json:"map"`
}

// AssetData describes a placed asset.
type AssetData struct {
	AssetID    string `json:"assetId,omitempty"`
	RegionName string `json:"regionName"`
	Kind       string `json:"kind,omitempty"`
	OwnerID    string `json:"userId,omitempty"`
}

// TurnUpdate announces the new turn pointer to the room.
type TurnUpdate struct {
	TurnNumber         int    `json:"turnNumber"`
	PlayerWhosTurnItIs string `json:"playerWhosTurnItIs"`
}

// TurnError reports a rejected turn action to the originating session only.
type TurnError struct {
	Message string `json:"message"`
}

// MoneyUpdate announces a balance change to the room.
type MoneyUpdate struct {
	UserID         string `json:"userId"`
	NewMoney       int64  `json:"newMoney"`
	IncomeReceived int64  `json:"incomeReceived"`
}

// GamePaused carries the actor for the game-paused broadcast.
type GamePaused struct {
	PausedBy string `json:"pausedBy"`
}

// GameResumed carries the actor for the game-resumed broadcast.
type GameResumed struct {
	ResumedBy string `json:"resumedBy"`
}

// TimeUpdate carries the elapsed play time in whole seconds.
type TimeUpdate struct {
	ElapsedTime int64 `json:"elapsedTime"`
}

// GameState is the targeted snapshot reply for get-game-state and joins.
type GameState struct {
	TurnNumber         int    `json:"turnNumber"`
	PlayerWhosTurnItIs string `json:"playerWhosTurnItIs"`
	IsPaused           bool   `json:"isPaused"`
	ElapsedTime        int64  `json:"elapsedTime"`
}

// Presence carries the subject of player-joined / player-left broadcasts.
type Presence struct {
	UserID string `json:"userId"`
}

// ErrorMessage is the generic targeted error payload.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Encode marshals an envelope with the given event name and payload.
//
// Postcondition: Returns the wire bytes or a non-nil error.
func Encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", event, err)
		}
		raw = b
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshalling %s envelope: %w", event, err)
	}
	return b, nil
}

// Decode unmarshals wire bytes into an envelope.
//
// Postcondition: Returns an envelope with a non-empty Event, or an error.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parsing event envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("event envelope missing event name")
	}
	return env, nil
}
