package gameserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/turf/internal/protocol"
)

func TestClaimRegionFlow(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	bob := h.connect(t, "sess-2", "bob", "default")
	drain(alice)

	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})

	// The claimer is confirmed with a refreshed holdings view, the room is
	// informed.
	events := drain(alice)
	require.Len(t, events, 2)
	assert.Equal(t, protocol.EventRegionClaimed, events[0].Event)
	var claimed protocol.RegionClaimed
	payload(t, events[0], &claimed)
	assert.Equal(t, "suffolk", claimed.RegionName)

	assert.Equal(t, protocol.EventRegionsUpdate, events[1].Event)
	var holdings protocol.RegionsUpdate
	payload(t, events[1], &holdings)
	assert.Equal(t, []string{"suffolk"}, holdings.OwnedRegions)

	events = drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventRegionTaken, events[0].Event)
	var taken protocol.RegionTaken
	payload(t, events[0], &taken)
	assert.Equal(t, "suffolk", taken.RegionName)
	assert.Equal(t, "alice", taken.UserID)
}

func TestClaimRegionTakenByOther(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	bob := h.connect(t, "sess-2", "bob", "default")
	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	drain(alice)
	drain(bob)

	h.send(bob, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})

	events := drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventError, events[0].Event)

	// The standing owner saw nothing.
	assert.Empty(t, drain(alice))
}

func TestClaimRegionIdempotentForOwner(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	bob := h.connect(t, "sess-2", "bob", "default")
	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	drain(alice)
	drain(bob)

	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})

	// The owner is re-confirmed; the room is not re-notified.
	events := drain(alice)
	require.Len(t, events, 2)
	assert.Equal(t, protocol.EventRegionClaimed, events[0].Event)
	assert.Equal(t, protocol.EventRegionsUpdate, events[1].Event)
	assert.Empty(t, drain(bob))
}

func TestClaimUnknownRegionRejected(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")

	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "atlantis"})

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventError, events[0].Event)
}

func TestClaimRegionMissingName(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")

	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{})

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventError, events[0].Event)
}

func TestReleaseRegionFlow(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	bob := h.connect(t, "sess-2", "bob", "default")
	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	drain(alice)
	drain(bob)

	h.send(alice, protocol.EventReleaseRegion, protocol.RegionRequest{RegionName: "suffolk"})

	events := drain(alice)
	require.Len(t, events, 2)
	assert.Equal(t, protocol.EventRegionReleased, events[0].Event)
	assert.Equal(t, protocol.EventRegionsUpdate, events[1].Event)
	var holdings protocol.RegionsUpdate
	payload(t, events[1], &holdings)
	assert.Empty(t, holdings.OwnedRegions)

	events = drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventRegionAvailable, events[0].Event)

	// The region can be claimed again.
	h.send(bob, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	events = drain(bob)
	require.Len(t, events, 2)
	assert.Equal(t, protocol.EventRegionClaimed, events[0].Event)
	assert.Equal(t, protocol.EventRegionsUpdate, events[1].Event)
}

func TestReleaseRegionNotOwner(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	bob := h.connect(t, "sess-2", "bob", "default")
	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	drain(alice)
	drain(bob)

	h.send(bob, protocol.EventReleaseRegion, protocol.RegionRequest{RegionName: "suffolk"})

	events := drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventError, events[0].Event)
}

func TestGetOwnedRegions(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	drain(alice)

	h.send(alice, protocol.EventGetOwnedRegions, nil)

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventOwnedRegions, events[0].Event)
	var owned protocol.OwnedRegions
	payload(t, events[0], &owned)
	assert.Equal(t, []string{"suffolk"}, owned.OwnedRegions)
}

func TestGetOwnedRegionsEmpty(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")

	h.send(alice, protocol.EventGetOwnedRegions, nil)

	events := drain(alice)
	require.Len(t, events, 1)
	var owned protocol.OwnedRegions
	payload(t, events[0], &owned)
	assert.NotNil(t, owned.OwnedRegions)
	assert.Empty(t, owned.OwnedRegions)
}

func TestGetAllTakenRegions(t *testing.T) {
	h := newTestHarness(t)
	alice := h.connect(t, "sess-1", "alice", "default")
	bob := h.connect(t, "sess-2", "bob", "default")
	h.send(alice, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "suffolk"})
	h.send(bob, protocol.EventClaimRegion, protocol.RegionRequest{RegionName: "essex"})
	drain(alice)
	drain(bob)

	h.send(alice, protocol.EventGetAllTakenRegions, nil)

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventAllTakenRegions, events[0].Event)
	var taken protocol.AllTakenRegions
	payload(t, events[0], &taken)
	assert.Equal(t, map[string]string{"suffolk": "alice", "essex": "bob"}, taken.Regions)
}
