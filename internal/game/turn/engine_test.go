package turn

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/game/state"
)

// fakeStore is an in-memory Store that also implements state.Source, so the
// cache under test hydrates from the same durable state the engine mutates.
type fakeStore struct {
	mu         sync.Mutex
	turnNumber int
	current    string
	paused     bool
	players    []Player
	incomeRows []incomeRow
	snapshots  []snapshotRow
	moneyErr   error
}

type incomeRow struct {
	userID string
	turn   int
	amount int64
}

type snapshotRow struct {
	userID     string
	turn       int
	income     int64
	money      int64
	assetCount int
}

func newFakeStore(players ...Player) *fakeStore {
	return &fakeStore{turnNumber: 1, players: players}
}

func (s *fakeStore) FetchState(_ context.Context, _ string) (state.GameState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.GameState{
		TurnNumber:    s.turnNumber,
		CurrentPlayer: s.current,
		Paused:        s.paused,
	}, true, nil
}

func (s *fakeStore) PlayersWithMoney(_ context.Context, _ string) ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Player, len(s.players))
	copy(out, s.players)
	return out, nil
}

func (s *fakeStore) AdvanceTurn(_ context.Context, _ string, expectedTurn int, nextPlayer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnNumber != expectedTurn {
		return false, nil
	}
	s.turnNumber++
	s.current = nextPlayer
	return true, nil
}

func (s *fakeStore) UpdateMoney(_ context.Context, _ string, userID string, money int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.moneyErr != nil {
		return s.moneyErr
	}
	for i := range s.players {
		if s.players[i].UserID == userID {
			s.players[i].Money = money
			return nil
		}
	}
	return fmt.Errorf("player %q not in roster", userID)
}

func (s *fakeStore) RecordIncome(_ context.Context, _ string, userID string, turnNumber int, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomeRows = append(s.incomeRows, incomeRow{userID: userID, turn: turnNumber, amount: amount})
	return nil
}

func (s *fakeStore) RecordSnapshot(_ context.Context, _ string, userID string, turnNumber int, income, money int64, assetCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshotRow{
		userID:     userID,
		turn:       turnNumber,
		income:     income,
		money:      money,
		assetCount: assetCount,
	})
	return nil
}

func (s *fakeStore) SetPaused(_ context.Context, _ string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	return nil
}

// fixedIncome pays a flat amount per player per turn and reports fixed
// asset counts.
type fixedIncome struct {
	amounts map[string]int64
	counts  map[string]int
	err     error
}

func (f *fixedIncome) IncomeForPlayer(_ context.Context, _ string, userID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.amounts[userID], nil
}

func (f *fixedIncome) AssetCounts(_ context.Context, _ string) (map[string]int, error) {
	return f.counts, nil
}

func newTestEngine(store *fakeStore, income IncomeCalculator) (*Engine, *state.Cache) {
	cache := state.NewCache(store)
	return NewEngine(store, income, cache, zap.NewNop()), cache
}

func TestAdvanceRotatesAndSettlesNextPlayer(t *testing.T) {
	store := newFakeStore(
		Player{UserID: "alice", Money: 100, Seq: 1},
		Player{UserID: "bob", Money: 200, Seq: 2},
	)
	store.current = "alice"
	income := &fixedIncome{
		amounts: map[string]int64{"alice": 10, "bob": 25},
		counts:  map[string]int{"alice": 1, "bob": 3},
	}
	engine, cache := newTestEngine(store, income)
	ctx := context.Background()

	result, err := engine.Advance(ctx, "default", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TurnNumber)
	assert.Equal(t, "bob", result.NextPlayer)

	// Only the incoming holder is credited.
	require.Len(t, result.Settlements, 1)
	assert.Equal(t, Settlement{UserID: "bob", Income: 25, NewMoney: 225}, result.Settlements[0])
	assert.Equal(t, int64(100), store.players[0].Money)

	// Income was recorded for the ending turn, not the new one.
	require.Len(t, store.incomeRows, 1)
	assert.Equal(t, incomeRow{userID: "bob", turn: 1, amount: 25}, store.incomeRows[0])

	// The cache and durable store agree.
	st, err := cache.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, st.TurnNumber)
	assert.Equal(t, "bob", st.CurrentPlayer)
	assert.Equal(t, 2, store.turnNumber)

	// One snapshot per roster member at the new turn number.
	assert.Equal(t, []snapshotRow{
		{userID: "alice", turn: 2, income: 0, money: 100, assetCount: 1},
		{userID: "bob", turn: 2, income: 25, money: 225, assetCount: 3},
	}, store.snapshots)
}

func TestAdvanceWrapsToFirstPlayer(t *testing.T) {
	store := newFakeStore(
		Player{UserID: "alice", Money: 0, Seq: 1},
		Player{UserID: "bob", Money: 0, Seq: 2},
	)
	store.current = "bob"
	engine, _ := newTestEngine(store, &fixedIncome{})

	result, err := engine.Advance(context.Background(), "default", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.NextPlayer)
}

func TestAdvanceNotYourTurn(t *testing.T) {
	store := newFakeStore(
		Player{UserID: "alice", Money: 0, Seq: 1},
		Player{UserID: "bob", Money: 0, Seq: 2},
	)
	store.current = "alice"
	engine, _ := newTestEngine(store, &fixedIncome{})

	_, err := engine.Advance(context.Background(), "default", "bob")
	require.ErrorIs(t, err, ErrNotYourTurn)

	// The rejected advance left the turn pointer alone.
	assert.Equal(t, 1, store.turnNumber)
	assert.Empty(t, store.incomeRows)
}

func TestAdvanceNoPlayers(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(store, &fixedIncome{})

	_, err := engine.Advance(context.Background(), "default", "alice")
	require.ErrorIs(t, err, ErrNoPlayers)
}

func TestAdvanceFirstTurnTakenByActor(t *testing.T) {
	// A fresh game has no holder: the first roster member to act takes and
	// ends the first turn.
	store := newFakeStore(
		Player{UserID: "alice", Money: 0, Seq: 1},
		Player{UserID: "bob", Money: 0, Seq: 2},
	)
	engine, _ := newTestEngine(store, &fixedIncome{})

	result, err := engine.Advance(context.Background(), "default", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.NextPlayer)
}

func TestAdvanceFirstTurnRequiresRosterMembership(t *testing.T) {
	store := newFakeStore(Player{UserID: "alice", Money: 0, Seq: 1})
	engine, _ := newTestEngine(store, &fixedIncome{})

	_, err := engine.Advance(context.Background(), "default", "mallory")
	require.ErrorIs(t, err, ErrNotInGame)
}

func TestAdvanceHolderLeftRoster(t *testing.T) {
	// The recorded holder departed; the turn restarts at the first roster
	// entry regardless of which member noticed.
	store := newFakeStore(
		Player{UserID: "alice", Money: 0, Seq: 1},
		Player{UserID: "bob", Money: 0, Seq: 2},
	)
	store.current = "departed"
	engine, _ := newTestEngine(store, &fixedIncome{})

	result, err := engine.Advance(context.Background(), "default", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.NextPlayer)
}

func TestAdvanceHolderLeftRosterRequiresMembership(t *testing.T) {
	store := newFakeStore(Player{UserID: "alice", Money: 0, Seq: 1})
	store.current = "departed"
	engine, _ := newTestEngine(store, &fixedIncome{})

	_, err := engine.Advance(context.Background(), "default", "mallory")
	require.ErrorIs(t, err, ErrNotInGame)
}

func TestAdvancePausedGame(t *testing.T) {
	store := newFakeStore(Player{UserID: "alice", Money: 0, Seq: 1})
	store.current = "alice"
	store.paused = true
	engine, _ := newTestEngine(store, &fixedIncome{})

	_, err := engine.Advance(context.Background(), "default", "alice")
	require.ErrorIs(t, err, ErrGamePaused)
}

func TestAdvanceConflictEvictsCache(t *testing.T) {
	store := newFakeStore(
		Player{UserID: "alice", Money: 100, Seq: 1},
		Player{UserID: "bob", Money: 200, Seq: 2},
	)
	store.current = "alice"
	income := &fixedIncome{amounts: map[string]int64{"alice": 10, "bob": 25}}
	engine, cache := newTestEngine(store, income)
	ctx := context.Background()

	// Warm the cache, then move the durable pointer underneath it.
	_, err := cache.Get(ctx, "default")
	require.NoError(t, err)
	store.mu.Lock()
	store.turnNumber = 5
	store.current = "bob"
	store.mu.Unlock()

	_, err = engine.Advance(ctx, "default", "alice")
	require.ErrorIs(t, err, ErrTurnConflict)

	// The failed advance credited nothing and wrote no ledger rows.
	assert.Equal(t, int64(100), store.players[0].Money)
	assert.Equal(t, int64(200), store.players[1].Money)
	assert.Empty(t, store.incomeRows)
	assert.Empty(t, store.snapshots)

	// The stale entry was evicted; the next read sees durable truth.
	st, err := cache.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 5, st.TurnNumber)
	assert.Equal(t, "bob", st.CurrentPlayer)
}

func TestAdvanceSkipsFailedSettlement(t *testing.T) {
	store := newFakeStore(
		Player{UserID: "alice", Money: 100, Seq: 1},
		Player{UserID: "bob", Money: 200, Seq: 2},
	)
	store.current = "alice"
	income := &fixedIncome{amounts: map[string]int64{"alice": 10, "bob": 25}}
	engine, _ := newTestEngine(store, income)
	store.moneyErr = fmt.Errorf("connection reset")

	result, err := engine.Advance(context.Background(), "default", "alice")
	require.NoError(t, err)
	assert.Empty(t, result.Settlements)
	// The turn still advanced.
	assert.Equal(t, 2, result.TurnNumber)
}

func TestPauseResumeIdempotent(t *testing.T) {
	store := newFakeStore(Player{UserID: "alice", Money: 0, Seq: 1})
	engine, cache := newTestEngine(store, &fixedIncome{})
	ctx := context.Background()

	changed, err := engine.Pause(ctx, "default")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, store.paused)

	changed, err = engine.Pause(ctx, "default")
	require.NoError(t, err)
	assert.False(t, changed)

	st, err := cache.Get(ctx, "default")
	require.NoError(t, err)
	assert.True(t, st.Paused)

	changed, err = engine.Resume(ctx, "default")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, store.paused)

	changed, err = engine.Resume(ctx, "default")
	require.NoError(t, err)
	assert.False(t, changed)
}
