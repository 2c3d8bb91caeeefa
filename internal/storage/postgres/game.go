package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/game/turn"
)

// ErrGameNotFound is returned when a game lookup yields no results.
var ErrGameNotFound = errors.New("game not found")

// ErrAlreadyInGame is returned when adding a player who is already in the roster.
var ErrAlreadyInGame = errors.New("player already in game")

// GameRepository persists games, rosters, turn state, and settlement records.
// It implements the turn engine's store and the state cache's source.
type GameRepository struct {
	db *pgxpool.Pool
}

// NewGameRepository creates a GameRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// EnsureGame creates the game row if it does not exist.
//
// Precondition: gameID must be non-empty.
// Postcondition: A game row exists for gameID with at least turn 1.
func (r *GameRepository) EnsureGame(ctx context.Context, gameID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO games (id) VALUES ($1)
		 ON CONFLICT (id) DO NOTHING`,
		gameID,
	)
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

// FetchState reads the durable turn pointer, pause flag, and elapsed clock.
//
// Postcondition: Returns (state, true, nil) when the game exists,
// (zero, false, nil) when it does not.
func (r *GameRepository) FetchState(ctx context.Context, gameID string) (state.GameState, bool, error) {
	var st state.GameState
	var current *string
	var elapsedSeconds int64
	err := r.db.QueryRow(ctx,
		`SELECT turn_number, current_player, paused, elapsed_seconds
		 FROM games WHERE id = $1`,
		gameID,
	).Scan(&st.TurnNumber, &current, &st.Paused, &elapsedSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return state.GameState{}, false, nil
		}
		return state.GameState{}, false, fmt.Errorf("querying game state: %w", err)
	}
	if current != nil {
		st.CurrentPlayer = *current
	}
	st.Elapsed = time.Duration(elapsedSeconds) * time.Second
	return st, true, nil
}

// AdvanceTurn moves the turn pointer iff the stored turn number still equals
// expectedTurn. The conditional update is the backstop beneath the per-game
// lock: given concurrent advances, at most one succeeds.
//
// Postcondition: Returns true when the pointer moved.
func (r *GameRepository) AdvanceTurn(ctx context.Context, gameID string, expectedTurn int, nextPlayer string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE games
		 SET turn_number = turn_number + 1, current_player = $3
		 WHERE id = $1 AND turn_number = $2`,
		gameID, expectedTurn, nextPlayer,
	)
	if err != nil {
		return false, fmt.Errorf("advancing turn: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPaused persists the pause flag.
//
// Postcondition: The flag is updated, or ErrGameNotFound.
func (r *GameRepository) SetPaused(ctx context.Context, gameID string, paused bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE games SET paused = $2 WHERE id = $1`,
		gameID, paused,
	)
	if err != nil {
		return fmt.Errorf("updating pause flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

// SetElapsed persists the accumulated unpaused play time.
//
// Precondition: The elapsed-time ticker is the single caller.
// Postcondition: The clock is updated, or ErrGameNotFound.
func (r *GameRepository) SetElapsed(ctx context.Context, gameID string, elapsed time.Duration) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE games SET elapsed_seconds = $2 WHERE id = $1`,
		gameID, int64(elapsed/time.Second),
	)
	if err != nil {
		return fmt.Errorf("updating elapsed clock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

// addPlayerAttempts bounds the retry loop on turn-seat contention. Each
// round at least one contending join lands, so the bound is only hit under
// pathological load.
const addPlayerAttempts = 10

// AddPlayer appends the user to the game roster with the next turn sequence
// number and the given starting balance. Concurrent joins of distinct users
// can compute the same seat; the losing insert trips the (game_id, turn_seq)
// unique constraint and is retried with a fresh seat number.
//
// Precondition: The game and user rows must exist.
// Postcondition: The player is in the roster, or ErrAlreadyInGame.
func (r *GameRepository) AddPlayer(ctx context.Context, gameID, userID string, startingMoney int64) error {
	for attempt := 0; attempt < addPlayerAttempts; attempt++ {
		_, err := r.db.Exec(ctx,
			`INSERT INTO game_players (game_id, user_id, turn_seq, money)
			 SELECT $1, $2, COALESCE(MAX(turn_seq), 0) + 1, $3
			 FROM game_players WHERE game_id = $1`,
			gameID, userID, startingMoney,
		)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "game_players_pkey":
				return ErrAlreadyInGame
			case "game_players_game_id_turn_seq_key":
				continue
			}
		}
		return fmt.Errorf("inserting game player: %w", err)
	}
	return fmt.Errorf("inserting game player %s in %s: turn seat still contended after %d attempts", userID, gameID, addPlayerAttempts)
}

// InGame reports whether the user is in the game roster.
func (r *GameRepository) InGame(ctx context.Context, gameID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM game_players WHERE game_id = $1 AND user_id = $2
		 )`,
		gameID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying roster membership: %w", err)
	}
	return exists, nil
}

// PlayersWithMoney returns the roster in turn order with current balances.
//
// Postcondition: Returns a slice ordered by turn sequence (may be empty).
func (r *GameRepository) PlayersWithMoney(ctx context.Context, gameID string) ([]turn.Player, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, money, turn_seq
		 FROM game_players WHERE game_id = $1
		 ORDER BY turn_seq`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying roster: %w", err)
	}
	defer rows.Close()

	var players []turn.Player
	for rows.Next() {
		var p turn.Player
		if err := rows.Scan(&p.UserID, &p.Money, &p.Seq); err != nil {
			return nil, fmt.Errorf("scanning roster row: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roster rows: %w", err)
	}
	return players, nil
}

// PlayerMoney returns the player's current balance.
//
// Postcondition: Returns the balance, or ErrUserNotFound when the player is
// not in the roster.
func (r *GameRepository) PlayerMoney(ctx context.Context, gameID, userID string) (int64, error) {
	var money int64
	err := r.db.QueryRow(ctx,
		`SELECT money FROM game_players WHERE game_id = $1 AND user_id = $2`,
		gameID, userID,
	).Scan(&money)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("querying player money: %w", err)
	}
	return money, nil
}

// UpdateMoney sets the player's balance.
//
// Postcondition: The balance is updated, or ErrUserNotFound.
func (r *GameRepository) UpdateMoney(ctx context.Context, gameID, userID string, money int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE game_players SET money = $3 WHERE game_id = $1 AND user_id = $2`,
		gameID, userID, money,
	)
	if err != nil {
		return fmt.Errorf("updating player money: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordIncome appends one settlement ledger row.
func (r *GameRepository) RecordIncome(ctx context.Context, gameID, userID string, turnNumber int, amount int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO income_records (game_id, user_id, turn_number, amount)
		 VALUES ($1, $2, $3, $4)`,
		gameID, userID, turnNumber, amount,
	)
	if err != nil {
		return fmt.Errorf("inserting income record: %w", err)
	}
	return nil
}

// RecordSnapshot appends one player's statistics row for a turn: the income
// credited at the boundary, the balance entering the turn, and the asset
// count at that instant.
//
// Postcondition: One row exists per (gameID, userID, turnNumber).
func (r *GameRepository) RecordSnapshot(ctx context.Context, gameID, userID string, turnNumber int, income, money int64, assetCount int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO turn_stats (game_id, user_id, turn_number, income, money, asset_count)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		gameID, userID, turnNumber, income, money, assetCount,
	)
	if err != nil {
		return fmt.Errorf("inserting turn snapshot: %w", err)
	}
	return nil
}
