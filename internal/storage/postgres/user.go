package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User represents a known player identity.
type User struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// ErrUserNotFound is returned when a user lookup yields no results.
var ErrUserNotFound = errors.New("user not found")

// UserRepository provides user persistence operations.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a UserRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureUser records the user if it is not already known. Reconnects are
// frequent, so the operation is idempotent.
//
// Precondition: userID must be non-empty.
// Postcondition: A user row exists for userID.
func (r *UserRepository) EnsureUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1)
		 ON CONFLICT (id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// TouchActivity updates the user's last-active timestamp.
//
// Precondition: userID must be non-empty.
// Postcondition: The timestamp is updated, or ErrUserNotFound.
func (r *UserRepository) TouchActivity(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET last_active_at = now() WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("touching user activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Get retrieves a user by ID.
//
// Postcondition: Returns the User or ErrUserNotFound.
func (r *UserRepository) Get(ctx context.Context, userID string) (User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, last_active_at FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}
