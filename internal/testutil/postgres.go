// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/turf/internal/config"
	"github.com/cory-johannsen/turf/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: The full game schema exists in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS games (
			id              TEXT PRIMARY KEY,
			turn_number     INTEGER NOT NULL DEFAULT 1 CHECK (turn_number >= 1),
			current_player  TEXT REFERENCES users(id),
			paused          BOOLEAN NOT NULL DEFAULT FALSE,
			elapsed_seconds BIGINT NOT NULL DEFAULT 0 CHECK (elapsed_seconds >= 0),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS game_players (
			game_id   TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL REFERENCES users(id),
			turn_seq  INTEGER NOT NULL CHECK (turn_seq >= 1),
			money     BIGINT NOT NULL DEFAULT 0,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (game_id, user_id),
			UNIQUE (game_id, turn_seq)
		);
		CREATE TABLE IF NOT EXISTS region_claims (
			game_id    TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			region     TEXT NOT NULL,
			user_id    TEXT NOT NULL REFERENCES users(id),
			claimed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (game_id, region)
		);
		CREATE INDEX IF NOT EXISTS region_claims_owner_idx ON region_claims (game_id, user_id);
		CREATE TABLE IF NOT EXISTS assets (
			id        TEXT PRIMARY KEY,
			game_id   TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL REFERENCES users(id),
			region    TEXT NOT NULL,
			kind      TEXT NOT NULL DEFAULT '',
			placed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS assets_owner_idx ON assets (game_id, user_id);
		CREATE TABLE IF NOT EXISTS income_records (
			id          BIGSERIAL PRIMARY KEY,
			game_id     TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			user_id     TEXT NOT NULL REFERENCES users(id),
			turn_number INTEGER NOT NULL,
			amount      BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS turn_stats (
			id          BIGSERIAL PRIMARY KEY,
			game_id     TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			user_id     TEXT NOT NULL REFERENCES users(id),
			turn_number INTEGER NOT NULL,
			income      BIGINT NOT NULL DEFAULT 0,
			money       BIGINT NOT NULL DEFAULT 0,
			asset_count INTEGER NOT NULL DEFAULT 0,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (game_id, user_id, turn_number)
		);
		CREATE INDEX IF NOT EXISTS turn_stats_player_idx ON turn_stats (game_id, user_id);
	`
	if _, err := pc.RawPool.Exec(ctx, schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	t.Logf("schema applied [%s]", time.Since(start))
}

// NewPool starts a disposable database with the schema applied and returns
// its raw connection pool. The container is torn down with the test.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc.RawPool
}
