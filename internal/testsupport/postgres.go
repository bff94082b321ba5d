// Package testsupport holds helpers shared by tests: ephemeral PostgreSQL and
// Redis containers for the integration suites, and Prometheus assertions for
// metric tests.
package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/database"
)

const (
	postgresImage    = "postgres:15-alpine"
	postgresDatabase = "heimdall_agent_test"
	postgresUser     = "agent"
	postgresPassword = "agent-test-password"
)

// PostgresContainer is a migrated PostgreSQL instance plus a pool built by
// the same factory the agent uses.
type PostgresContainer struct {
	Container        testcontainers.Container
	DB               *pgxpool.Pool
	ConnectionString string
	Config           *config.DatabaseConfig
}

// Terminate closes the pool and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// SnapshotCount returns the number of rows in flag_snapshots.
func (c *PostgresContainer) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	err := c.DB.QueryRow(ctx, `SELECT count(*) FROM flag_snapshots`).Scan(&n)
	return n, err
}

// StartPostgresContainer starts PostgreSQL and applies every *.sql file in
// migrationsDir in lexical order (001_..., 002_...).
func StartPostgresContainer(ctx context.Context, migrationsDir string) (*PostgresContainer, error) {
	migrations, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	if len(migrations) == 0 {
		return nil, fmt.Errorf("no migration files found in %s", migrationsDir)
	}
	sort.Strings(migrations)

	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(postgresDatabase),
		postgres.WithUsername(postgresUser),
		postgres.WithPassword(postgresPassword),
		postgres.WithInitScripts(migrations...),
		testcontainers.WithWaitStrategy(
			// The server restarts once after running init scripts.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	cfg := &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		QueryTimeout:    3 * time.Second,
	}
	pool, err := database.NewPostgresPool(ctx, nil, cfg)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	return &PostgresContainer{
		Container:        ctr,
		DB:               pool,
		ConnectionString: connStr,
		Config:           cfg,
	}, nil
}
