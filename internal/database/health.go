package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresChecker implements the observability.Checker interface for PostgreSQL.
type PostgresChecker struct {
	pool *pgxpool.Pool
}

// NewPostgresChecker creates a health checker for the given pool.
func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

// Name returns the component name.
func (h *PostgresChecker) Name() string {
	return "postgres"
}

// Check verifies the database connection using Ping.
func (h *PostgresChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return fmt.Errorf("database connection is nil")
	}
	return h.pool.Ping(ctx)
}

// RedisChecker implements the observability.Checker interface for Redis.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a health checker for the given client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns the component name.
func (h *RedisChecker) Name() string {
	return "redis"
}

// Check verifies the Redis connection using Ping.
func (h *RedisChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return h.client.Ping(ctx).Err()
}
