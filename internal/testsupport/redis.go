package testsupport

import (
	"context"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/database"
)

const (
	redisImage = "redis:7-alpine"

	// Key and channel the redis snapshot source uses by default.
	RedisSnapshotKey     = "heimdall:flags"
	RedisSnapshotChannel = "heimdall:flags:updates"
)

// RedisContainer is a throwaway Redis server with an agent client attached.
type RedisContainer struct {
	Container testcontainers.Container
	Client    *goredis.Client
	Config    *config.RedisConfig
}

// StartRedisContainer starts Redis and connects through database.NewRedisClient,
// so the startup ping path runs exactly as in the agent.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := redis.Run(ctx, redisImage)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	cfg, err := redisConfigFor(ctx, ctr)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, err
	}

	client, err := database.NewRedisClient(ctx, nil, cfg)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{Container: ctr, Client: client, Config: cfg}, nil
}

func redisConfigFor(ctx context.Context, ctr *redis.RedisContainer) (*config.RedisConfig, error) {
	endpoint, err := ctr.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("unexpected redis endpoint %q: %w", endpoint, err)
	}

	return &config.RedisConfig{
		Host:           host,
		Port:           port,
		PoolSize:       4,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		PoolTimeout:    4 * time.Second,
		PingMaxRetries: 5,
		PingBackoff:    500 * time.Millisecond,
	}, nil
}

// Reset drops every key so scenarios sharing the container start empty.
func (c *RedisContainer) Reset(ctx context.Context) error {
	return c.Client.FlushDB(ctx).Err()
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}
