package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/heimdall-go/internal/validation"
)

var (
	_ Source    = (*RedisSource)(nil)
	_ Watcher   = (*RedisSource)(nil)
	_ Publisher = (*RedisSource)(nil)
)

// RedisSource reads the flag document from a single Redis key and listens for
// change announcements on a Pub/Sub channel.
type RedisSource struct {
	client  *redis.Client
	key     string
	channel string
	logger  *slog.Logger
}

// NewRedisSource creates a Redis-backed source.
func NewRedisSource(logger *slog.Logger, client *redis.Client, key, channel string) *RedisSource {
	validation.AssertNotNil(client, "redis client")
	validation.AssertNotEmpty(key, "redis key")
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{client: client, key: key, channel: channel, logger: logger}
}

// Name implements Source.
func (s *RedisSource) Name() string { return "redis" }

// Fetch implements Source.
func (s *RedisSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: key %q not set", ErrSourceEmpty, s.key)
		}
		return nil, fmt.Errorf("failed to get flag document: %w", err)
	}
	return data, nil
}

// Publish stores document and announces the change.
// SET and PUBLISH run in one MULTI/EXEC so subscribers never fetch before the write lands.
func (s *RedisSource) Publish(ctx context.Context, document []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, document, 0)
		if s.channel != "" {
			pipe.Publish(ctx, s.channel, s.key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish flag document: %w", err)
	}
	return nil
}

// Watch implements Watcher. Without a channel it blocks until ctx is done.
func (s *RedisSource) Watch(ctx context.Context, notify func()) error {
	if s.channel == "" {
		<-ctx.Done()
		return nil
	}

	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Receive the subscription confirmation so failures surface here.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %q: %w", s.channel, err)
	}

	s.logger.Info("subscribed to flag updates", slog.String("channel", s.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.logger.Debug("flag update announced", slog.String("payload", msg.Payload))
			notify()
		}
	}
}
