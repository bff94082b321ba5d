package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/heimdall-go/internal/validation"
)

var (
	_ Source    = (*PostgresSource)(nil)
	_ Watcher   = (*PostgresSource)(nil)
	_ Publisher = (*PostgresSource)(nil)
)

// NotifyChannel is the LISTEN/NOTIFY channel raised by the flag_snapshots trigger.
const NotifyChannel = "flag_snapshots"

// PostgresSource reads the newest row of the flag_snapshots table.
type PostgresSource struct {
	db           *pgxpool.Pool
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewPostgresSource creates a source backed by the given connection pool.
// A zero queryTimeout leaves queries bound only by the caller's context.
func NewPostgresSource(logger *slog.Logger, db *pgxpool.Pool, queryTimeout time.Duration) *PostgresSource {
	validation.AssertNotNil(db, "database pool")
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{db: db, queryTimeout: queryTimeout, logger: logger}
}

// Name implements Source.
func (s *PostgresSource) Name() string { return "postgres" }

// Fetch implements Source.
func (s *PostgresSource) Fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT document
		FROM flag_snapshots
		ORDER BY id DESC
		LIMIT 1
	`

	var document []byte
	if err := s.db.QueryRow(ctx, query).Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no rows in flag_snapshots", ErrSourceEmpty)
		}
		return nil, fmt.Errorf("failed to fetch flag snapshot: %w", err)
	}
	return document, nil
}

// Publish appends document as the newest snapshot. Publishing a document
// identical to the newest one is a no-op.
func (s *PostgresSource) Publish(ctx context.Context, document []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sum := sha256.Sum256(document)
	checksum := hex.EncodeToString(sum[:])

	query := `
		INSERT INTO flag_snapshots (document, checksum)
		SELECT $1, $2::text
		WHERE NOT EXISTS (
			SELECT 1 FROM (
				SELECT checksum FROM flag_snapshots ORDER BY id DESC LIMIT 1
			) latest
			WHERE latest.checksum = $2::text
		)
	`

	tag, err := s.db.Exec(ctx, query, document, checksum)
	if err != nil {
		return fmt.Errorf("failed to insert flag snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("flag snapshot unchanged, skipping insert", slog.String("checksum", checksum))
	}
	return nil
}

// Watch implements Watcher using LISTEN on a dedicated pooled connection.
func (s *PostgresSource) Watch(ctx context.Context, notify func()) error {
	pooled, err := s.db.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	// LISTEN is session state: take the connection out of the pool for good.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to listen on %q: %w", NotifyChannel, err)
	}

	s.logger.Info("listening for flag snapshots", slog.String("channel", NotifyChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listen on %q failed: %w", NotifyChannel, err)
		}
		s.logger.Debug("flag snapshot announced", slog.String("payload", n.Payload))
		notify()
	}
}

func (s *PostgresSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}
