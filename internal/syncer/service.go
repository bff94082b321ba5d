// Package syncer implements the background worker that keeps the active flag
// snapshot in step with its source.
package syncer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/heimdall-go/internal/observability"
	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
	"github.com/rafaeljc/heimdall-go/internal/schema"
	"github.com/rafaeljc/heimdall-go/internal/store"
)

// Refresh outcomes, used as the "status" metric label.
const (
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Sink receives every newly parsed snapshot.
// Implementations swap the snapshot and invalidate caches synchronously.
// client.Client satisfies it.
type Sink interface {
	Refresh(set *ruleengine.FlagSet) error
}

// Config holds the configuration for the Syncer service.
type Config struct {
	// Interval is the duration between sync cycles (polling).
	Interval time.Duration

	// Format of the documents produced by the source.
	Format schema.Format
}

// Service orchestrates the synchronization process.
type Service struct {
	logger *slog.Logger
	config Config
	source store.Source
	sink   Sink

	// Only touched from the Run goroutine (or a direct Sync call before Run).
	lastSum       [sha256.Size]byte
	hasSum        bool
	lastUpdatedAt time.Time
}

// New creates a new Syncer service.
func New(logger *slog.Logger, cfg Config, source store.Source, sink Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if source == nil {
		panic("syncer: flag source cannot be nil")
	}
	if sink == nil {
		panic("syncer: sink cannot be nil")
	}

	if cfg.Interval < time.Second {
		cfg.Interval = 30 * time.Second // Safe default
	}
	if cfg.Format == "" {
		cfg.Format = schema.FormatJSON
	}

	return &Service{
		logger: logger.With(slog.String("source", source.Name())),
		config: cfg,
		source: source,
		sink:   sink,
	}
}

// Run starts the syncer loop. It blocks until the context is cancelled.
// Sources implementing store.Watcher additionally trigger a sync on every change.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting syncer service", slog.String("interval", s.config.Interval.String()))

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Buffered by one: bursts of change events collapse into a single sync.
	changes := make(chan struct{}, 1)
	if w, ok := s.source.(store.Watcher); ok {
		go s.watch(ctx, w, changes)
	}

	// Run once immediately on startup
	if _, err := s.Sync(ctx); err != nil {
		s.logger.Error("initial sync failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("syncer service stopping...")
			return nil
		case <-ticker.C:
		case <-changes:
			s.logger.Debug("source change detected")
		}

		if _, err := s.Sync(ctx); err != nil {
			// We log the error but don't stop the worker.
			// Retry on next tick.
			s.logger.Error("sync cycle failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) watch(ctx context.Context, w store.Watcher, changes chan<- struct{}) {
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	if err := w.Watch(ctx, notify); err != nil {
		// Polling carries on without push notifications.
		s.logger.Warn("source watch stopped", slog.String("error", err.Error()))
	}
}

// Sync performs a single synchronization cycle and reports its status.
// A non-nil error is returned for rejected and failed cycles.
func (s *Service) Sync(ctx context.Context) (string, error) {
	start := time.Now()

	status, err := s.sync(ctx)
	observability.SnapshotRefreshTotal.WithLabelValues(status).Inc()
	if !s.lastUpdatedAt.IsZero() {
		observability.SnapshotAge.Set(time.Since(s.lastUpdatedAt).Seconds())
	}

	if status == StatusUpdated {
		s.logger.Info("sync cycle completed",
			slog.String("status", status),
			slog.Time("updated_at", s.lastUpdatedAt),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return status, err
}

func (s *Service) sync(ctx context.Context) (string, error) {
	// 1. Read from the source
	data, err := s.source.Fetch(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("fetch failed: %w", err)
	}

	// 2. Skip payloads already applied (or already rejected)
	sum := sha256.Sum256(data)
	if s.hasSum && sum == s.lastSum {
		return StatusUnchanged, nil
	}

	// 3. Parse and validate
	doc, err := schema.Parse(data, s.config.Format)
	if err != nil {
		s.remember(sum)
		return StatusRejected, fmt.Errorf("document rejected: %w", err)
	}

	// 4. Hand the snapshot over
	if err := s.sink.Refresh(doc.FlagSet); err != nil {
		if errors.Is(err, store.ErrOlderSnapshot) {
			s.remember(sum)
			return StatusRejected, fmt.Errorf("document rejected: %w", err)
		}
		return StatusFailed, fmt.Errorf("refresh failed: %w", err)
	}

	s.remember(sum)
	s.lastUpdatedAt = doc.UpdatedAt
	return StatusUpdated, nil
}

func (s *Service) remember(sum [sha256.Size]byte) {
	s.lastSum = sum
	s.hasSum = true
}
