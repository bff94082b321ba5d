// Package store holds the active flag snapshot and the sources it is loaded from.
//
// A Source returns the raw flag document (JSON or YAML bytes); parsing belongs
// to the schema package and scheduling to the syncer. Sources that can push
// change notifications also implement Watcher.
package store

import (
	"context"
	"errors"
)

var (
	// ErrSourceEmpty is returned by Fetch when the backend holds no document yet.
	ErrSourceEmpty = errors.New("flag source is empty")

	// ErrOlderSnapshot is returned by Snapshot.Replace when the candidate
	// is older than the snapshot currently served.
	ErrOlderSnapshot = errors.New("snapshot is older than the active one")
)

// Source supplies the raw flag document.
type Source interface {
	// Name identifies the backend in logs and metrics ("file", "redis", "postgres").
	Name() string

	// Fetch returns the current document. It honors ctx cancellation.
	Fetch(ctx context.Context) ([]byte, error)
}

// Watcher is implemented by sources that can signal changes.
// Watch blocks until ctx is cancelled or the watch fails, calling notify on every
// change. notify must not block; the syncer coalesces notifications.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}

// Publisher is implemented by sources that can also be written to.
// It is used by tooling and integration tests to seed a backend.
type Publisher interface {
	Publish(ctx context.Context, document []byte) error
}
