package store

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

// Snapshot is the active FlagSet. Readers never observe a partially applied
// refresh: a FlagSet is swapped in wholesale and is never mutated afterwards.
type Snapshot struct {
	current atomic.Pointer[ruleengine.FlagSet]
}

// Load returns the active FlagSet, or nil before the first successful Replace.
func (s *Snapshot) Load() *ruleengine.FlagSet {
	return s.current.Load()
}

// Replace installs set as the active snapshot.
// A set whose UpdatedAt is before the active one is rejected with ErrOlderSnapshot;
// an equal timestamp is accepted so a republished document still applies.
func (s *Snapshot) Replace(set *ruleengine.FlagSet) error {
	if set == nil {
		return fmt.Errorf("snapshot: flag set cannot be nil")
	}

	for {
		old := s.current.Load()
		if old != nil && set.UpdatedAt.Before(old.UpdatedAt) {
			return fmt.Errorf("%w: %s < %s", ErrOlderSnapshot,
				set.UpdatedAt.Format(time.RFC3339), old.UpdatedAt.Format(time.RFC3339))
		}
		if s.current.CompareAndSwap(old, set) {
			return nil
		}
	}
}

// UpdatedAt reports the timestamp of the active snapshot.
func (s *Snapshot) UpdatedAt() (time.Time, bool) {
	set := s.current.Load()
	if set == nil {
		return time.Time{}, false
	}
	return set.UpdatedAt, true
}

// Age returns how long ago the active snapshot was last updated.
func (s *Snapshot) Age(now time.Time) (time.Duration, bool) {
	at, ok := s.UpdatedAt()
	if !ok {
		return 0, false
	}
	return now.Sub(at), true
}
