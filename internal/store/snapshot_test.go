package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
)

func flagSetAt(at time.Time, keys ...string) *ruleengine.FlagSet {
	features := make([]ruleengine.Feature, 0, len(keys))
	for _, k := range keys {
		features = append(features, ruleengine.Feature{Key: k, Enabled: true})
	}
	return ruleengine.NewFlagSet(features, nil, at)
}

func TestSnapshot_Replace(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should be empty before the first replace", func(t *testing.T) {
		var s Snapshot

		assert.Nil(t, s.Load())
		_, ok := s.UpdatedAt()
		assert.False(t, ok)
		_, ok = s.Age(t0)
		assert.False(t, ok)
	})

	t.Run("Should install newer and equal snapshots", func(t *testing.T) {
		var s Snapshot

		require.NoError(t, s.Replace(flagSetAt(t0, "a")))
		require.NoError(t, s.Replace(flagSetAt(t0.Add(time.Minute), "b")))
		require.NoError(t, s.Replace(flagSetAt(t0.Add(time.Minute), "c")))

		_, ok := s.Load().Feature("c")
		assert.True(t, ok)
		at, _ := s.UpdatedAt()
		assert.Equal(t, t0.Add(time.Minute), at)

		age, ok := s.Age(t0.Add(3 * time.Minute))
		require.True(t, ok)
		assert.Equal(t, 2*time.Minute, age)
	})

	t.Run("Should reject an older snapshot and keep the active one", func(t *testing.T) {
		var s Snapshot
		require.NoError(t, s.Replace(flagSetAt(t0, "current")))

		err := s.Replace(flagSetAt(t0.Add(-time.Second), "older"))

		assert.ErrorIs(t, err, ErrOlderSnapshot)
		_, ok := s.Load().Feature("current")
		assert.True(t, ok)
	})

	t.Run("Should reject nil", func(t *testing.T) {
		var s Snapshot
		assert.Error(t, s.Replace(nil))
	})
}

func TestSnapshot_ConcurrentReplaceKeepsNewest(t *testing.T) {
	t.Parallel()

	var s Snapshot
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.Replace(flagSetAt(t0.Add(time.Duration(i) * time.Second)))
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Load().Len()
		}()
	}
	wg.Wait()

	at, ok := s.UpdatedAt()
	require.True(t, ok)
	assert.Equal(t, t0.Add(49*time.Second), at)
}
