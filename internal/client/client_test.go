package client

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
	"github.com/rafaeljc/heimdall-go/internal/store"
	"github.com/rafaeljc/heimdall-go/internal/testsupport"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// checkoutSet: "beta-users" (plan eq beta) splits green/blue, everyone else gets classic.
func checkoutSet(updatedAt time.Time) *ruleengine.FlagSet {
	return ruleengine.NewFlagSet([]ruleengine.Feature{{
		Key:     "checkout",
		Enabled: true,
		Type:    ruleengine.KindString,
		Rules: []ruleengine.Rule{{
			Name: "beta-users",
			Constraints: []ruleengine.Constraint{
				{ContextField: "plan", Operator: ruleengine.OpEq, Value: ruleengine.StringValue("beta")},
			},
			Allocations: []ruleengine.Allocation{{Variant: "green", Percentage: 50}, {Variant: "blue", Percentage: 50}},
		}},
		DefaultRule: &ruleengine.DefaultRule{
			Name:        "everyone",
			Allocations: []ruleengine.Allocation{{Variant: "classic", Percentage: 100}},
		},
		Variants: []ruleengine.Variant{
			{Key: "green", Value: ruleengine.StringValue("green-button")},
			{Key: "blue", Value: ruleengine.StringValue("blue-button")},
			{Key: "classic", Value: ruleengine.StringValue("classic-button")},
		},
	}}, nil, updatedAt)
}

func newClient(t *testing.T, opts Options) (*Client, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := New(logger, opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, &logs
}

func TestClient_Lifecycle(t *testing.T) {
	t.Parallel()

	c, logs := newClient(t, Options{CacheEnabled: true, CacheCapacity: 100})

	t.Run("Should return the default before any snapshot", func(t *testing.T) {
		c.SetContext(ruleengine.NewContext("alice", nil))

		res := c.StringValue("checkout", "fallback")

		assert.False(t, c.Ready())
		assert.Equal(t, "fallback", res.Value)
		assert.Equal(t, ruleengine.ReasonDefault, res.Reason)
	})

	t.Run("Should evaluate and then serve from cache", func(t *testing.T) {
		require.NoError(t, c.Refresh(checkoutSet(t0)))
		assert.True(t, c.Ready())

		first := c.StringValue("checkout", "fallback")
		second := c.StringValue("checkout", "fallback")

		assert.Equal(t, "classic-button", first.Value)
		assert.Equal(t, ruleengine.ReasonDefaultTargetingMatch, first.Reason)
		assert.Equal(t, "classic-button", second.Value)
		assert.Equal(t, "classic", second.Variant)
		assert.Equal(t, ruleengine.ReasonCached, second.Reason)
	})

	t.Run("Should invalidate on context change", func(t *testing.T) {
		// alice lands in bucket 15 of "beta-users"
		c.SetContext(ruleengine.NewContext("alice", map[string]ruleengine.Value{
			"plan": ruleengine.StringValue("beta"),
		}))

		res := c.StringValue("checkout", "fallback")

		assert.Equal(t, "green-button", res.Value)
		assert.Equal(t, ruleengine.ReasonTargetingMatch, res.Reason)
		assert.Equal(t, "beta-users", res.Metadata[ruleengine.MetaRule])
	})

	t.Run("Should invalidate on refresh", func(t *testing.T) {
		_ = c.StringValue("checkout", "fallback") // cached

		require.NoError(t, c.Refresh(checkoutSet(t0.Add(time.Minute))))
		res := c.StringValue("checkout", "fallback")

		assert.Equal(t, ruleengine.ReasonTargetingMatch, res.Reason)
		assert.Contains(t, logs.String(), "snapshot refreshed")
	})

	t.Run("Should reject an older snapshot", func(t *testing.T) {
		err := c.Refresh(checkoutSet(t0))

		assert.ErrorIs(t, err, store.ErrOlderSnapshot)
		assert.Equal(t, t0.Add(time.Minute), c.Snapshot().UpdatedAt)
	})

	t.Run("Should isolate the context from caller mutations", func(t *testing.T) {
		attrs := map[string]ruleengine.Value{"plan": ruleengine.StringValue("beta")}
		c.SetContext(ruleengine.Context{TargetingKey: "carol", Attributes: attrs})
		attrs["plan"] = ruleengine.StringValue("free")

		plan, _ := c.Context().Attribute("plan")
		s, _ := plan.AsString()
		assert.Equal(t, "beta", s)
	})
}

func TestClient_Stale(t *testing.T) {
	t.Parallel()

	now := t0.Add(10 * time.Minute)
	opts := Options{StaleAfter: 5 * time.Minute, Now: func() time.Time { return now }}

	t.Run("Should downgrade successful results from an outdated snapshot", func(t *testing.T) {
		c, _ := newClient(t, opts)
		c.SetContext(ruleengine.NewContext("alice", nil))
		require.NoError(t, c.Refresh(checkoutSet(t0)))

		res := c.StringValue("checkout", "fallback")

		assert.Equal(t, "classic-button", res.Value)
		assert.Equal(t, ruleengine.ReasonStale, res.Reason)
		assert.Equal(t, string(ruleengine.ReasonDefaultTargetingMatch), res.Metadata[ruleengine.MetaResolvedReason])
	})

	t.Run("Should leave fresh snapshots alone", func(t *testing.T) {
		c, _ := newClient(t, opts)
		c.SetContext(ruleengine.NewContext("alice", nil))
		require.NoError(t, c.Refresh(checkoutSet(now.Add(-time.Minute))))

		res := c.StringValue("checkout", "fallback")

		assert.Equal(t, ruleengine.ReasonDefaultTargetingMatch, res.Reason)
		assert.NotContains(t, res.Metadata, ruleengine.MetaResolvedReason)
	})

	t.Run("Should not mark defaults as stale", func(t *testing.T) {
		c, _ := newClient(t, opts)
		c.SetContext(ruleengine.NewContext("alice", nil))
		require.NoError(t, c.Refresh(checkoutSet(t0)))

		res := c.BoolValue("missing", true)

		assert.True(t, res.Value)
		assert.Equal(t, ruleengine.ReasonDefault, res.Reason)
	})
}

func TestClient_TypeMismatchAndMetrics(t *testing.T) {
	c, _ := newClient(t, Options{})
	c.SetContext(ruleengine.NewContext("alice", nil))
	require.NoError(t, c.Refresh(checkoutSet(t0)))

	testsupport.AssertMetricDelta(t, "heimdall_sdk_evaluations_total", map[string]string{"reason": "ERROR"}, 1, func() {
		res := c.BoolValue("checkout", true)
		assert.True(t, res.Value)
		assert.Equal(t, ruleengine.ReasonError, res.Reason)
	})

	testsupport.AssertMetricDelta(t, "heimdall_sdk_evaluations_total", map[string]string{"reason": "DEFAULT_TARGETING_MATCH"}, 2, func() {
		// Without a cache every call is recomputed.
		_ = c.StringValue("checkout", "")
		_ = c.StringValue("checkout", "")
	})

	testsupport.AssertHistogramRecorded(t, "heimdall_sdk_evaluation_duration_seconds", nil)
}

func TestClient_ConcurrentRefreshAndEvaluate(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, Options{CacheEnabled: true, CacheCapacity: 10})
	c.SetContext(ruleengine.NewContext("alice", nil))
	require.NoError(t, c.Refresh(checkoutSet(t0)))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = c.Refresh(checkoutSet(t0.Add(time.Duration(i) * time.Second)))
		}(i)
		go func() {
			defer wg.Done()
			for range 50 {
				res := c.StringValue("checkout", "fallback")
				// Every snapshot yields the same value for alice.
				assert.Equal(t, "classic-button", res.Value)
			}
		}()
	}
	wg.Wait()
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Cache:  config.CacheConfig{Enabled: true, Capacity: 42, TTL: time.Minute},
		Source: config.SourceConfig{StaleAfter: time.Hour},
	}

	opts := OptionsFromConfig(cfg)

	assert.True(t, opts.CacheEnabled)
	assert.Equal(t, 42, opts.CacheCapacity)
	assert.Equal(t, time.Minute, opts.CacheTTL)
	assert.Equal(t, time.Hour, opts.StaleAfter)
}

func TestNew_InvalidCacheCapacity(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Options{CacheEnabled: true, CacheCapacity: 0})

	assert.Error(t, err)
}
