// Package client is the in-process facade over the rule engine.
//
// A Client owns one evaluation cache, one active snapshot and one current
// evaluation context. Several Clients with different options can coexist in a
// process without sharing state.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/heimdall-go/internal/cache"
	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/observability"
	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
	"github.com/rafaeljc/heimdall-go/internal/store"
)

// Options configures a Client.
type Options struct {
	// CacheEnabled turns on result memoization.
	CacheEnabled bool
	// CacheCapacity bounds the number of memoized flag keys.
	CacheCapacity int
	// CacheTTL expires memoized results; zero keeps them until invalidation.
	CacheTTL time.Duration

	// FieldTypes declares context-field types on top of each snapshot's registry.
	FieldTypes ruleengine.FieldTypes

	// StaleAfter reports successful results as STALE once the snapshot is
	// older than this. Zero disables staleness reporting.
	StaleAfter time.Duration

	// Now is the clock used for staleness checks. Defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the agent configuration onto client options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CacheEnabled:  cfg.Cache.Enabled,
		CacheCapacity: cfg.Cache.Capacity,
		CacheTTL:      cfg.Cache.TTL,
		StaleAfter:    cfg.Source.StaleAfter,
	}
}

// Client evaluates flags against the active snapshot and context.
type Client struct {
	id     string
	logger *slog.Logger
	opts   Options

	engine   *ruleengine.Engine
	cache    *cache.EvaluationCache // nil when caching is disabled
	snapshot store.Snapshot
	evalCtx  atomic.Pointer[ruleengine.Context]
}

// New creates a Client. If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, opts Options) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	logger = logger.With(slog.String("client_id", id))

	engineOpts := []ruleengine.Option{ruleengine.WithFieldTypes(opts.FieldTypes)}

	var evalCache *cache.EvaluationCache
	if opts.CacheEnabled {
		c, err := cache.New(opts.CacheCapacity, opts.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create evaluation cache: %w", err)
		}
		evalCache = c
		engineOpts = append(engineOpts, ruleengine.WithCache(c))
	}

	cl := &Client{
		id:     id,
		logger: logger,
		opts:   opts,
		engine: ruleengine.New(logger, engineOpts...),
		cache:  evalCache,
	}
	cl.evalCtx.Store(&ruleengine.Context{})
	return cl, nil
}

// ID returns the random instance identifier attached to this client's logs.
func (c *Client) ID() string { return c.id }

// Ready reports whether a snapshot has been loaded.
func (c *Client) Ready() bool { return c.snapshot.Load() != nil }

// Snapshot returns the active FlagSet, or nil before the first Refresh.
func (c *Client) Snapshot() *ruleengine.FlagSet { return c.snapshot.Load() }

// Context returns the current evaluation context.
func (c *Client) Context() ruleengine.Context { return *c.evalCtx.Load() }

// SetContext replaces the evaluation context and drops every memoized result,
// since cached values were computed for the previous targeting key.
func (c *Client) SetContext(ctx ruleengine.Context) {
	ctx = ruleengine.NewContext(ctx.TargetingKey, ctx.Attributes)
	c.evalCtx.Store(&ctx)
	c.InvalidateCache()
}

// Refresh installs set as the active snapshot and invalidates the cache.
// Sets older than the active one are rejected with store.ErrOlderSnapshot.
func (c *Client) Refresh(set *ruleengine.FlagSet) error {
	if err := c.snapshot.Replace(set); err != nil {
		return err
	}
	c.InvalidateCache()

	c.logger.Debug("snapshot refreshed",
		slog.Int("features", set.Len()),
		slog.Time("updated_at", set.UpdatedAt),
	)
	return nil
}

// InvalidateCache drops every memoized result.
func (c *Client) InvalidateCache() {
	c.engine.InvalidateCache()
}

// RunCacheMetrics exports cache usage until ctx is cancelled. It returns
// immediately when caching is disabled.
func (c *Client) RunCacheMetrics(ctx context.Context, interval time.Duration) {
	if c.cache == nil {
		return
	}
	c.cache.RunMetricsCollector(ctx, interval)
}

// Close releases the cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// BoolValue resolves a boolean flag.
func (c *Client) BoolValue(flagKey string, def bool) ruleengine.EvaluationResult[bool] {
	return ruleengine.Typed(c.evaluate(flagKey, ruleengine.BoolValue(def)), def, ruleengine.Value.AsBool)
}

// StringValue resolves a string flag.
func (c *Client) StringValue(flagKey string, def string) ruleengine.EvaluationResult[string] {
	return ruleengine.Typed(c.evaluate(flagKey, ruleengine.StringValue(def)), def, ruleengine.Value.AsString)
}

// IntValue resolves an integer flag.
func (c *Client) IntValue(flagKey string, def int64) ruleengine.EvaluationResult[int64] {
	return ruleengine.Typed(c.evaluate(flagKey, ruleengine.IntValue(def)), def, ruleengine.Value.AsInt)
}

// FloatValue resolves a double flag.
func (c *Client) FloatValue(flagKey string, def float64) ruleengine.EvaluationResult[float64] {
	return ruleengine.Typed(c.evaluate(flagKey, ruleengine.DoubleValue(def)), def, ruleengine.Value.AsDouble)
}

// ObjectValue resolves a structured flag.
func (c *Client) ObjectValue(flagKey string, def map[string]any) ruleengine.EvaluationResult[map[string]any] {
	return ruleengine.Typed(c.evaluate(flagKey, ruleengine.ObjectValue(def)), def, ruleengine.Value.AsObject)
}

// Evaluate resolves flagKey with an untyped default; the default's kind
// selects the requested type.
func (c *Client) Evaluate(flagKey string, def ruleengine.Value) ruleengine.Result {
	return c.evaluate(flagKey, def)
}

func (c *Client) evaluate(flagKey string, def ruleengine.Value) ruleengine.Result {
	start := time.Now()

	// The generation is read before the snapshot and context so a concurrent
	// Refresh or SetContext discards this result instead of caching it.
	generation := c.engine.CacheGeneration()
	set := c.snapshot.Load()
	evalCtx := *c.evalCtx.Load()

	res := c.engine.EvaluateAt(generation, flagKey, def, set, evalCtx)
	res = c.markStale(res, set)

	observability.EvaluationsTotal.WithLabelValues(string(res.Reason)).Inc()
	observability.EvaluationDuration.Observe(time.Since(start).Seconds())
	return res
}

// markStale downgrades successful results computed from an outdated snapshot.
// The reason that would otherwise have been reported is kept in metadata.
func (c *Client) markStale(res ruleengine.Result, set *ruleengine.FlagSet) ruleengine.Result {
	if c.opts.StaleAfter <= 0 || set == nil || set.UpdatedAt.IsZero() {
		return res
	}
	switch res.Reason {
	case ruleengine.ReasonTargetingMatch, ruleengine.ReasonDefaultTargetingMatch, ruleengine.ReasonCached:
	default:
		return res
	}
	if c.opts.Now().Sub(set.UpdatedAt) <= c.opts.StaleAfter {
		return res
	}

	meta := make(map[string]string, len(res.Metadata)+1)
	maps.Copy(meta, res.Metadata)
	meta[ruleengine.MetaResolvedReason] = string(res.Reason)

	res.Metadata = meta
	res.Reason = ruleengine.ReasonStale
	return res
}
