package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

type Config struct {
	DistributedTTL  time.Duration
	LocalTTL        time.Duration
	AliasTTL        time.Duration
	LocalMaxEntries int
	JanitorInterval time.Duration
	TierTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		DistributedTTL:  24 * time.Hour,
		LocalTTL:        5 * time.Minute,
		AliasTTL:        time.Hour,
		LocalMaxEntries: 10000,
		JanitorInterval: time.Minute,
		TierTimeout:     150 * time.Millisecond,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.DistributedTTL <= 0 {
		out.DistributedTTL = def.DistributedTTL
	}
	if out.LocalTTL <= 0 {
		out.LocalTTL = def.LocalTTL
	}
	if out.AliasTTL <= 0 {
		out.AliasTTL = def.AliasTTL
	}
	if out.LocalMaxEntries <= 0 {
		out.LocalMaxEntries = def.LocalMaxEntries
	}
	if out.TierTimeout <= 0 {
		out.TierTimeout = def.TierTimeout
	}
	return out
}

type Option func(*LookupCache)

// WithDistributed attaches the shared tier. Without it the cache runs local-only.
func WithDistributed(tier ports.DistributedCache) Option {
	return func(c *LookupCache) {
		c.distributed = tier
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *LookupCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *LookupCache) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithClock replaces the clock used for entry timestamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *LookupCache) {
		if now != nil {
			c.now = now
		}
	}
}

// LookupCache is a two-tier cache in front of expensive lookups. The
// distributed tier is consulted first; any error there is logged and treated
// as absent so the cache never fails a lookup.
type LookupCache struct {
	cfg         Config
	distributed ports.DistributedCache
	local       *localTier
	stats       statsRecorder
	flight      singleflight.Group
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time
}

func New(cfg Config, opts ...Option) *LookupCache {
	c := &LookupCache{
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.local = newLocalTier(c.cfg.LocalMaxEntries, c.now)
	c.local.startJanitor(c.cfg.JanitorInterval)
	return c
}

// Get returns the freshest entry for key from the first tier that has it.
func (c *LookupCache) Get(ctx context.Context, key domain.CacheKey) Result {
	k := key.String()
	tierDown := false

	if c.distributed != nil {
		entry, err := c.getDistributed(ctx, k)
		switch {
		case err == nil:
			return Result{Entry: entry, Tier: TierDistributed, Outcome: OutcomeHit}
		case errors.Is(err, domain.ErrCacheMiss):
		default:
			tierDown = true
			c.tierUnavailable("get", k, err)
		}
	}

	if entry, ok := c.local.get(k); ok {
		return Result{Entry: entry, Tier: TierLocal, Outcome: OutcomeHit}
	}
	if tierDown {
		return Result{Outcome: OutcomeTierUnavailable}
	}
	return Result{Outcome: OutcomeMiss}
}

func (c *LookupCache) getDistributed(ctx context.Context, key string) (Entry, error) {
	tierCtx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()

	raw, err := c.distributed.Get(tierCtx, key)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache_entry_corrupt", "key", key, "error", err)
		return Entry{}, domain.ErrCacheMiss
	}
	if entry.Expired(c.now()) {
		return Entry{}, domain.ErrCacheMiss
	}
	return entry, nil
}

// Put stores payload in both tiers. Tier failures are logged and dropped.
func (c *LookupCache) Put(ctx context.Context, key domain.CacheKey, payload json.RawMessage) {
	c.PutTTL(ctx, key, payload, c.cfg.DistributedTTL)
}

// PutTTL is Put with a caller-chosen lifetime. The local copy never outlives
// the configured local TTL.
func (c *LookupCache) PutTTL(ctx context.Context, key domain.CacheKey, payload json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DistributedTTL
	}
	k := key.String()
	now := c.now()

	if c.distributed != nil {
		envelope := Entry{Payload: payload, StoredAt: now, TTL: ttl}
		raw, err := json.Marshal(envelope)
		if err == nil {
			tierCtx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
			err = c.distributed.Set(tierCtx, k, raw, ttl)
			cancel()
		}
		if err != nil {
			c.tierUnavailable("set", k, err)
		}
	}

	c.local.set(k, Entry{Payload: payload, StoredAt: now, TTL: min(ttl, c.cfg.LocalTTL)})
}

// ResolveAlias returns the property id a spoken subject last resolved to.
// It does not count toward lookup stats.
func (c *LookupCache) ResolveAlias(ctx context.Context, subject string) (string, bool) {
	res := c.Get(ctx, domain.NewAliasCacheKey(subject))
	if !res.Found() {
		return "", false
	}
	var id string
	if err := json.Unmarshal(res.Entry.Payload, &id); err != nil || id == "" {
		return "", false
	}
	return id, true
}

// PutAlias remembers that subject resolved to propertyID. Subjects that
// already normalize to the id are not stored.
func (c *LookupCache) PutAlias(ctx context.Context, subject, propertyID string) {
	if propertyID == "" || domain.NormalizeSubject(subject) == domain.NormalizeSubject(propertyID) {
		return
	}
	payload, err := json.Marshal(propertyID)
	if err != nil {
		return
	}
	c.PutTTL(ctx, domain.NewAliasCacheKey(subject), payload, c.cfg.AliasTTL)
}

// Invalidate removes key from both tiers. The local tier is always cleared;
// the returned error reports a distributed tier failure.
func (c *LookupCache) Invalidate(ctx context.Context, key domain.CacheKey) error {
	k := key.String()
	c.local.delete(k)
	c.observer.ObserveInvalidation("key")

	if c.distributed == nil {
		return nil
	}
	tierCtx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()
	if err := c.distributed.Delete(tierCtx, k); err != nil {
		c.tierUnavailable("delete", k, err)
		return domain.WrapError(domain.ErrTemporary, "invalidate cache key", err)
	}
	return nil
}

// InvalidateSubject removes every fact type cached for one subject. When the
// subject is an alias, the property it resolved to is cleared as well and the
// alias is dropped. Listing searches may mention any property, so they go too.
func (c *LookupCache) InvalidateSubject(ctx context.Context, subjectID string) error {
	var errs []error
	if id, ok := c.ResolveAlias(ctx, subjectID); ok {
		errs = append(errs,
			c.invalidatePrefix(ctx, "subject", domain.PropertySubjectPrefix(id)),
			c.deleteKey(ctx, domain.NewAliasCacheKey(subjectID)),
		)
	}
	errs = append(errs,
		c.invalidatePrefix(ctx, "subject", domain.PropertySubjectPrefix(subjectID)),
		c.invalidatePrefix(ctx, "search", domain.SearchNamespacePrefix()),
	)
	return errors.Join(errs...)
}

// InvalidateAll removes every cached property lookup, alias and search.
func (c *LookupCache) InvalidateAll(ctx context.Context) error {
	return errors.Join(
		c.invalidatePrefix(ctx, "all", domain.PropertyNamespacePrefix()),
		c.invalidatePrefix(ctx, "all", domain.AliasNamespacePrefix()),
		c.invalidatePrefix(ctx, "all", domain.SearchNamespacePrefix()),
	)
}

func (c *LookupCache) deleteKey(ctx context.Context, key domain.CacheKey) error {
	k := key.String()
	c.local.delete(k)
	if c.distributed == nil {
		return nil
	}
	tierCtx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()
	if err := c.distributed.Delete(tierCtx, k); err != nil {
		c.tierUnavailable("delete", k, err)
		return domain.WrapError(domain.ErrTemporary, "invalidate cache key", err)
	}
	return nil
}

func (c *LookupCache) invalidatePrefix(ctx context.Context, scope, prefix string) error {
	removed := c.local.deletePrefix(prefix)
	c.observer.ObserveInvalidation(scope)
	c.logger.Info("cache_invalidated", "scope", scope, "prefix", prefix, "local_removed", removed)

	if c.distributed == nil {
		return nil
	}
	tierCtx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()
	if _, err := c.distributed.DeletePrefix(tierCtx, prefix); err != nil {
		c.tierUnavailable("delete_prefix", prefix, err)
		return domain.WrapError(domain.ErrTemporary, "invalidate cache prefix", err)
	}
	return nil
}

// Apply executes an invalidation event.
func (c *LookupCache) Apply(ctx context.Context, event domain.InvalidationEvent) error {
	switch {
	case event.All:
		return c.InvalidateAll(ctx)
	case event.SubjectID == "":
		return domain.WrapError(domain.ErrInvalidInput, "apply invalidation", fmt.Errorf("subject_id is required unless all is set"))
	case event.FactType != "":
		var err error
		if id, ok := c.ResolveAlias(ctx, event.SubjectID); ok {
			err = c.Invalidate(ctx, domain.NewPropertyCacheKey(id, event.FactType))
		}
		return errors.Join(err, c.Invalidate(ctx, domain.NewPropertyCacheKey(event.SubjectID, event.FactType)))
	default:
		return c.InvalidateSubject(ctx, event.SubjectID)
	}
}

// Fetched is the outcome of a miss-path fetch. Non-cacheable results are
// returned to the caller but not stored. StoreAs overrides the key the result
// is stored under and TTL overrides the distributed lifetime.
type Fetched struct {
	Payload   json.RawMessage
	Cacheable bool
	StoreAs   domain.CacheKey
	TTL       time.Duration
}

type flightResult struct {
	payload json.RawMessage
	tier    Tier
	hit     bool
}

type FetchFunc func(ctx context.Context) (Fetched, error)

type Lookup struct {
	Payload json.RawMessage
	Hit     bool
	Tier    Tier
	Outcome Outcome
	Latency time.Duration
}

// GetOrFetch serves key from cache or runs fetch and stores its result.
// Concurrent misses on one key share a single fetch, which runs under the
// first caller's context. Elapsed time is recorded separately for the hit and
// miss paths.
func (c *LookupCache) GetOrFetch(ctx context.Context, key domain.CacheKey, fetch FetchFunc) (Lookup, error) {
	started := time.Now()

	res := c.Get(ctx, key)
	if res.Found() {
		latency := time.Since(started)
		c.stats.recordHit(latency)
		c.observer.ObserveLookup(res.Tier, OutcomeHit, latency)
		return Lookup{Payload: res.Entry.Payload, Hit: true, Tier: res.Tier, Outcome: OutcomeHit, Latency: latency}, nil
	}

	k := key.String()
	v, err, _ := c.flight.Do(k, func() (any, error) {
		// A flight that just finished has already filled the local tier.
		if entry, ok := c.local.get(k); ok {
			return flightResult{payload: entry.Payload, tier: TierLocal, hit: true}, nil
		}
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if fetched.Cacheable {
			storeAs := key
			if fetched.StoreAs != (domain.CacheKey{}) {
				storeAs = fetched.StoreAs
			}
			c.PutTTL(ctx, storeAs, fetched.Payload, fetched.TTL)
		}
		return flightResult{payload: fetched.Payload}, nil
	})
	latency := time.Since(started)
	if err != nil {
		c.stats.recordMiss(latency)
		c.observer.ObserveLookup(TierNone, res.Outcome, latency)
		return Lookup{Outcome: res.Outcome, Latency: latency}, err
	}
	out := v.(flightResult)
	if out.hit {
		c.stats.recordHit(latency)
		c.observer.ObserveLookup(out.tier, OutcomeHit, latency)
		return Lookup{Payload: out.payload, Hit: true, Tier: out.tier, Outcome: OutcomeHit, Latency: latency}, nil
	}
	c.stats.recordMiss(latency)
	c.observer.ObserveLookup(TierNone, res.Outcome, latency)
	return Lookup{Payload: out.payload, Outcome: res.Outcome, Latency: latency}, nil
}

// RecordHybridSearch counts one listing index search for the stats report.
func (c *LookupCache) RecordHybridSearch() {
	c.stats.recordHybridSearch()
}

func (c *LookupCache) Stats() domain.CacheStats {
	return c.stats.snapshot()
}

func (c *LookupCache) ResetStats() {
	c.stats.reset()
	c.logger.Info("cache_stats_reset")
}

// LocalLen reports the number of entries held by the local tier.
func (c *LookupCache) LocalLen() int {
	return c.local.len()
}

type Health struct {
	DistributedConfigured bool   `json:"distributed_configured"`
	DistributedReachable  bool   `json:"distributed_reachable"`
	DistributedError      string `json:"distributed_error,omitempty"`
	LocalEntries          int    `json:"local_entries"`
}

func (c *LookupCache) Health(ctx context.Context) Health {
	h := Health{LocalEntries: c.local.len()}
	if c.distributed == nil {
		return h
	}
	h.DistributedConfigured = true
	tierCtx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()
	if err := c.distributed.Ping(tierCtx); err != nil {
		h.DistributedError = err.Error()
		return h
	}
	h.DistributedReachable = true
	return h
}

// Close stops the local tier janitor.
func (c *LookupCache) Close() {
	c.local.close()
}

func (c *LookupCache) tierUnavailable(operation, key string, err error) {
	c.observer.ObserveTierUnavailable(operation)
	c.logger.Warn("cache_tier_unavailable",
		"tier", string(TierDistributed),
		"operation", operation,
		"key", key,
		"error", err,
	)
}
