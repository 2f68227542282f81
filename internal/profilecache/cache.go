// Package profilecache holds an in-memory TTL cache of profile snapshots
// with request de-duplication: concurrent batch fetches for the same id-set
// share one underlying store call.
package profilecache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
	"github.com/Maken-HQ-Team/meetmate/internal/monitor"
)

// cacheName is the monitor's counter bucket for this cache
const cacheName = "profiles"

// FetchFunc loads profiles for a set of user ids in one request
type FetchFunc func(ctx context.Context, userIDs []string) ([]models.Profile, error)

// Cache is the TTL profile cache. Each process constructs its own instance;
// entries are never shared cross-process.
type Cache struct {
	lru          *expirable.LRU[string, models.ProfileSnapshot]
	fetch        FetchFunc
	group        singleflight.Group
	monitor      *monitor.Monitor
	logger       *zap.Logger
	maxBatchSize int
	now          func() time.Time
}

// New creates a profile cache. Entries expire ttl after insertion; expired
// entries are treated as missing and never served stale.
func New(fetch FetchFunc, capacity int, ttl time.Duration, maxBatchSize int, mon *monitor.Monitor, logger *zap.Logger) *Cache {
	return &Cache{
		lru:          expirable.NewLRU[string, models.ProfileSnapshot](capacity, nil, ttl),
		fetch:        fetch,
		monitor:      mon,
		logger:       logger,
		maxBatchSize: maxBatchSize,
		now:          time.Now,
	}
}

// Get returns one cached snapshot, or ok=false on miss or TTL expiry
func (c *Cache) Get(userID string) (models.ProfileSnapshot, bool) {
	return c.lru.Get(userID)
}

// GetMany partitions the requested ids into cached snapshots and missing
// ids. Expired entries count as missing. Hit/miss counters are recorded per
// id on the monitor.
func (c *Cache) GetMany(userIDs []string) (map[string]models.ProfileSnapshot, []string) {
	cached := make(map[string]models.ProfileSnapshot)
	var missing []string

	for _, id := range dedupe(userIDs) {
		if snap, ok := c.lru.Get(id); ok {
			cached[id] = snap
			c.monitor.RecordCacheOperation(cacheName, true, 0)
		} else {
			missing = append(missing, id)
			c.monitor.RecordCacheOperation(cacheName, false, 0)
		}
	}

	return cached, missing
}

// BatchFetch loads the missing ids in one store request, capped at the
// configured batch size (excess ids are dropped from this call; callers
// re-request on a later cycle). Concurrent calls for an identical sorted
// id-set share one in-flight request. Every returned snapshot is cached
// before the call returns. Fetch errors propagate; the cache never
// fabricates entries.
func (c *Cache) BatchFetch(ctx context.Context, userIDs []string) ([]models.ProfileSnapshot, error) {
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	if len(ids) > c.maxBatchSize {
		c.logger.Warn("batch fetch capped",
			zap.Int("requested", len(ids)),
			zap.Int("cap", c.maxBatchSize),
		)
		ids = ids[:c.maxBatchSize]
	}

	key := strings.Join(ids, ",")

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		start := c.now()
		profiles, err := c.fetch(ctx, ids)
		c.monitor.RecordCacheOperation(cacheName, false, c.now().Sub(start))
		if err != nil {
			return nil, fmt.Errorf("batch profile fetch failed: %w", err)
		}

		now := c.now()
		snapshots := make([]models.ProfileSnapshot, 0, len(profiles))
		for _, p := range profiles {
			snap := p.Snapshot(now)
			c.lru.Add(p.UserID, snap)
			snapshots = append(snapshots, snap)
		}

		c.logger.Debug("batch fetched profiles",
			zap.Int("requested", len(ids)),
			zap.Int("returned", len(snapshots)),
		)
		return snapshots, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.Debug("batch fetch coalesced with in-flight request",
			zap.Int("ids", len(ids)),
		)
	}

	return result.([]models.ProfileSnapshot), nil
}

// Invalidate removes one entry
func (c *Cache) Invalidate(userID string) {
	c.lru.Remove(userID)
}

// InvalidateAll clears the cache
func (c *Cache) InvalidateAll() {
	c.lru.Purge()
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Cleanup sweeps TTL-expired entries. Intended to run on a periodic tick,
// independent of request paths; probing each key forces expiry checks so
// dead entries do not linger until their next lookup.
func (c *Cache) Cleanup() {
	before := c.lru.Len()
	for _, key := range c.lru.Keys() {
		c.lru.Get(key)
	}
	if removed := before - c.lru.Len(); removed > 0 {
		c.logger.Debug("swept expired profile entries", zap.Int("removed", removed))
	}
}

// dedupe sorts and de-duplicates an id set, giving batch fetches a
// canonical key
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
