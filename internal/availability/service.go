// Package availability keeps each viewer's merged calendar in sync with the
// store. A Service manages one syncer per viewer; the syncer reacts to change
// notifications, debounces them, fetches windows and profiles, and publishes
// a new merged result only when something actually changed.
package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/config"
	"github.com/Maken-HQ-Team/meetmate/internal/models"
	"github.com/Maken-HQ-Team/meetmate/internal/monitor"
	"github.com/Maken-HQ-Team/meetmate/internal/profilecache"
	"github.com/Maken-HQ-Team/meetmate/internal/realtime"
	"github.com/Maken-HQ-Team/meetmate/internal/retry"
)

// Store is the slice of the database layer the sync path needs
type Store interface {
	GetActiveGrantsForViewer(ctx context.Context, viewerID string) ([]models.ShareGrant, error)
	GetGrantsForOwner(ctx context.Context, ownerID string) ([]models.ShareGrant, error)
	GetWindowsWithProfiles(ctx context.Context, ownerIDs []string) ([]models.AvailabilityWindow, []models.Profile, error)
	GetWindowsForOwners(ctx context.Context, ownerIDs []string) ([]models.AvailabilityWindow, error)
	TouchGrants(ctx context.Context, viewerID string) error
}

// Subscription is a change feed owned by a syncer
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Unsubscribe()
}

// Notifier hands out change subscriptions; satisfied by HubNotifier in
// production and by fakes in tests
type Notifier interface {
	SubscribeTable(table string, filter func(models.ChangeEvent) bool) Subscription
}

// HubNotifier adapts the realtime hub to the Notifier interface
type HubNotifier struct {
	Hub *realtime.Hub
}

func (h HubNotifier) SubscribeTable(table string, filter func(models.ChangeEvent) bool) Subscription {
	return h.Hub.Subscribe("public", table, realtime.FilterFunc(filter))
}

// Result is one published merged-availability snapshot for a viewer
type Result struct {
	Windows  []models.AvailabilityWindow
	Profiles map[string]models.ProfileSnapshot
}

// Service manages per-viewer syncers, created on demand and torn down
// together on Close
type Service struct {
	store    Store
	cache    *profilecache.Cache
	engine   *retry.Engine
	guard    *retry.Guard
	notifier Notifier
	monitor  *monitor.Monitor
	cfg      *config.SyncConfig
	logger   *zap.Logger

	mu      sync.Mutex
	syncers map[string]*syncer
}

// NewService wires the sync orchestrator
func NewService(store Store, cache *profilecache.Cache, engine *retry.Engine, guard *retry.Guard, notifier Notifier, mon *monitor.Monitor, cfg *config.SyncConfig, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		engine:   engine,
		guard:    guard,
		notifier: notifier,
		monitor:  mon,
		cfg:      cfg,
		logger:   logger,
		syncers:  make(map[string]*syncer),
	}
}

// Syncer returns the viewer's syncer, creating and starting one on first use
func (s *Service) Syncer(viewerID string) *syncer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sy, ok := s.syncers[viewerID]; ok {
		return sy
	}

	sy := newSyncer(s, viewerID)
	s.syncers[viewerID] = sy
	sy.start()
	return sy
}

// Merged returns the viewer's last published snapshot plus a loading flag
// for callers that arrive before the first cycle lands
func (s *Service) Merged(viewerID string) (Result, bool) {
	return s.Syncer(viewerID).Merged()
}

// Refetch triggers an immediate cycle, bypassing the debounce. The guard
// still applies.
func (s *Service) Refetch(viewerID string) {
	s.Syncer(viewerID).Refetch()
}

// MyGrants lists the grants an owner has issued with resolved viewer
// profiles, cache-assisted
func (s *Service) MyGrants(ctx context.Context, ownerID string) ([]models.GrantWithProfile, error) {
	grants, err := retry.DoValue(s.engine, ctx, "grants.mine:"+ownerID, func(ctx context.Context) ([]models.ShareGrant, error) {
		return s.store.GetGrantsForOwner(ctx, ownerID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	viewerIDs := make([]string, 0, len(grants))
	for _, g := range grants {
		viewerIDs = append(viewerIDs, g.ViewerID)
	}

	profiles := s.resolveProfiles(ctx, viewerIDs)

	out := make([]models.GrantWithProfile, 0, len(grants))
	for _, g := range grants {
		out = append(out, models.GrantWithProfile{
			Grant:   g,
			Profile: profiles[g.ViewerID],
		})
	}
	return out, nil
}

// resolveProfiles answers from the cache, batch-fetches the misses, and
// fills placeholders for ids that resolve nowhere
func (s *Service) resolveProfiles(ctx context.Context, ids []string) map[string]models.ProfileSnapshot {
	cached, missing := s.cache.GetMany(ids)

	if len(missing) > 0 {
		fetched, err := s.cache.BatchFetch(ctx, missing)
		if err != nil {
			s.logger.Warn("profile batch fetch failed, using placeholders",
				zap.Int("missing", len(missing)),
				zap.Error(err),
			)
		}
		for _, snap := range fetched {
			cached[snap.UserID] = snap
		}
	}

	now := time.Now()
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			cached[id] = models.PlaceholderProfile(id, now)
		}
	}
	return cached
}

// Close tears down every syncer. Runs at server shutdown, after the HTTP
// surface has stopped accepting requests.
func (s *Service) Close() {
	s.mu.Lock()
	syncers := make([]*syncer, 0, len(s.syncers))
	for _, sy := range s.syncers {
		syncers = append(syncers, sy)
	}
	s.syncers = make(map[string]*syncer)
	s.mu.Unlock()

	for _, sy := range syncers {
		sy.Close()
	}

	s.logger.Info("availability service closed", zap.Int("syncers", len(syncers)))
}
