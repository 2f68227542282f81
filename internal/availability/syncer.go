package availability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
	"github.com/Maken-HQ-Team/meetmate/internal/realtime"
	"github.com/Maken-HQ-Team/meetmate/internal/retry"
)

const syncTimeout = 30 * time.Second

// syncer keeps one viewer's merged availability current. All state below mu
// is the published snapshot only; the mutex is never held across a store
// call.
type syncer struct {
	viewerID string
	svc      *Service
	logger   *zap.Logger

	// token orders cycles; a completing cycle publishes only while its
	// token is still the newest one issued
	token atomic.Uint64

	mu        sync.Mutex
	result    Result
	hasResult bool
	loading   bool
	ownerIDs  map[string]bool
	watchers  []chan Result

	grantSub       Subscription
	windowSub      Subscription
	grantDebounce  *realtime.Debouncer
	windowDebounce *realtime.Debouncer

	done chan struct{}
	wg   sync.WaitGroup
}

func newSyncer(svc *Service, viewerID string) *syncer {
	return &syncer{
		viewerID: viewerID,
		svc:      svc,
		logger:   svc.logger.With(zap.String("viewer_id", viewerID)),
		ownerIDs: make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// start wires change subscriptions and kicks off the first cycle
func (s *syncer) start() {
	s.grantDebounce = realtime.NewDebouncer(s.svc.cfg.GrantDebounce, s.runCycle)
	s.windowDebounce = realtime.NewDebouncer(s.svc.cfg.WindowDebounce, s.runCycle)

	s.grantSub = s.svc.notifier.SubscribeTable("share_grants", func(ev models.ChangeEvent) bool {
		g, err := ev.GrantRow()
		if err != nil {
			return false
		}
		return g.ViewerID == s.viewerID || g.OwnerID == s.viewerID
	})
	s.windowSub = s.svc.notifier.SubscribeTable("availability_windows", func(ev models.ChangeEvent) bool {
		ownerID, err := ev.WindowOwnerID()
		if err != nil {
			return false
		}
		return s.watchesOwner(ownerID)
	})

	s.wg.Add(2)
	go s.pump(s.grantSub, s.grantDebounce)
	go s.pump(s.windowSub, s.windowDebounce)

	go s.runCycle()
}

// pump feeds subscription events into a debouncer until Close
func (s *syncer) pump(sub Subscription, d *realtime.Debouncer) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			d.Trigger()
		}
	}
}

func (s *syncer) watchesOwner(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerIDs[ownerID]
}

// Merged returns the last published snapshot. loading is true until the
// first cycle completes.
func (s *syncer) Merged() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.loading || !s.hasResult
}

// Refetch runs a cycle immediately, without waiting out a debounce window.
// The guard still drops calls landing within its cooldown.
func (s *syncer) Refetch() {
	go s.runCycle()
}

// Watch returns a channel receiving each newly published snapshot, starting
// with the current one when a cycle has already landed. The channel is
// closed on syncer Close; slow watchers lose snapshots rather than block
// publishing.
func (s *syncer) Watch() <-chan Result {
	ch := make(chan Result, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	if s.hasResult {
		ch <- s.result
	}
	s.mu.Unlock()
	return ch
}

// Close releases subscriptions, cancels pending debounces, and closes
// watcher channels. In-flight cycles finish but can no longer publish.
func (s *syncer) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)

	// a token bump strands any in-flight cycle
	s.token.Add(1)

	s.grantDebounce.Stop()
	s.windowDebounce.Stop()
	s.grantSub.Unsubscribe()
	s.windowSub.Unsubscribe()
	s.wg.Wait()

	s.mu.Lock()
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	s.mu.Unlock()
}

// runCycle executes one sync cycle end to end
func (s *syncer) runCycle() {
	opCtx := "sync:" + s.viewerID
	if !s.svc.guard.Allow(opCtx) {
		s.logger.Debug("sync cycle dropped by guard")
		return
	}

	token := s.token.Add(1)
	started := time.Now()

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	result, ownerIDs, err := s.fetch(ctx, opCtx)

	success := err == nil
	if err != nil {
		s.logger.Error("sync cycle failed",
			zap.Duration("duration", time.Since(started)),
			zap.Error(err),
		)
	}

	s.publish(token, result, ownerIDs, success)

	s.svc.monitor.RecordOperation("sync.cycle", time.Since(started), success, map[string]string{
		"viewer_id": s.viewerID,
	})

	if success && len(ownerIDs) > 0 {
		// viewed_at is bookkeeping; its failure never fails the cycle
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			if err := s.svc.store.TouchGrants(ctx, s.viewerID); err != nil {
				s.logger.Warn("failed to touch grants", zap.Error(err))
			}
		}()
	}
}

// fetch resolves grants, then windows and profiles, preferring the single
// joined query and falling back to separate fetches when the join cannot be
// satisfied
func (s *syncer) fetch(ctx context.Context, opCtx string) (Result, []string, error) {
	grants, err := retry.DoValue(s.svc.engine, ctx, opCtx+":grants", func(ctx context.Context) ([]models.ShareGrant, error) {
		return s.svc.store.GetActiveGrantsForViewer(ctx, s.viewerID)
	})
	if err != nil {
		return Result{}, nil, err
	}

	if len(grants) == 0 {
		return Result{Profiles: map[string]models.ProfileSnapshot{}}, nil, nil
	}

	ownerIDs := make([]string, 0, len(grants))
	for _, g := range grants {
		ownerIDs = append(ownerIDs, g.OwnerID)
	}

	cached, _ := s.svc.cache.GetMany(ownerIDs)

	type joinedResult struct {
		windows  []models.AvailabilityWindow
		profiles []models.Profile
	}
	joined, err := retry.DoValue(s.svc.engine, ctx, opCtx+":joined", func(ctx context.Context) (joinedResult, error) {
		w, p, err := s.svc.store.GetWindowsWithProfiles(ctx, ownerIDs)
		return joinedResult{windows: w, profiles: p}, err
	})
	if err != nil {
		if retry.Classify(err, opCtx).Kind != retry.KindRelationship {
			return Result{}, nil, err
		}
		s.logger.Warn("joined fetch unavailable, falling back to separate queries", zap.Error(err))
		result, ferr := s.fetchFallback(ctx, opCtx, ownerIDs, cached)
		return result, ownerIDs, ferr
	}

	now := time.Now()
	merged := make(map[string]models.ProfileSnapshot, len(ownerIDs))
	for id, snap := range cached {
		merged[id] = snap
	}
	for _, p := range joined.profiles {
		if _, ok := merged[p.UserID]; !ok {
			merged[p.UserID] = p.Snapshot(now)
		}
	}
	for _, id := range ownerIDs {
		if _, ok := merged[id]; !ok {
			merged[id] = models.PlaceholderProfile(id, now)
		}
	}

	return Result{Windows: joined.windows, Profiles: merged}, ownerIDs, nil
}

// fetchFallback is the unjoined strategy: windows alone, profiles through
// the cache, placeholders for whatever stays unresolved. Windows are never
// dropped for want of a profile.
func (s *syncer) fetchFallback(ctx context.Context, opCtx string, ownerIDs []string, cached map[string]models.ProfileSnapshot) (Result, error) {
	windows, err := retry.DoValue(s.svc.engine, ctx, opCtx+":windows", func(ctx context.Context) ([]models.AvailabilityWindow, error) {
		return s.svc.store.GetWindowsForOwners(ctx, ownerIDs)
	})
	if err != nil {
		return Result{}, err
	}

	missing := make([]string, 0, len(ownerIDs))
	for _, id := range ownerIDs {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}

	merged := make(map[string]models.ProfileSnapshot, len(ownerIDs))
	for id, snap := range cached {
		merged[id] = snap
	}

	if len(missing) > 0 {
		fetched, err := s.svc.cache.BatchFetch(ctx, missing)
		if err != nil {
			s.logger.Warn("profile batch fetch failed during fallback", zap.Error(err))
		}
		for _, snap := range fetched {
			merged[snap.UserID] = snap
		}
	}

	now := time.Now()
	for _, id := range ownerIDs {
		if _, ok := merged[id]; !ok {
			merged[id] = models.PlaceholderProfile(id, now)
		}
	}

	return Result{Windows: windows, Profiles: merged}, nil
}

// publish installs the result if this cycle is still the newest one, and
// notifies watchers only when the snapshot structurally changed
func (s *syncer) publish(token uint64, result Result, ownerIDs []string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.token.Load() {
		s.logger.Debug("discarding stale sync cycle",
			zap.Uint64("token", token),
			zap.Uint64("newest", s.token.Load()),
		)
		return
	}

	s.loading = false

	if !success {
		// keep serving the last good snapshot
		return
	}

	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	s.ownerIDs = owners

	if s.hasResult && resultsEqual(s.result, result) {
		return
	}

	s.result = result
	s.hasResult = true

	for _, ch := range s.watchers {
		select {
		case ch <- result:
		default:
			// drop the stale snapshot and leave the fresh one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- result:
			default:
			}
		}
	}
}

// resultsEqual is the structural diff deciding whether to publish. Snapshot
// cache timestamps are ignored; a refreshed cache entry alone is not a
// change.
func resultsEqual(a, b Result) bool {
	if len(a.Windows) != len(b.Windows) || len(a.Profiles) != len(b.Profiles) {
		return false
	}
	for i := range a.Windows {
		if !windowsEqual(a.Windows[i], b.Windows[i]) {
			return false
		}
	}
	for id, ap := range a.Profiles {
		bp, ok := b.Profiles[id]
		if !ok || !snapshotsEqual(ap, bp) {
			return false
		}
	}
	return true
}

func windowsEqual(a, b models.AvailabilityWindow) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.DayOfWeek == b.DayOfWeek &&
		a.StartTime == b.StartTime &&
		a.EndTime == b.EndTime &&
		a.Status == b.Status &&
		a.Timezone == b.Timezone
}

func snapshotsEqual(a, b models.ProfileSnapshot) bool {
	return a.UserID == b.UserID &&
		a.DisplayName == b.DisplayName &&
		a.Email == b.Email &&
		a.Country == b.Country &&
		a.Bio == b.Bio &&
		a.AvatarURL == b.AvatarURL &&
		a.Timezone == b.Timezone &&
		a.Placeholder == b.Placeholder
}
