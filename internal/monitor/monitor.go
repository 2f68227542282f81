// Package monitor records duration and outcome samples for named operations
// and hit/miss counters for named caches, and derives percentile stats and an
// aggregate health score from them.
package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// maxSamplesPerOperation bounds the ring kept per operation name
	maxSamplesPerOperation = 100

	// sampleMaxAge is how long samples survive before the periodic sweep
	// drops them
	sampleMaxAge = 24 * time.Hour

	slowThreshold     = 2 * time.Second
	verySlowThreshold = 5 * time.Second
)

// OperationMetric is one timed observation of a named operation
type OperationMetric struct {
	OperationName string
	Duration      time.Duration
	Success       bool
	Timestamp     time.Time
	Metadata      map[string]string
}

// CacheMetric aggregates hit/miss counters for one cache
type CacheMetric struct {
	Hits          int64
	Misses        int64
	TotalMissTime time.Duration
	LastUpdated   time.Time
}

// HitRate returns the fraction of lookups that hit, in [0,1]
func (m CacheMetric) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// OperationStats summarizes the retained samples for one operation
type OperationStats struct {
	Count         int
	SuccessCount  int
	ErrorCount    int
	SuccessRate   float64 // percent
	AvgDuration   time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	P95           time.Duration
	P99           time.Duration
	LastTimestamp time.Time
}

// Dashboard is the aggregate health view
type Dashboard struct {
	HealthScore      int
	TotalOperations  int
	ErrorRate        float64 // percent
	AvgDuration      time.Duration
	CacheHitRate     float64 // percent, across all caches
	SlowOperations   []string
	ErrorProneOps    []string
	CacheMetrics     map[string]CacheMetric
	GeneratedAt      time.Time
	HasCacheActivity bool
}

// Monitor is an explicitly constructed, injectable service instance. Each
// test creates its own; nothing here is process-global.
type Monitor struct {
	mu         sync.RWMutex
	operations map[string][]OperationMetric
	caches     map[string]CacheMetric
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a monitor
func New(logger *zap.Logger) *Monitor {
	return &Monitor{
		operations: make(map[string][]OperationMetric),
		caches:     make(map[string]CacheMetric),
		logger:     logger,
		now:        time.Now,
	}
}

// RecordOperation appends a sample to the operation's bounded ring. Slow and
// failed operations are logged as they arrive.
func (m *Monitor) RecordOperation(name string, duration time.Duration, success bool, metadata map[string]string) {
	m.mu.Lock()
	samples := append(m.operations[name], OperationMetric{
		OperationName: name,
		Duration:      duration,
		Success:       success,
		Timestamp:     m.now(),
		Metadata:      metadata,
	})
	if len(samples) > maxSamplesPerOperation {
		samples = samples[len(samples)-maxSamplesPerOperation:]
	}
	m.operations[name] = samples
	m.mu.Unlock()

	switch {
	case duration > verySlowThreshold:
		m.logger.Error("operation very slow",
			zap.String("operation", name),
			zap.Duration("duration", duration),
		)
	case duration > slowThreshold:
		m.logger.Warn("operation slow",
			zap.String("operation", name),
			zap.Duration("duration", duration),
		)
	}
	if !success {
		m.logger.Error("operation failed",
			zap.String("operation", name),
			zap.Duration("duration", duration),
		)
	}
}

// RecordCacheOperation increments the hit or miss counter for a cache.
// Fetch time is accumulated only on miss.
func (m *Monitor) RecordCacheOperation(cacheName string, hit bool, fetchTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric := m.caches[cacheName]
	if hit {
		metric.Hits++
	} else {
		metric.Misses++
		metric.TotalMissTime += fetchTime
	}
	metric.LastUpdated = m.now()
	m.caches[cacheName] = metric
}

// OperationStats returns summarized stats for one operation name.
// ok is false when no samples are retained.
func (m *Monitor) OperationStats(name string) (OperationStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	samples := m.operations[name]
	if len(samples) == 0 {
		return OperationStats{}, false
	}

	stats := OperationStats{Count: len(samples)}
	durations := make([]time.Duration, 0, len(samples))
	var total time.Duration

	stats.MinDuration = samples[0].Duration
	for _, s := range samples {
		durations = append(durations, s.Duration)
		total += s.Duration
		if s.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		if s.Duration < stats.MinDuration {
			stats.MinDuration = s.Duration
		}
		if s.Duration > stats.MaxDuration {
			stats.MaxDuration = s.Duration
		}
		if s.Timestamp.After(stats.LastTimestamp) {
			stats.LastTimestamp = s.Timestamp
		}
	}

	stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.Count) * 100
	stats.AvgDuration = total / time.Duration(stats.Count)

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	stats.P95 = percentile(durations, 95)
	stats.P99 = percentile(durations, 99)

	return stats, true
}

// percentile computes the nearest-rank percentile of an ascending-sorted
// slice: the value at index ceil(p/100*n)-1.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Dashboard computes the aggregate health view. The score starts at 100 and
// is deducted per known bad signal; absence of data costs nothing.
func (m *Monitor) Dashboard() Dashboard {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := Dashboard{
		HealthScore:  100,
		CacheMetrics: make(map[string]CacheMetric, len(m.caches)),
		GeneratedAt:  m.now(),
	}

	var totalSamples, totalErrors int
	var totalDuration time.Duration

	for name, samples := range m.operations {
		if len(samples) == 0 {
			continue
		}

		var opTotal time.Duration
		opErrors := 0
		for _, s := range samples {
			opTotal += s.Duration
			if !s.Success {
				opErrors++
			}
		}
		opAvg := opTotal / time.Duration(len(samples))
		successRate := float64(len(samples)-opErrors) / float64(len(samples)) * 100

		if opAvg > slowThreshold {
			d.SlowOperations = append(d.SlowOperations, name)
		}
		if successRate < 90 {
			d.ErrorProneOps = append(d.ErrorProneOps, name)
		}

		totalSamples += len(samples)
		totalErrors += opErrors
		totalDuration += opTotal
	}
	sort.Strings(d.SlowOperations)
	sort.Strings(d.ErrorProneOps)

	d.TotalOperations = totalSamples
	if totalSamples > 0 {
		d.ErrorRate = float64(totalErrors) / float64(totalSamples) * 100
		d.AvgDuration = totalDuration / time.Duration(totalSamples)

		if d.ErrorRate > 5 {
			d.HealthScore -= 30
		}
		if d.AvgDuration > slowThreshold {
			d.HealthScore -= 20
		}
		if len(d.SlowOperations) > 0 {
			d.HealthScore -= 10
		}
	}

	var hits, misses int64
	for name, metric := range m.caches {
		d.CacheMetrics[name] = metric
		hits += metric.Hits
		misses += metric.Misses
	}
	if hits+misses > 0 {
		d.HasCacheActivity = true
		d.CacheHitRate = float64(hits) / float64(hits+misses) * 100
		if d.CacheHitRate < 70 {
			d.HealthScore -= 15
		}
	}

	if d.HealthScore < 0 {
		d.HealthScore = 0
	}
	if d.HealthScore > 100 {
		d.HealthScore = 100
	}

	return d
}

// Cleanup drops samples older than the retention window and cache counters
// untouched for the same span. Intended to run on an hourly tick.
func (m *Monitor) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-sampleMaxAge)
	removed := 0

	for name, samples := range m.operations {
		kept := samples[:0]
		for _, s := range samples {
			if s.Timestamp.After(cutoff) {
				kept = append(kept, s)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(m.operations, name)
		} else {
			m.operations[name] = kept
		}
	}

	for name, metric := range m.caches {
		if !metric.LastUpdated.IsZero() && metric.LastUpdated.Before(cutoff) {
			delete(m.caches, name)
		}
	}

	if removed > 0 {
		m.logger.Debug("swept expired operation samples", zap.Int("removed", removed))
	}
}
