// Package detection implements the signature and behavioral analysis
// adapters behind the threat scorer.
//
// The behavior tracker keeps bounded recent history per IP and per user
// using fixed-capacity ring buffers, and derives brute-force, request-rate,
// endpoint-scan, and timing-regularity signals on read. Nothing is
// maintained incrementally; the buffers are small enough that scanning on
// each query is cheaper than keeping aggregates fresh.
//
// Thread Safety: 16-way sharding keeps lock contention low under
// concurrent request analysis.
package detection

import (
	"hash/maphash"
	"math"
	"sync"
	"time"

	"github.com/vigilsec/vigil/pkg/ringbuf"
)

// hashSeed is the process-wide seed for maphash operations.
var hashSeed = maphash.MakeSeed()

// trackedEvent is one recorded request, kept compact because each subject
// holds up to a thousand of them.
type trackedEvent struct {
	TimestampMilli int64
	EndpointHash   uint32
	UAHash         uint32
	FailedLogin    bool
}

// subjectWindow holds the bounded history for a single IP or user.
type subjectWindow struct {
	events *ringbuf.Ring[trackedEvent]
	mu     sync.RWMutex
}

// subjectShard maps subjects to their windows with LRU eviction at cap.
type subjectShard struct {
	windows map[string]*subjectWindow
	order   []string // insertion-ordered keys for eviction scans
	mu      sync.RWMutex
}

// BehaviorConfig configures history depth and shard layout.
type BehaviorConfig struct {
	ShardCount          int
	IPHistorySize       int
	UserHistorySize     int
	MaxSubjectsPerShard int
}

func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		ShardCount:          16,
		IPHistorySize:       1000,
		UserHistorySize:     500,
		MaxSubjectsPerShard: 4096,
	}
}

// BehaviorTracker records request history per IP and per user and derives
// windowed statistics for the threat scorer. Recording never fails and
// never blocks on capacity; the oldest entry is silently dropped.
type BehaviorTracker struct {
	ipShards   []*subjectShard
	userShards []*subjectShard

	shardCount      int
	ipHistorySize   int
	userHistorySize int
	maxPerShard     int
}

func NewBehaviorTracker(cfg BehaviorConfig) *BehaviorTracker {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 16
	}
	if cfg.IPHistorySize <= 0 {
		cfg.IPHistorySize = 1000
	}
	if cfg.UserHistorySize <= 0 {
		cfg.UserHistorySize = 500
	}
	if cfg.MaxSubjectsPerShard <= 0 {
		cfg.MaxSubjectsPerShard = 4096
	}

	mkShards := func(n int) []*subjectShard {
		shards := make([]*subjectShard, n)
		for i := range shards {
			shards[i] = &subjectShard{windows: make(map[string]*subjectWindow)}
		}
		return shards
	}

	return &BehaviorTracker{
		ipShards:        mkShards(cfg.ShardCount),
		userShards:      mkShards(cfg.ShardCount),
		shardCount:      cfg.ShardCount,
		ipHistorySize:   cfg.IPHistorySize,
		userHistorySize: cfg.UserHistorySize,
		maxPerShard:     cfg.MaxSubjectsPerShard,
	}
}

func subjectHash(s string) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(s)
	return h.Sum64()
}

func hash32(s string) uint32 {
	if s == "" {
		return 0
	}
	return uint32(subjectHash(s))
}

func (t *BehaviorTracker) ipShard(ip string) *subjectShard {
	return t.ipShards[subjectHash(ip)%uint64(t.shardCount)]
}

func (t *BehaviorTracker) userShard(user string) *subjectShard {
	return t.userShards[subjectHash(user)%uint64(t.shardCount)]
}

// RecordRequest appends a request observation to the IP history and, when
// a user is known, the user history. failedLogin marks authentication
// failures so brute-force counts can be derived later.
func (t *BehaviorTracker) RecordRequest(ip, userID, endpoint, userAgent string, ts time.Time, failedLogin bool) {
	ev := trackedEvent{
		TimestampMilli: ts.UnixMilli(),
		EndpointHash:   hash32(endpoint),
		UAHash:         hash32(userAgent),
		FailedLogin:    failedLogin,
	}

	if ip != "" {
		t.record(t.ipShard(ip), ip, t.ipHistorySize, ev)
	}
	if userID != "" {
		t.record(t.userShard(userID), userID, t.userHistorySize, ev)
	}
}

func (t *BehaviorTracker) record(shard *subjectShard, key string, capacity int, ev trackedEvent) {
	shard.mu.Lock()
	window, ok := shard.windows[key]
	if !ok {
		if len(shard.windows) >= t.maxPerShard {
			shard.evictOldestLocked()
		}
		window = &subjectWindow{events: ringbuf.New[trackedEvent](capacity)}
		shard.windows[key] = window
		shard.order = append(shard.order, key)
	}
	shard.mu.Unlock()

	window.mu.Lock()
	window.events.Push(ev)
	window.mu.Unlock()
}

// evictOldestLocked drops the subject that was first inserted among those
// still present. Caller holds shard.mu.
func (s *subjectShard) evictOldestLocked() {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.windows[oldest]; ok {
			delete(s.windows, oldest)
			return
		}
	}
}

func (t *BehaviorTracker) lookup(shard *subjectShard, key string) *subjectWindow {
	shard.mu.RLock()
	window := shard.windows[key]
	shard.mu.RUnlock()
	return window
}

// RequestCount returns the number of IP requests in the trailing window.
func (t *BehaviorTracker) RequestCount(ip string, window time.Duration, now time.Time) int {
	w := t.lookup(t.ipShard(ip), ip)
	if w == nil {
		return 0
	}
	cutoff := now.Add(-window).UnixMilli()

	w.mu.RLock()
	defer w.mu.RUnlock()

	count := 0
	w.events.Do(func(ev trackedEvent) bool {
		if ev.TimestampMilli >= cutoff {
			count++
		}
		return true
	})
	return count
}

// RequestRate returns IP requests per minute over the trailing window.
func (t *BehaviorTracker) RequestRate(ip string, window time.Duration, now time.Time) float64 {
	if window <= 0 {
		return 0
	}
	return float64(t.RequestCount(ip, window, now)) / window.Minutes()
}

// DistinctEndpoints counts unique endpoints among the IP's last n events.
func (t *BehaviorTracker) DistinctEndpoints(ip string, n int) int {
	w := t.lookup(t.ipShard(ip), ip)
	if w == nil {
		return 0
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	seen := make(map[uint32]struct{})
	for _, ev := range w.events.Last(n) {
		seen[ev.EndpointHash] = struct{}{}
	}
	return len(seen)
}

// FailedLoginsByUser counts authentication failures for a user in the
// trailing window.
func (t *BehaviorTracker) FailedLoginsByUser(userID string, window time.Duration, now time.Time) int {
	return t.failedLogins(t.lookup(t.userShard(userID), userID), window, now)
}

// FailedLoginsByIP counts authentication failures from an IP in the
// trailing window.
func (t *BehaviorTracker) FailedLoginsByIP(ip string, window time.Duration, now time.Time) int {
	return t.failedLogins(t.lookup(t.ipShard(ip), ip), window, now)
}

func (t *BehaviorTracker) failedLogins(w *subjectWindow, window time.Duration, now time.Time) int {
	if w == nil {
		return 0
	}
	cutoff := now.Add(-window).UnixMilli()

	w.mu.RLock()
	defer w.mu.RUnlock()

	count := 0
	w.events.Do(func(ev trackedEvent) bool {
		if ev.FailedLogin && ev.TimestampMilli >= cutoff {
			count++
		}
		return true
	})
	return count
}

// UserAgentDiversity counts unique User-Agent values among the IP's last
// n events. Rotation across many UAs is characteristic of attack tools.
func (t *BehaviorTracker) UserAgentDiversity(ip string, n int) int {
	w := t.lookup(t.ipShard(ip), ip)
	if w == nil {
		return 0
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	seen := make(map[uint32]struct{})
	for _, ev := range w.events.Last(n) {
		if ev.UAHash != 0 {
			seen[ev.UAHash] = struct{}{}
		}
	}
	return len(seen)
}

// IntervalRegularity measures how machine-like the IP's inter-request
// timing is over its last n events. Returns a value in [0,1]: 1 means
// perfectly even spacing, 0 means human-irregular or too little data.
// Computed as 1 minus the coefficient of variation of the intervals,
// clamped at zero.
func (t *BehaviorTracker) IntervalRegularity(ip string, n int) float64 {
	w := t.lookup(t.ipShard(ip), ip)
	if w == nil {
		return 0
	}

	w.mu.RLock()
	events := w.events.Last(n)
	w.mu.RUnlock()

	if len(events) < 5 {
		return 0
	}

	intervals := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		d := float64(events[i].TimestampMilli - events[i-1].TimestampMilli)
		if d < 0 {
			d = 0
		}
		intervals = append(intervals, d)
	}

	var sum float64
	for _, d := range intervals {
		sum += d
	}
	mean := sum / float64(len(intervals))
	if mean <= 0 {
		// Sub-millisecond bursts are as regular as it gets.
		return 1
	}

	var variance float64
	for _, d := range intervals {
		diff := d - mean
		variance += diff * diff
	}
	variance /= float64(len(intervals))

	cv := math.Sqrt(variance) / mean
	if cv >= 1 {
		return 0
	}
	return 1 - cv
}

// TrackedIPs returns the number of IPs currently held across all shards.
func (t *BehaviorTracker) TrackedIPs() int {
	total := 0
	for _, shard := range t.ipShards {
		shard.mu.RLock()
		total += len(shard.windows)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup drops subjects with no activity since the cutoff. Called
// periodically by the monitor's maintenance loop; shards are swept in
// parallel the same way request analysis fans out across them.
func (t *BehaviorTracker) Cleanup(idleFor time.Duration, now time.Time) {
	cutoff := now.Add(-idleFor).UnixMilli()

	var wg sync.WaitGroup
	sweep := func(shards []*subjectShard) {
		for _, shard := range shards {
			wg.Add(1)
			go func(s *subjectShard) {
				defer wg.Done()
				cleanupShard(s, cutoff)
			}(shard)
		}
	}
	sweep(t.ipShards)
	sweep(t.userShards)
	wg.Wait()
}

func cleanupShard(shard *subjectShard, cutoff int64) {
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for key, window := range shard.windows {
		window.mu.RLock()
		n := window.events.Len()
		stale := n == 0 || window.events.At(n-1).TimestampMilli < cutoff
		window.mu.RUnlock()

		if stale {
			delete(shard.windows, key)
		}
	}

	if len(shard.order) > len(shard.windows)*2 {
		compacted := shard.order[:0]
		for _, key := range shard.order {
			if _, ok := shard.windows[key]; ok {
				compacted = append(compacted, key)
			}
		}
		shard.order = compacted
	}
}
