package cache

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quietbeacon/epi/internal/search"
)

// Cache configuration constants
const (
	DefaultMaxEntries      = 512
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// CachedLookup represents one cached lookup result set
type CachedLookup struct {
	Results     []search.Result
	CachedAt    int64 // Unix nano for atomic compare
	AccessCount int64 // Atomic counter
	Generation  uint64
	Query       string
}

// LookupCache provides lock-free caching of lookup results using sync.Map.
// Keys combine the snapshot generation with the normalized query, so a
// reload never serves results computed against a previous snapshot; stale
// generations are swept lazily.
type LookupCache struct {
	entries sync.Map // map[string]*CachedLookup

	// Configuration (read-only after creation)
	maxEntries int
	ttlNanos   int64
	enabled    bool

	// Atomic counters
	hits          int64
	misses        int64
	evictions     int64
	totalRequests int64

	// Approximate entry count (updated on cleanup)
	entryCount int64

	createdAt   time.Time
	lastCleanup int64

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Config defines cache configuration options
type Config struct {
	Enabled         bool
	MaxEntries      int
	TTL             time.Duration
	AutoCleanup     bool
	CleanupInterval time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxEntries:      DefaultMaxEntries,
		TTL:             DefaultTTL,
		AutoCleanup:     true,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// New creates a lookup cache
func New(config Config) *LookupCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	lc := &LookupCache{
		maxEntries:  config.MaxEntries,
		ttlNanos:    config.TTL.Nanoseconds(),
		enabled:     config.Enabled,
		createdAt:   time.Now(),
		lastCleanup: time.Now().UnixNano(),
		stopCleanup: make(chan struct{}),
	}

	if config.Enabled && config.AutoCleanup {
		interval := config.CleanupInterval
		if interval <= 0 {
			interval = DefaultCleanupInterval
		}
		go lc.runAutoCleanup(interval)
	}

	return lc
}

// generateKey creates a cache key from generation and normalized query
func generateKey(generation uint64, query string) string {
	var b strings.Builder
	b.Grow(21 + len(query))
	b.WriteString(strconv.FormatUint(generation, 10))
	b.WriteByte(':')
	b.WriteString(query)
	return b.String()
}

// Get retrieves cached results for a query against a snapshot generation
func (lc *LookupCache) Get(generation uint64, query string) ([]search.Result, bool) {
	if !lc.enabled {
		return nil, false
	}

	atomic.AddInt64(&lc.totalRequests, 1)
	now := time.Now().UnixNano()

	key := generateKey(generation, query)
	if val, ok := lc.entries.Load(key); ok {
		cached := val.(*CachedLookup)
		if now-atomic.LoadInt64(&cached.CachedAt) <= atomic.LoadInt64(&lc.ttlNanos) {
			atomic.AddInt64(&cached.AccessCount, 1)
			atomic.AddInt64(&lc.hits, 1)
			return cached.Results, true
		}
		// Expired - delete lazily
		lc.entries.Delete(key)
		atomic.AddInt64(&lc.entryCount, -1)
	}

	atomic.AddInt64(&lc.misses, 1)
	return nil, false
}

// Put stores results with size limiting
func (lc *LookupCache) Put(generation uint64, query string, results []search.Result) {
	if !lc.enabled {
		return
	}

	cached := &CachedLookup{
		Results:     results,
		CachedAt:    time.Now().UnixNano(),
		AccessCount: 1,
		Generation:  generation,
		Query:       query,
	}

	key := generateKey(generation, query)
	if _, loaded := lc.entries.LoadOrStore(key, cached); !loaded {
		count := atomic.AddInt64(&lc.entryCount, 1)
		if count > int64(lc.maxEntries) {
			lc.evictOldest()
		}
	}
}

// evictOldest removes the entry with the oldest CachedAt
func (lc *LookupCache) evictOldest() {
	var oldestKey interface{}
	var oldestTime int64 = time.Now().UnixNano()

	lc.entries.Range(func(key, value interface{}) bool {
		cached := value.(*CachedLookup)
		cachedAt := atomic.LoadInt64(&cached.CachedAt)
		if cachedAt < oldestTime {
			oldestTime = cachedAt
			oldestKey = key
		}
		return true
	})

	if oldestKey != nil {
		lc.entries.Delete(oldestKey)
		atomic.AddInt64(&lc.entryCount, -1)
		atomic.AddInt64(&lc.evictions, 1)
	}
}

// InvalidateBefore removes entries cached against generations older than
// the given one. Called after a snapshot swap.
func (lc *LookupCache) InvalidateBefore(generation uint64) int {
	removed := int64(0)

	lc.entries.Range(func(key, value interface{}) bool {
		cached := value.(*CachedLookup)
		if cached.Generation < generation {
			lc.entries.Delete(key)
			removed++
		}
		return true
	})

	atomic.AddInt64(&lc.entryCount, -removed)
	atomic.AddInt64(&lc.evictions, removed)
	return int(removed)
}

// CleanExpired removes expired entries
func (lc *LookupCache) CleanExpired() int {
	now := time.Now().UnixNano()
	ttl := atomic.LoadInt64(&lc.ttlNanos)
	cleaned := int64(0)
	remaining := int64(0)

	lc.entries.Range(func(key, value interface{}) bool {
		cached := value.(*CachedLookup)
		if now-atomic.LoadInt64(&cached.CachedAt) > ttl {
			lc.entries.Delete(key)
			cleaned++
		} else {
			remaining++
		}
		return true
	})

	atomic.StoreInt64(&lc.entryCount, remaining)
	atomic.AddInt64(&lc.evictions, cleaned)
	atomic.StoreInt64(&lc.lastCleanup, now)
	return int(cleaned)
}

// runAutoCleanup runs periodic cleanup until Close
func (lc *LookupCache) runAutoCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lc.CleanExpired()
		case <-lc.stopCleanup:
			return
		}
	}
}

// Close stops the auto-cleanup goroutine
func (lc *LookupCache) Close() {
	lc.stopOnce.Do(func() {
		close(lc.stopCleanup)
	})
}

// Stats returns cache statistics
func (lc *LookupCache) Stats() Stats {
	hits := atomic.LoadInt64(&lc.hits)
	misses := atomic.LoadInt64(&lc.misses)
	totalRequests := atomic.LoadInt64(&lc.totalRequests)

	hitRate := float64(0)
	if totalRequests > 0 {
		hitRate = float64(hits) / float64(totalRequests)
	}

	return Stats{
		Enabled:       lc.enabled,
		Hits:          hits,
		Misses:        misses,
		Evictions:     atomic.LoadInt64(&lc.evictions),
		TotalRequests: totalRequests,
		HitRate:       hitRate,
		Entries:       int(atomic.LoadInt64(&lc.entryCount)),
		MaxEntries:    lc.maxEntries,
		TTL:           time.Duration(atomic.LoadInt64(&lc.ttlNanos)),
		CreatedAt:     lc.createdAt,
		LastCleanup:   time.Unix(0, atomic.LoadInt64(&lc.lastCleanup)),
		Uptime:        time.Since(lc.createdAt),
		Status:        healthStatus(hitRate, totalRequests),
	}
}

// Stats holds cache statistics
type Stats struct {
	Enabled       bool          `json:"enabled"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Evictions     int64         `json:"evictions"`
	TotalRequests int64         `json:"total_requests"`
	HitRate       float64       `json:"hit_rate"`
	Entries       int           `json:"entries"`
	MaxEntries    int           `json:"max_entries"`
	TTL           time.Duration `json:"ttl"`
	CreatedAt     time.Time     `json:"created_at"`
	LastCleanup   time.Time     `json:"last_cleanup"`
	Uptime        time.Duration `json:"uptime"`
	Status        string        `json:"status"`
}

// Clear removes all entries and resets statistics
func (lc *LookupCache) Clear() {
	lc.entries.Range(func(key, _ interface{}) bool {
		lc.entries.Delete(key)
		return true
	})

	atomic.StoreInt64(&lc.hits, 0)
	atomic.StoreInt64(&lc.misses, 0)
	atomic.StoreInt64(&lc.evictions, 0)
	atomic.StoreInt64(&lc.totalRequests, 0)
	atomic.StoreInt64(&lc.entryCount, 0)
	atomic.StoreInt64(&lc.lastCleanup, time.Now().UnixNano())
}

// UpdateTTL updates TTL and cleans newly expired entries
func (lc *LookupCache) UpdateTTL(ttl time.Duration) {
	atomic.StoreInt64(&lc.ttlNanos, ttl.Nanoseconds())
	lc.CleanExpired()
}

func healthStatus(hitRate float64, totalRequests int64) string {
	if totalRequests == 0 {
		return "cold"
	}
	switch {
	case hitRate >= 0.95:
		return "excellent"
	case hitRate >= 0.85:
		return "good"
	case hitRate >= 0.70:
		return "fair"
	default:
		return "poor"
	}
}
