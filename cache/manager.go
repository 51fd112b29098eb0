package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ciotlosm/neary-sub003/events"
)

// Fetcher produces the value for a key when the cache cannot serve it.
// It is the only suspension point in the pipeline.
type Fetcher func(ctx context.Context) (any, error)

// FetchError wraps a fetcher failure that could not be absorbed by a stale
// fallback. The original cause is attached for errors.Is/As.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: fetch failed for %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Update is published to key subscribers whenever Set overwrites an entry.
type Update struct {
	Key   string    `json:"key"`
	Value any       `json:"value"`
	At    time.Time `json:"at"`
}

// Config bounds the manager as a whole. Per-prefix behavior lives in Rules.
type Config struct {
	// MaxEntries is the manager-wide entry ceiling.
	MaxEntries int
	// PressureThreshold is the probe usage ratio that triggers eviction.
	PressureThreshold float64
	// EmergencyThreshold is the usage ratio treated as emergency pressure.
	EmergencyThreshold float64
	// NormalTarget is the post-eviction entry ratio under normal pressure.
	NormalTarget float64
	// EmergencyTarget is the post-eviction entry ratio under emergency pressure.
	EmergencyTarget float64
	// Rules maps key prefixes to their cache rules.
	Rules map[string]Rule
	// Fallback applies to keys with no matching prefix rule.
	Fallback Rule
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.PressureThreshold <= 0 {
		c.PressureThreshold = 0.80
	}
	if c.EmergencyThreshold <= 0 {
		c.EmergencyThreshold = 0.95
	}
	if c.NormalTarget <= 0 {
		c.NormalTarget = 0.75
	}
	if c.EmergencyTarget <= 0 {
		c.EmergencyTarget = 0.50
	}
	if c.Rules == nil {
		c.Rules = DefaultRules()
	}
	if c.Fallback == (Rule{}) {
		c.Fallback = DefaultRule
	}
	return c
}

// Counters accumulates cache activity for stats and scrape-time metrics.
type Counters struct {
	Hits                int64 `json:"hits"`
	Misses              int64 `json:"misses"`
	StaleServes         int64 `json:"staleServes"`
	StaleFallbacks      int64 `json:"staleFallbacks"`
	Evictions           int64 `json:"evictions"`
	BackgroundRefreshes int64 `json:"backgroundRefreshes"`
	BackgroundFailures  int64 `json:"backgroundFailures"`
}

// PrefixStats is the per-prefix slice of Stats.
type PrefixStats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"sizeBytes"`
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries   int                    `json:"entries"`
	SizeBytes int64                  `json:"sizeBytes"`
	Prefixes  map[string]PrefixStats `json:"prefixes"`
	Counters  Counters               `json:"counters"`
}

// Manager is the process-wide cache. Construct once with New and share by
// reference.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	rules      *ruleSet
	store      map[string]*entry
	lru        *lruList
	refreshing map[string]struct{}
	counters   Counters
	totalSize  int64
	entryCount atomic.Int64

	sf      singleflight.Group
	probe   Probe
	log     *logrus.Logger
	updates *events.Keyed[Update]
	now     func() time.Time

	// onBackgroundFailure receives errors swallowed by stale-while-revalidate
	// refreshes so they still count against the data source's breaker.
	onBackgroundFailure func(key string, err error)
}

// Option adjusts a Manager at construction time.
type Option func(*Manager)

// WithProbe replaces the default entry-count pressure probe.
func WithProbe(p Probe) Option {
	return func(m *Manager) { m.probe = p }
}

// WithBackgroundFailureHook registers fn to observe swallowed background
// refresh errors.
func WithBackgroundFailureHook(fn func(key string, err error)) Option {
	return func(m *Manager) { m.onBackgroundFailure = fn }
}

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New constructs an empty Manager.
func New(cfg Config, log *logrus.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:        cfg,
		rules:      newRuleSet(cfg.Rules, cfg.Fallback),
		store:      make(map[string]*entry),
		lru:        newLRUList(),
		refreshing: make(map[string]struct{}),
		log:        log,
		updates:    events.NewKeyed[Update](log),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.probe == nil {
		// Reads the atomic counter, not Len, so the probe is safe to
		// consult while the manager lock is held.
		m.probe = NewEntryCountProbe(func() int { return int(m.entryCount.Load()) }, cfg.MaxEntries)
	}
	return m
}

// Get returns the value for key, consulting the fetcher per the key's rule.
//
// Fresh entries return immediately. Stale entries return immediately too
// when the rule enables stale-while-revalidate, with the refresh running in
// the background; otherwise the fetch runs synchronously and a failure falls
// open to the stale value. Missing or expired entries always fetch
// synchronously, and a failure with no usable fallback returns a FetchError.
func (m *Manager) Get(ctx context.Context, key string, fetcher Fetcher) (any, error) {
	rule, _ := m.rules.lookup(key)

	m.mu.Lock()
	e, ok := m.store[key]
	if ok {
		switch e.freshness(m.now(), rule.TTL, rule.MaxAge) {
		case Fresh:
			e.accessCount++
			m.lru.touch(key)
			m.counters.Hits++
			v := e.value
			m.mu.Unlock()
			return v, nil
		case Stale:
			if rule.StaleWhileRevalidate {
				e.accessCount++
				m.lru.touch(key)
				m.counters.Hits++
				m.counters.StaleServes++
				v := e.value
				launch := m.markRefreshing(key)
				m.mu.Unlock()
				if launch {
					go m.refresh(key, fetcher)
				}
				return v, nil
			}
		case Expired:
			// Fall through to a synchronous fetch with no fallback.
		}
	}
	m.counters.Misses++
	m.mu.Unlock()

	return m.fetchSync(ctx, key, fetcher)
}

// fetchSync runs the fetcher on the caller's goroutine, deduplicated per
// key, and falls open to a still-usable stale entry on failure.
func (m *Manager) fetchSync(ctx context.Context, key string, fetcher Fetcher) (any, error) {
	v, err, _ := m.sf.Do(key, func() (any, error) {
		val, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		m.storeValue(key, val)
		return val, nil
	})
	if err == nil {
		return v, nil
	}

	rule, _ := m.rules.lookup(key)
	m.mu.Lock()
	e, ok := m.store[key]
	if ok && e.freshness(m.now(), rule.TTL, rule.MaxAge) != Expired {
		e.accessCount++
		m.lru.touch(key)
		m.counters.StaleFallbacks++
		stale := e.value
		m.mu.Unlock()
		m.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("Fetch failed, serving last known good value")
		return stale, nil
	}
	m.mu.Unlock()
	return nil, &FetchError{Key: key, Err: err}
}

// markRefreshing claims the background refresh slot for key. The caller
// must hold the lock. Returns false when a refresh is already in flight.
func (m *Manager) markRefreshing(key string) bool {
	if _, inFlight := m.refreshing[key]; inFlight {
		return false
	}
	m.refreshing[key] = struct{}{}
	return true
}

// refresh is the fire-and-forget stale-while-revalidate path. Errors are
// swallowed after logging and reported to the background failure hook.
func (m *Manager) refresh(key string, fetcher Fetcher) {
	defer func() {
		m.mu.Lock()
		delete(m.refreshing, key)
		m.mu.Unlock()
	}()

	_, err, _ := m.sf.Do(key, func() (any, error) {
		val, err := fetcher(context.Background())
		if err != nil {
			return nil, err
		}
		m.storeValue(key, val)
		return val, nil
	})

	m.mu.Lock()
	m.counters.BackgroundRefreshes++
	if err != nil {
		m.counters.BackgroundFailures++
	}
	m.mu.Unlock()

	if err != nil {
		m.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("Background refresh failed")
		if m.onBackgroundFailure != nil {
			m.onBackgroundFailure(key, err)
		}
	}
}

// Set unconditionally overwrites key with value, resetting its age, and
// publishes a cache-updated event for the key's subscribers.
func (m *Manager) Set(key string, value any) {
	m.storeValue(key, value)
	m.updates.Publish(key, Update{Key: key, Value: value, At: m.now()})
}

// storeValue writes the entry and runs the eviction checks. The freshly
// written key is exempt from eviction.
func (m *Manager) storeValue(key string, value any) {
	size := estimateSize(value)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.store[key]; ok {
		m.totalSize -= e.sizeBytes
		e.value = value
		e.createdAt = now
		e.updatedAt = now
		e.sizeBytes = size
	} else {
		m.store[key] = &entry{
			key:       key,
			value:     value,
			createdAt: now,
			updatedAt: now,
			sizeBytes: size,
		}
		m.entryCount.Add(1)
	}
	m.totalSize += size
	m.lru.touch(key)

	m.evictPrefixOverflow(key)
	m.evictUnderPressure(key)
}

// evictPrefixOverflow enforces the per-prefix entry ceiling, removing the
// least recently used entries of that prefix.
func (m *Manager) evictPrefixOverflow(justWritten string) {
	rule, prefix := m.rules.lookup(justWritten)
	if rule.MaxEntries <= 0 {
		return
	}
	for m.prefixCount(prefix) > rule.MaxEntries {
		victim := m.lru.oldestWithPrefix(prefix, justWritten)
		if victim == "" {
			return
		}
		m.evict(victim)
	}
}

// evictUnderPressure consults the probe and evicts globally toward the
// normal or emergency target ratio.
func (m *Manager) evictUnderPressure(justWritten string) {
	usage := m.probe.Usage()
	overCeiling := len(m.store) > m.cfg.MaxEntries
	if usage < m.cfg.PressureThreshold && !overCeiling {
		return
	}

	target := int(float64(m.cfg.MaxEntries) * m.cfg.NormalTarget)
	if usage >= m.cfg.EmergencyThreshold {
		target = int(float64(m.cfg.MaxEntries) * m.cfg.EmergencyTarget)
	}

	evicted := 0
	for len(m.store) > target {
		victim := m.lru.oldestExcept(justWritten)
		if victim == "" {
			break
		}
		m.evict(victim)
		evicted++
	}
	if evicted > 0 {
		m.log.WithFields(logrus.Fields{
			"evicted": evicted,
			"usage":   usage,
			"entries": len(m.store),
		}).Info("Cache evicted entries under pressure")
	}
}

// evict removes key. Caller holds the lock.
func (m *Manager) evict(key string) {
	if e, ok := m.store[key]; ok {
		m.totalSize -= e.sizeBytes
		delete(m.store, key)
		m.lru.remove(key)
		m.entryCount.Add(-1)
		m.counters.Evictions++
	}
}

// prefixCount counts entries under prefix. Caller holds the lock.
func (m *Manager) prefixCount(prefix string) int {
	n := 0
	for key := range m.store {
		if keyPrefix(key) == prefix {
			n++
		}
	}
	return n
}

// Invalidate removes one entry. It emits no fetch activity.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.store[key]; ok {
		m.totalSize -= e.sizeBytes
		delete(m.store, key)
		m.lru.remove(key)
		m.entryCount.Add(-1)
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix.
// Used when a configuration change outdates derived entries.
func (m *Manager) InvalidatePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, e := range m.store {
		if keyPrefix(key) == prefix {
			m.totalSize -= e.sizeBytes
			delete(m.store, key)
			m.lru.remove(key)
			m.entryCount.Add(-1)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]*entry)
	m.lru = newLRUList()
	m.totalSize = 0
	m.entryCount.Store(0)
}

// Len reports the current entry count.
func (m *Manager) Len() int {
	return int(m.entryCount.Load())
}

// Stats returns the entry count, approximate total size and the per-prefix
// breakdown, plus the activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefixes := make(map[string]PrefixStats)
	for key, e := range m.store {
		p := keyPrefix(key)
		ps := prefixes[p]
		ps.Entries++
		ps.SizeBytes += e.sizeBytes
		prefixes[p] = ps
	}
	return Stats{
		Entries:   len(m.store),
		SizeBytes: m.totalSize,
		Prefixes:  prefixes,
		Counters:  m.counters,
	}
}

// OnUpdate subscribes fn to cache-updated events for key and returns the
// unsubscribe closure.
func (m *Manager) OnUpdate(key string, fn func(Update)) func() {
	return m.updates.Subscribe(key, fn)
}

// Peek returns the raw value and freshness for key without touching access
// order or fetch activity. Debug and test helper.
func (m *Manager) Peek(key string) (any, Freshness, bool) {
	rule, _ := m.rules.lookup(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[key]
	if !ok {
		return nil, Expired, false
	}
	return e.value, e.freshness(m.now(), rule.TTL, rule.MaxAge), true
}
