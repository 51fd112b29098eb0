package neary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ciotlosm/neary-sub003/activity"
	"github.com/ciotlosm/neary-sub003/breaker"
	"github.com/ciotlosm/neary-sub003/cache"
	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/degrade"
	"github.com/ciotlosm/neary-sub003/events"
	"github.com/ciotlosm/neary-sub003/feed"
	"github.com/ciotlosm/neary-sub003/geo"
	"github.com/ciotlosm/neary-sub003/metrics"
	"github.com/ciotlosm/neary-sub003/stops"
	"github.com/ciotlosm/neary-sub003/transit"
)

// Breaker component names. Every upstream the pipeline can lose has its own
// circuit so one failing feed does not blind the others.
const (
	ComponentVehicleFeed = "vehicle-feed"
	ComponentArrivalFeed = "arrival-feed"
)

// Cache keys owned by the Core.
const (
	vehiclesKey = "vehicles:current"
	arrivalsKey = "arrivals:current"
)

// ErrNoFeed is returned by live-data operations when the Core was built
// without a realtime feed.
var ErrNoFeed = errors.New("neary: no realtime feed configured")

// Feed is the realtime data source. *feed.Client satisfies it; tests
// substitute scripted sources.
type Feed interface {
	FetchVehicles(ctx context.Context) ([]transit.Vehicle, error)
	FetchArrivals(ctx context.Context) (feed.Arrivals, error)
}

// VehicleSnapshot is one display-ready vehicle list. Degraded is non-nil
// when a fallback produced the list; its confidence and limitations belong
// in the rendered output, not in a log nobody reads.
type VehicleSnapshot struct {
	Vehicles []transit.Vehicle `json:"vehicles"`
	Degraded *degrade.Event    `json:"degraded,omitempty"`
}

// DisplayUpdate is the result of one full pipeline pass.
type DisplayUpdate struct {
	Snapshot    VehicleSnapshot           `json:"snapshot"`
	Activity    transit.ActivityMap       `json:"activity"`
	Displayed   []transit.Vehicle         `json:"displayed"`
	Transitions []transit.RouteTransition `json:"transitions,omitempty"`
}

// Core wires the cache, breakers, degradation coordinator, configuration
// manager and analyzer into one facade. Construct once with NewCore and
// share by reference; all methods are safe for concurrent use.
type Core struct {
	log      *logrus.Logger
	cache    *cache.Manager
	breakers *breaker.Table
	degrader *degrade.Coordinator
	settings *config.Manager
	analyzer *activity.Analyzer
	metrics  *metrics.Set

	feed  Feed
	stops *stops.Index

	transitions *events.Subject[transit.RouteTransition]

	mu           sync.Mutex
	lastActivity transit.ActivityMap

	now func() time.Time
}

// CoreOption adjusts a Core at construction time.
type CoreOption func(*coreOptions)

type coreOptions struct {
	feed    Feed
	stops   *stops.Index
	metrics *metrics.Set
	now     func() time.Time
}

// WithFeed wires the realtime data source.
func WithFeed(f Feed) CoreOption {
	return func(o *coreOptions) { o.feed = f }
}

// WithStops wires the static stop index used for direction inference and
// journey enrichment.
func WithStops(x *stops.Index) CoreOption {
	return func(o *coreOptions) { o.stops = x }
}

// WithMetrics replaces the default metric set, for processes that register
// against their own prometheus registry.
func WithMetrics(s *metrics.Set) CoreOption {
	return func(o *coreOptions) { o.metrics = s }
}

// WithCoreClock replaces the wall clock across every subsystem the Core
// builds. Tests drive TTLs and breaker timeouts through this.
func WithCoreClock(now func() time.Time) CoreOption {
	return func(o *coreOptions) { o.now = now }
}

// NewCore builds the pipeline from the application configuration. Invalid
// filter fields are replaced with their defaults and recorded as
// degradation events rather than failing startup.
func NewCore(cfg config.AppConfig, log *logrus.Logger, opts ...CoreOption) *Core {
	if log == nil {
		log = logrus.StandardLogger()
	}
	o := coreOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewSet()
	}

	c := &Core{
		log:         log,
		metrics:     o.metrics,
		feed:        o.feed,
		stops:       o.stops,
		transitions: events.NewSubject[transit.RouteTransition](log),
		now:         o.now,
	}

	c.breakers = breaker.NewTable(breakerConfig(cfg.Breaker), log,
		breaker.WithClock(o.now),
		breaker.WithTransitionHook(func(component string, from, to breaker.State) {
			c.metrics.RecordBreakerTransition(component, string(to))
		}),
	)

	c.degrader = degrade.NewCoordinator(c.breakers, log,
		degrade.WithCoordinatorClock(o.now),
		degrade.WithEventHook(func(ev degrade.Event) {
			c.metrics.RecordDegradation(ev.Level.String(), string(ev.Strategy))
		}),
	)

	c.cache = cache.New(cacheConfig(cfg.Cache), log,
		cache.WithClock(o.now),
		cache.WithBackgroundFailureHook(func(key string, err error) {
			// Breaker accounting happens inside the guarded fetcher; the
			// hook counts failures that stale serving would otherwise hide.
			c.metrics.RecordRefreshFailure(keyPrefix(key))
		}),
	)

	var fieldErrs []config.FieldError
	c.settings, fieldErrs = config.NewManager(cfg.Filter, log,
		config.WithManagerClock(o.now),
		config.WithApplyHook(func(previous, current config.FilterConfig) {
			c.cache.InvalidatePrefix(activity.MemoPrefix)
		}),
	)
	for _, fe := range fieldErrs {
		c.degrader.ConfigFieldFallback(fe.Field, fe.Reason)
	}

	c.analyzer = activity.New(c.cache, log, activity.WithClock(o.now))
	return c
}

// keyPrefix is the cache key's namespace, the part before the first colon.
func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// breakerConfig converts the yaml-facing tuning into breaker terms.
func breakerConfig(cfg config.BreakerConfig) breaker.Config {
	return breaker.Config{
		FailureThreshold:     cfg.FailureThreshold,
		RecoveryTimeout:      time.Duration(cfg.RecoveryTimeoutMS) * time.Millisecond,
		ForgivenessThreshold: cfg.ForgivenessThreshold,
	}
}

// cacheConfig converts the yaml-facing cache section into manager terms.
// Absent rule sets fall back to the built-in pipeline rules.
func cacheConfig(cfg config.CacheConfig) cache.Config {
	out := cache.Config{
		MaxEntries:         cfg.MaxEntries,
		PressureThreshold:  cfg.PressureThreshold,
		EmergencyThreshold: cfg.EmergencyThreshold,
	}
	if len(cfg.Rules) > 0 {
		out.Rules = make(map[string]cache.Rule, len(cfg.Rules))
		for prefix, r := range cfg.Rules {
			out.Rules[prefix] = cache.Rule{
				TTL:                  time.Duration(r.TTLSeconds) * time.Second,
				MaxAge:               time.Duration(r.MaxAgeSeconds) * time.Second,
				StaleWhileRevalidate: r.StaleWhileRevalidate,
				MaxEntries:           r.MaxEntries,
			}
		}
	}
	return out
}

// Cache exposes the cache manager for direct get/set/invalidate/clear/stats
// access and per-key update subscriptions.
func (c *Core) Cache() *cache.Manager { return c.cache }

// Settings exposes the live filter configuration manager.
func (c *Core) Settings() *config.Manager { return c.settings }

// Degrader exposes the degradation coordinator for level and history reads.
func (c *Core) Degrader() *degrade.Coordinator { return c.degrader }

// OnCacheUpdate subscribes fn to overwrites of key. The returned function
// unsubscribes.
func (c *Core) OnCacheUpdate(key string, fn func(cache.Update)) func() {
	return c.cache.OnUpdate(key, fn)
}

// OnConfigChange subscribes fn to applied configuration updates. The
// returned function unsubscribes.
func (c *Core) OnConfigChange(fn func(config.Change)) func() {
	return c.settings.OnChange(fn)
}

// OnRouteTransition subscribes fn to busy/quiet transitions. The returned
// function unsubscribes.
func (c *Core) OnRouteTransition(fn func(transit.RouteTransition)) func() {
	return c.transitions.Subscribe(fn)
}

// BreakerState reports the component's circuit snapshot.
func (c *Core) BreakerState(component string) breaker.Snapshot {
	return c.breakers.State(component)
}

// ResetBreaker forces the component's circuit back to closed.
func (c *Core) ResetBreaker(component string) {
	c.breakers.Reset(component)
}

// guarded wraps a fetcher with the component's circuit breaker, so every
// real upstream call is counted exactly once whether the cache invoked it
// synchronously or from a background refresh.
func (c *Core) guarded(component string, fetch cache.Fetcher) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		br := c.breakers.For(component)
		if err := br.Allow(); err != nil {
			return nil, err
		}
		v, err := fetch(ctx)
		if err != nil {
			br.RecordFailure()
			return nil, err
		}
		br.RecordSuccess()
		return v, nil
	}
}

// Vehicles returns the current vehicle snapshot, fetching through the cache
// when the entry has aged out. Failures degrade instead of propagating: a
// usable stale snapshot is served with a USE_CACHE event, and only when
// nothing cached remains does the caller see an empty default list together
// with the causing error.
func (c *Core) Vehicles(ctx context.Context) (VehicleSnapshot, error) {
	if c.feed == nil {
		return VehicleSnapshot{Vehicles: []transit.Vehicle{}}, ErrNoFeed
	}
	v, err := c.cache.Get(ctx, vehiclesKey, c.guarded(ComponentVehicleFeed, func(ctx context.Context) (any, error) {
		return c.feed.FetchVehicles(ctx)
	}))
	if err != nil {
		return c.vehiclesFallback(err)
	}
	vehicles, ok := v.([]transit.Vehicle)
	if !ok {
		c.log.WithField("key", vehiclesKey).Error("Cached vehicle snapshot has unexpected type")
		return c.vehiclesFallback(&cache.FetchError{Key: vehiclesKey, Err: errors.New("unexpected cached type")})
	}
	snap := VehicleSnapshot{Vehicles: vehicles}
	if ev, degraded := c.staleServeEvent(); degraded {
		snap.Degraded = &ev
	}
	return snap, nil
}

// staleServeEvent reports whether the snapshot just served was a stale one
// kept alive by an unhealthy feed. Stale serves with a closed breaker are
// ordinary revalidation traffic and stay silent.
func (c *Core) staleServeEvent() (degrade.Event, bool) {
	_, freshness, ok := c.cache.Peek(vehiclesKey)
	if !ok || freshness == cache.Fresh {
		return degrade.Event{}, false
	}
	if c.breakers.State(ComponentVehicleFeed).State == breaker.StateClosed {
		return degrade.Event{}, false
	}
	ev := c.degrader.Degrade(degrade.FailureVehicleData, degrade.LevelModerate,
		degrade.WithComponents(ComponentVehicleFeed),
		degrade.WithRecoveryActions("wait for vehicle feed recovery"))
	return ev, true
}

// vehiclesFallback is the no-live-data path: empty defaults at SEVERE, with
// the cause returned so the caller can offer a retry.
func (c *Core) vehiclesFallback(cause error) (VehicleSnapshot, error) {
	ev := c.degrader.Degrade(degrade.FailureVehicleData, degrade.LevelSevere,
		degrade.WithComponents(ComponentVehicleFeed),
		degrade.WithRecoveryActions("retry", "check feed configuration"))
	c.log.WithError(cause).Error("Vehicle feed unavailable with no cached fallback")
	return VehicleSnapshot{Vehicles: []transit.Vehicle{}, Degraded: &ev}, cause
}

// Arrivals returns the expected-arrival lookup from the trip updates feed,
// cached and breaker-guarded the same way vehicle positions are. Arrivals
// only refine direction confidence, so failures return the zero lookup and
// never degrade the display.
func (c *Core) Arrivals(ctx context.Context) (feed.Arrivals, error) {
	if c.feed == nil {
		return feed.Arrivals{}, ErrNoFeed
	}
	v, err := c.cache.Get(ctx, arrivalsKey, c.guarded(ComponentArrivalFeed, func(ctx context.Context) (any, error) {
		return c.feed.FetchArrivals(ctx)
	}))
	if err != nil {
		return feed.Arrivals{}, err
	}
	arrivals, ok := v.(feed.Arrivals)
	if !ok {
		return feed.Arrivals{}, &cache.FetchError{Key: arrivalsKey, Err: errors.New("unexpected cached type")}
	}
	return arrivals, nil
}

// SetVehicles seeds the vehicle snapshot directly, bypassing the feed. Used
// when positions arrive from a local file instead of a URL.
func (c *Core) SetVehicles(vehicles []transit.Vehicle) {
	c.cache.Set(vehiclesKey, vehicles)
}

// AnalyzeRouteActivity classifies every route in the snapshot as busy or
// quiet under the current configuration. The returned map is the caller's
// to keep; the Core retains its own copy as the fallback for later
// filtering calls that arrive without one.
func (c *Core) AnalyzeRouteActivity(vehicles []transit.Vehicle) transit.ActivityMap {
	cfg := c.settings.Current()
	if cfg.PerformanceMonitoring {
		defer func(start time.Time) {
			c.metrics.ObserveClassify(time.Since(start))
		}(time.Now())
	}
	m := c.analyzer.Analyze(vehicles, cfg)

	c.mu.Lock()
	c.lastActivity = m
	c.mu.Unlock()
	return m.Clone()
}

// FilterVehicles trims the snapshot to what the display should show: every
// vehicle on a quiet route, and busy-route vehicles within the configured
// distance of the reference point. A nil activity map falls back to the
// last classification; with no classification at all, filtering is skipped
// and everything passes, which is the documented fail-open behavior.
func (c *Core) FilterVehicles(vehicles []transit.Vehicle, activityMap transit.ActivityMap, reference geo.Coordinate) []transit.Vehicle {
	cfg := c.settings.Current()
	if cfg.PerformanceMonitoring {
		defer func(start time.Time) {
			c.metrics.ObserveFilter(time.Since(start))
		}(time.Now())
	}

	if activityMap == nil {
		if fallback := c.lastActivitySnapshot(); fallback != nil {
			ev := c.degrader.Degrade(degrade.FailureRouteData, degrade.LevelModerate,
				degrade.WithComponents("route-activity"))
			c.log.WithField("limitations", ev.Limitations).Warn("Filtering against last known route activity")
			activityMap = fallback
		} else {
			ev := c.degrader.Degrade(degrade.FailureRouteData, degrade.LevelSevere,
				degrade.WithComponents("route-activity"))
			c.log.WithField("limitations", ev.Limitations).Warn("No route activity available, filtering skipped")
		}
	}

	out := c.analyzer.Filter(vehicles, activityMap, reference, cfg)
	c.metrics.SetVehiclesDisplayed(len(out))
	return out
}

func (c *Core) lastActivitySnapshot() transit.ActivityMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastActivity == nil {
		return nil
	}
	return c.lastActivity.Clone()
}

// DetectRouteTransitions reports routes whose classification flipped
// between two activity maps, publishes each to transition subscribers, and
// counts them.
func (c *Core) DetectRouteTransitions(previous, current transit.ActivityMap, delta *transit.ConfigDelta) []transit.RouteTransition {
	detected := c.analyzer.DetectTransitions(previous, current, delta)
	for _, tr := range detected {
		c.transitions.Publish(tr)
	}
	c.metrics.RecordTransitions(len(detected))
	return detected
}

// Refresh runs one full pipeline pass: fetch, classify, filter, detect
// transitions against the previous classification. The returned error
// mirrors Vehicles: non-nil only when the snapshot had no fallback, and the
// update is still usable then (empty display set, degradation attached).
func (c *Core) Refresh(ctx context.Context, reference geo.Coordinate) (DisplayUpdate, error) {
	snap, err := c.Vehicles(ctx)
	previous := c.lastActivitySnapshot()
	act := c.AnalyzeRouteActivity(snap.Vehicles)
	displayed := c.FilterVehicles(snap.Vehicles, act, reference)
	detected := c.DetectRouteTransitions(previous, act, nil)
	return DisplayUpdate{
		Snapshot:    snap,
		Activity:    act,
		Displayed:   displayed,
		Transitions: detected,
	}, err
}

// UpdateConfig validates and applies a new filter configuration. Invalid
// fields are replaced with their defaults, each recorded as a FIELD_DEFAULT
// degradation; the applied configuration is returned. A concurrent update
// in flight returns config.UpdateInProgressError untouched.
func (c *Core) UpdateConfig(candidate config.FilterConfig) (config.FilterConfig, error) {
	applied, fieldErrs, err := c.settings.Update(candidate)
	for _, fe := range fieldErrs {
		c.degrader.ConfigFieldFallback(fe.Field, fe.Reason)
	}
	return applied, err
}

// InferDirection estimates whether the vehicle is arriving at, stopped at,
// or has departed the target stop, graded by the schedule evidence the
// static index holds for its trip. Without a static index the estimate
// falls back to sequence-only confidence.
func (c *Core) InferDirection(v transit.Vehicle, targetStopID string, at time.Time) transit.DirectionEstimate {
	q := activity.DirectionQuery{
		CurrentStopSeq: v.StopSequence,
		TargetStopID:   targetStopID,
		Now:            at,
	}
	if c.stops != nil && v.TripID != "" {
		serviceDay := at.In(c.stops.Timezone())
		for _, st := range c.stops.TripSchedule(v.TripID) {
			visit := activity.StopVisit{StopID: st.StopID, Sequence: st.Sequence}
			if st.Arrival >= 0 {
				visit.ScheduledArrival = c.stops.ResolveClock(st.Arrival, serviceDay)
			}
			q.TripStops = append(q.TripStops, visit)
		}
	}
	return c.analyzer.InferDirection(q)
}
