package activity

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ciotlosm/neary-sub003/cache"
	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/transit"
)

// MemoPrefix is the cache key prefix under which classification results are
// stored. Config updates invalidate this prefix to force recomputation.
const MemoPrefix = "route-activity"

// Analyzer owns the route classification pipeline. A nil cache manager
// disables memoization and every call recomputes.
type Analyzer struct {
	cache *cache.Manager
	log   *logrus.Logger
	now   func() time.Time
	newID func() string
}

// Option adjusts an Analyzer.
type Option func(*Analyzer)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithIDGenerator replaces the transition event ID source.
func WithIDGenerator(fn func() string) Option {
	return func(a *Analyzer) { a.newID = fn }
}

// New builds an Analyzer backed by the given cache manager.
func New(c *cache.Manager, log *logrus.Logger, opts ...Option) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &Analyzer{
		cache: c,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classify groups vehicles by route and labels each route busy when its
// vehicle count reaches threshold, quiet otherwise. Vehicles without a route
// ID are skipped. Thresholds below 1 are treated as 1.
func Classify(vehicles []transit.Vehicle, threshold int, at time.Time) transit.ActivityMap {
	if threshold < 1 {
		threshold = 1
	}
	counts := make(map[string]int)
	for _, v := range vehicles {
		if v.RouteID == "" {
			continue
		}
		counts[v.RouteID]++
	}
	out := make(transit.ActivityMap, len(counts))
	for routeID, n := range counts {
		classification := transit.ClassificationQuiet
		if n >= threshold {
			classification = transit.ClassificationBusy
		}
		out[routeID] = transit.RouteActivity{
			RouteID:        routeID,
			VehicleCount:   n,
			Classification: classification,
			ComputedAt:     at,
		}
	}
	return out
}

// Analyze returns the busy/quiet map for the snapshot, memoized by the set
// of vehicle IDs plus the thresholds in cfg. The returned map is an
// independent copy the caller may mutate.
func (a *Analyzer) Analyze(vehicles []transit.Vehicle, cfg config.FilterConfig) transit.ActivityMap {
	threshold := cfg.BusyRouteThreshold
	if threshold < 1 {
		a.log.WithField("busyRouteThreshold", cfg.BusyRouteThreshold).
			Warn("busy route threshold below 1, clamping")
		threshold = 1
	}
	if a.cache == nil {
		return Classify(vehicles, threshold, a.now())
	}
	key := memoKey(vehicles, threshold, cfg.DistanceFilterThreshold)
	v, err := a.cache.Get(context.Background(), key, func(context.Context) (any, error) {
		return Classify(vehicles, threshold, a.now()), nil
	})
	if err != nil {
		a.log.WithError(err).WithField("key", key).
			Warn("route activity memoization unavailable, recomputing")
		return Classify(vehicles, threshold, a.now())
	}
	m, ok := v.(transit.ActivityMap)
	if !ok {
		a.log.WithField("key", key).Warn("unexpected cached value type, recomputing")
		return Classify(vehicles, threshold, a.now())
	}
	return m.Clone()
}

// memoKey hashes the vehicle ID set and the filtering thresholds. Duplicate
// IDs collapse so the key depends on the set, not the slice.
func memoKey(vehicles []transit.Vehicle, threshold int, distance float64) string {
	ids := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.ID)
	}
	sort.Strings(ids)
	h := fnv.New64a()
	prev := ""
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		h.Write([]byte(id))
		h.Write([]byte{0})
		prev = id
	}
	fmt.Fprintf(h, "t=%d;d=%.2f", threshold, distance)
	return MemoPrefix + ":" + strconv.FormatUint(h.Sum64(), 16)
}
