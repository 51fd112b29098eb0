package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Set carries the pipeline collectors. Construct with NewSet; registration
// tolerates an already-registered duplicate so repeated wiring in tests is
// harmless.
type Set struct {
	classifyDuration prometheus.Histogram
	filterDuration   prometheus.Histogram
	breakerChanges   *prometheus.CounterVec
	degradations     *prometheus.CounterVec
	refreshFailures  *prometheus.CounterVec
	transitions      prometheus.Counter
	vehiclesShown    prometheus.Gauge

	initOnce    sync.Once
	initialized bool
}

// NewSet builds and registers the pipeline collectors.
func NewSet() *Set {
	s := &Set{}
	s.init(prometheus.DefaultRegisterer)
	return s
}

// NewSetWithRegisterer registers against reg instead of the default
// registerer. Used by tests to isolate registries.
func NewSetWithRegisterer(reg prometheus.Registerer) *Set {
	s := &Set{}
	s.init(reg)
	return s
}

func (s *Set) init(reg prometheus.Registerer) {
	s.initOnce.Do(func() {
		s.classifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neary",
			Subsystem: "pipeline",
			Name:      "classify_duration_seconds",
			Help:      "Latency of route activity classification",
			Buckets:   durationBuckets,
		})
		s.filterDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neary",
			Subsystem: "pipeline",
			Name:      "filter_duration_seconds",
			Help:      "Latency of vehicle display filtering",
			Buckets:   durationBuckets,
		})
		s.breakerChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neary",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"component", "to"})
		s.degradations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neary",
			Subsystem: "degrade",
			Name:      "events_total",
			Help:      "Degradation events by level and strategy",
		}, []string{"level", "strategy"})
		s.refreshFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neary",
			Subsystem: "cache",
			Name:      "refresh_failures_total",
			Help:      "Background revalidations that failed upstream",
		}, []string{"prefix"})
		s.transitions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neary",
			Subsystem: "pipeline",
			Name:      "route_transitions_total",
			Help:      "Route busy/quiet transitions detected",
		})
		s.vehiclesShown = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neary",
			Subsystem: "pipeline",
			Name:      "vehicles_displayed",
			Help:      "Vehicles in the current display set after filtering",
		})

		collectors := []prometheus.Collector{
			s.classifyDuration, s.filterDuration, s.breakerChanges,
			s.degradations, s.refreshFailures, s.transitions, s.vehiclesShown,
		}
		for _, collector := range collectors {
			if err := reg.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					// Gauge before Counter: a gauge's method set satisfies
					// the Counter interface, so case order decides.
					switch v := are.ExistingCollector.(type) {
					case prometheus.Histogram:
						if collector == s.classifyDuration {
							s.classifyDuration = v
						} else if collector == s.filterDuration {
							s.filterDuration = v
						}
					case *prometheus.CounterVec:
						if collector == s.breakerChanges {
							s.breakerChanges = v
						} else if collector == s.degradations {
							s.degradations = v
						} else if collector == s.refreshFailures {
							s.refreshFailures = v
						}
					case prometheus.Gauge:
						s.vehiclesShown = v
					case prometheus.Counter:
						s.transitions = v
					}
				}
			}
		}
		s.initialized = true
	})
}

// ObserveClassify records one classification duration.
func (s *Set) ObserveClassify(d time.Duration) {
	if !s.initialized {
		return
	}
	s.classifyDuration.Observe(d.Seconds())
}

// ObserveFilter records one filtering duration.
func (s *Set) ObserveFilter(d time.Duration) {
	if !s.initialized {
		return
	}
	s.filterDuration.Observe(d.Seconds())
}

// RecordBreakerTransition counts one breaker state change.
func (s *Set) RecordBreakerTransition(component, to string) {
	if !s.initialized {
		return
	}
	s.breakerChanges.With(prometheus.Labels{"component": component, "to": to}).Inc()
}

// RecordDegradation counts one degradation event.
func (s *Set) RecordDegradation(level, strategy string) {
	if !s.initialized {
		return
	}
	s.degradations.With(prometheus.Labels{"level": level, "strategy": strategy}).Inc()
}

// RecordRefreshFailure counts one failed background revalidation for the
// cache key prefix.
func (s *Set) RecordRefreshFailure(prefix string) {
	if !s.initialized {
		return
	}
	s.refreshFailures.With(prometheus.Labels{"prefix": prefix}).Inc()
}

// RecordTransitions counts detected route transitions.
func (s *Set) RecordTransitions(n int) {
	if !s.initialized || n <= 0 {
		return
	}
	s.transitions.Add(float64(n))
}

// SetVehiclesDisplayed tracks the current display set size.
func (s *Set) SetVehiclesDisplayed(n int) {
	if !s.initialized {
		return
	}
	s.vehiclesShown.Set(float64(n))
}
