package config

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ciotlosm/neary-sub003/events"
)

// FieldError records one configuration field that was out of range and
// replaced with its documented default. Valid sibling fields are unaffected.
type FieldError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Default any    `json:"default"`
	Reason  string `json:"reason"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s %s (got %v, using %v)", e.Field, e.Reason, e.Value, e.Default)
}

// UpdateInProgressError rejects a configuration update that arrives while
// another update is still being applied. The caller should retry, not queue.
type UpdateInProgressError struct{}

func (e *UpdateInProgressError) Error() string {
	return "config: update already in progress"
}

// FieldChange names one applied difference between two filter configs.
type FieldChange struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// Change is delivered to subscribers after an update has been applied and
// dependent caches have been invalidated.
type Change struct {
	Previous FilterConfig  `json:"previous"`
	Current  FilterConfig  `json:"current"`
	Deltas   []FieldChange `json:"deltas"`
	At       time.Time     `json:"at"`
}

// Manager owns the live filtering configuration. Updates are atomic from the
// caller's perspective: the new config is visible to the next reader, and
// the invalidation hook runs synchronously before Update returns.
type Manager struct {
	mu       sync.RWMutex
	current  FilterConfig
	updateMu sync.Mutex

	validate *validator.Validate
	log      *logrus.Logger
	changes  *events.Subject[Change]
	now      func() time.Time

	// onApply runs synchronously inside Update, before subscribers are
	// notified. Wired to cache invalidation of classification-dependent
	// entries.
	onApply func(previous, current FilterConfig)
}

// ManagerOption adjusts a Manager at construction time.
type ManagerOption func(*Manager)

// WithApplyHook registers fn to run synchronously on every applied update.
func WithApplyHook(fn func(previous, current FilterConfig)) ManagerOption {
	return func(m *Manager) { m.onApply = fn }
}

// WithManagerClock overrides the manager's time source.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager holding initial, sanitized field by field.
// Field errors found in the initial config are logged and defaulted, never
// fatal.
func NewManager(initial FilterConfig, log *logrus.Logger, opts ...ManagerOption) (*Manager, []FieldError) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		validate: validator.New(),
		log:      log,
		changes:  events.NewSubject[Change](log),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	applied, fieldErrs := m.sanitize(initial)
	m.current = applied
	for _, fe := range fieldErrs {
		log.WithFields(logrus.Fields{
			"field":   fe.Field,
			"value":   fe.Value,
			"default": fe.Default,
		}).Warn("Invalid configuration field replaced with default")
	}
	return m, fieldErrs
}

// Current returns the live configuration.
func (m *Manager) Current() FilterConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update validates candidate field by field, replaces invalid fields with
// their documented defaults, applies the result atomically, runs the
// invalidation hook, notifies subscribers and returns the applied config
// with the per-field errors. A concurrent update is rejected with
// UpdateInProgressError.
func (m *Manager) Update(candidate FilterConfig) (FilterConfig, []FieldError, error) {
	if !m.updateMu.TryLock() {
		return m.Current(), nil, &UpdateInProgressError{}
	}
	defer m.updateMu.Unlock()

	applied, fieldErrs := m.sanitize(candidate)

	m.mu.Lock()
	previous := m.current
	m.current = applied
	m.mu.Unlock()

	for _, fe := range fieldErrs {
		m.log.WithFields(logrus.Fields{
			"field":   fe.Field,
			"value":   fe.Value,
			"default": fe.Default,
		}).Warn("Invalid configuration field replaced with default")
	}

	deltas := diffFilter(previous, applied)
	if len(deltas) > 0 {
		if m.onApply != nil {
			m.onApply(previous, applied)
		}
		m.changes.Publish(Change{
			Previous: previous,
			Current:  applied,
			Deltas:   deltas,
			At:       m.now(),
		})
	}
	return applied, fieldErrs, nil
}

// OnChange subscribes fn to applied configuration changes and returns the
// unsubscribe closure.
func (m *Manager) OnChange(fn func(Change)) func() {
	return m.changes.Subscribe(fn)
}

// sanitize validates each field independently, substituting the documented
// default for any invalid one.
func (m *Manager) sanitize(candidate FilterConfig) (FilterConfig, []FieldError) {
	out := candidate
	var fieldErrs []FieldError

	if math.IsNaN(candidate.DistanceFilterThreshold) || math.IsInf(candidate.DistanceFilterThreshold, 0) {
		fieldErrs = append(fieldErrs, FieldError{
			Field:   "distanceFilterThreshold",
			Value:   candidate.DistanceFilterThreshold,
			Default: DefaultDistanceFilterThreshold,
			Reason:  "must be a finite number of meters",
		})
		out.DistanceFilterThreshold = DefaultDistanceFilterThreshold
	}

	err := m.validate.Struct(out)
	if err == nil {
		return out, fieldErrs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// Structural failure: nothing usable, fall back entirely.
		return DefaultFilterConfig(), append(fieldErrs, FieldError{
			Field:   "filterConfig",
			Value:   fmt.Sprintf("%+v", candidate),
			Default: fmt.Sprintf("%+v", DefaultFilterConfig()),
			Reason:  "unvalidatable configuration object",
		})
	}

	for _, fe := range verrs {
		switch fe.StructField() {
		case "BusyRouteThreshold":
			fieldErrs = append(fieldErrs, FieldError{
				Field:   "busyRouteThreshold",
				Value:   candidate.BusyRouteThreshold,
				Default: DefaultBusyRouteThreshold,
				Reason:  "must be at least 1",
			})
			out.BusyRouteThreshold = DefaultBusyRouteThreshold
		case "DistanceFilterThreshold":
			fieldErrs = append(fieldErrs, FieldError{
				Field:   "distanceFilterThreshold",
				Value:   candidate.DistanceFilterThreshold,
				Default: DefaultDistanceFilterThreshold,
				Reason:  "must be at least 100 meters",
			})
			out.DistanceFilterThreshold = DefaultDistanceFilterThreshold
		}
	}
	return out, fieldErrs
}

// diffFilter lists the fields that differ between two configs.
func diffFilter(previous, current FilterConfig) []FieldChange {
	var deltas []FieldChange
	if previous.BusyRouteThreshold != current.BusyRouteThreshold {
		deltas = append(deltas, FieldChange{
			Field:    "busyRouteThreshold",
			Previous: fmt.Sprint(previous.BusyRouteThreshold),
			Current:  fmt.Sprint(current.BusyRouteThreshold),
		})
	}
	if previous.DistanceFilterThreshold != current.DistanceFilterThreshold {
		deltas = append(deltas, FieldChange{
			Field:    "distanceFilterThreshold",
			Previous: fmt.Sprint(previous.DistanceFilterThreshold),
			Current:  fmt.Sprint(current.DistanceFilterThreshold),
		})
	}
	if previous.EnableDebugLogging != current.EnableDebugLogging {
		deltas = append(deltas, FieldChange{
			Field:    "enableDebugLogging",
			Previous: fmt.Sprint(previous.EnableDebugLogging),
			Current:  fmt.Sprint(current.EnableDebugLogging),
		})
	}
	if previous.PerformanceMonitoring != current.PerformanceMonitoring {
		deltas = append(deltas, FieldChange{
			Field:    "performanceMonitoring",
			Previous: fmt.Sprint(previous.PerformanceMonitoring),
			Current:  fmt.Sprint(current.PerformanceMonitoring),
		})
	}
	return deltas
}
