package degrade

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ciotlosm/neary-sub003/breaker"
)

// Level orders degradation severity. It grades both the reported failure
// and the resulting event.
type Level int

const (
	LevelNone Level = iota
	LevelMinimal
	LevelModerate
	LevelSevere
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelMinimal:
		return "MINIMAL"
	case LevelModerate:
		return "MODERATE"
	case LevelSevere:
		return "SEVERE"
	case LevelCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// FailureType names what went wrong.
type FailureType string

const (
	FailureVehicleData   FailureType = "vehicle_data_missing"
	FailureRouteData     FailureType = "route_data_unavailable"
	FailurePerformance   FailureType = "performance_issue"
	FailureSystem        FailureType = "system_failure"
	FailureConfiguration FailureType = "configuration_field"
)

// Strategy is the fallback behavior selected for a failure.
type Strategy string

const (
	// StrategyUseCache serves the last cached snapshot.
	StrategyUseCache Strategy = "USE_CACHE"
	// StrategyUseDefaults serves an empty vehicle list.
	StrategyUseDefaults Strategy = "USE_DEFAULTS"
	// StrategySkipFiltering disables busy-route distance filtering entirely.
	StrategySkipFiltering Strategy = "SKIP_FILTERING"
	// StrategyEmergencyMode serves empty data and flags emergency operation.
	StrategyEmergencyMode Strategy = "EMERGENCY_MODE"
	// StrategyFieldDefault replaces one invalid configuration field with its
	// documented default.
	StrategyFieldDefault Strategy = "FIELD_DEFAULT"
)

// Event is one immutable fallback decision.
type Event struct {
	ID                 string        `json:"id"`
	Failure            FailureType   `json:"failure"`
	Severity           Level         `json:"severity"`
	Strategy           Strategy      `json:"strategy"`
	Level              Level         `json:"level"`
	Confidence         float64       `json:"confidence"`
	EmergencyMode      bool          `json:"emergencyMode,omitempty"`
	Limitations        []string      `json:"limitations,omitempty"`
	AffectedComponents []string      `json:"affectedComponents,omitempty"`
	RecoveryActions    []string      `json:"recoveryActions,omitempty"`
	EstimatedRecovery  time.Duration `json:"estimatedRecovery,omitempty"`
	Timestamp          time.Time     `json:"timestamp"`
}

// PerformanceBreakerName is the breaker force-incremented when a critical
// performance failure selects emergency mode.
const PerformanceBreakerName = "performance-monitor"

// Coordinator selects strategies and keeps the degradation history.
// Construct once with NewCoordinator and share by reference.
type Coordinator struct {
	mu      sync.Mutex
	history []Event

	log      *logrus.Logger
	breakers *breaker.Table
	now      func() time.Time
	newID    func() string

	// onEvent observes every recorded event, for instrumentation.
	onEvent func(Event)
}

// CoordinatorOption adjusts a Coordinator at construction time.
type CoordinatorOption func(*Coordinator)

// WithEventHook registers fn to observe every recorded event.
func WithEventHook(fn func(Event)) CoordinatorOption {
	return func(c *Coordinator) { c.onEvent = fn }
}

// WithCoordinatorClock overrides the time source.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator builds a Coordinator. breakers may be nil when no breaker
// table is wired; the performance force-increment is then skipped.
func NewCoordinator(breakers *breaker.Table, log *logrus.Logger, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Coordinator{
		log:      log,
		breakers: breakers,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DegradeOption adjusts one fallback decision.
type DegradeOption func(*degradeRequest)

type degradeRequest struct {
	components      []string
	recoveryActions []string
	explicitSkip    bool
}

// WithComponents names the components affected by the failure.
func WithComponents(components ...string) DegradeOption {
	return func(r *degradeRequest) { r.components = components }
}

// WithRecoveryActions carries the caller's recommended recovery actions
// through to the event unchanged.
func WithRecoveryActions(actions ...string) DegradeOption {
	return func(r *degradeRequest) { r.recoveryActions = actions }
}

// WithExplicitSkipFiltering forces the SKIP_FILTERING strategy for a route
// data failure regardless of severity.
func WithExplicitSkipFiltering() DegradeOption {
	return func(r *degradeRequest) { r.explicitSkip = true }
}

// Degrade selects the strategy for failure at severity, records the event
// and returns it.
func (c *Coordinator) Degrade(failure FailureType, severity Level, opts ...DegradeOption) Event {
	var req degradeRequest
	for _, opt := range opts {
		opt(&req)
	}

	ev := c.decide(failure, severity, req)
	ev.ID = c.newID()
	ev.Timestamp = c.now()
	ev.AffectedComponents = req.components

	c.record(ev)
	return ev
}

// decide is the strategy table.
func (c *Coordinator) decide(failure FailureType, severity Level, req degradeRequest) Event {
	ev := Event{
		Failure:         failure,
		Severity:        severity,
		Level:           severity,
		RecoveryActions: req.recoveryActions,
	}

	switch failure {
	case FailureVehicleData:
		if severity >= LevelSevere {
			ev.Strategy = StrategyUseDefaults
			ev.Confidence = 0.1
			ev.Limitations = []string{"showing empty vehicle list"}
			return ev
		}
		ev.Strategy = StrategyUseCache
		ev.Confidence = 0.4
		ev.Limitations = []string{"serving last cached vehicle snapshot", "positions may be stale"}
		return ev

	case FailureRouteData:
		if req.explicitSkip || severity >= LevelSevere {
			ev.Strategy = StrategySkipFiltering
			ev.Confidence = 0.5
			ev.Limitations = []string{"busy-route distance filtering disabled", "all vehicles shown"}
			return ev
		}
		ev.Strategy = StrategyUseCache
		ev.Confidence = 0.4
		ev.Limitations = []string{"serving last cached route activity"}
		return ev

	case FailurePerformance:
		if severity >= LevelCritical {
			ev.Strategy = StrategyEmergencyMode
			ev.Confidence = 0.0
			ev.EmergencyMode = true
			ev.EstimatedRecovery = 300 * time.Second
			ev.Limitations = []string{"emergency mode active"}
			if c.breakers != nil {
				c.breakers.For(PerformanceBreakerName).RecordFailure()
			}
			return ev
		}
		ev.Strategy = StrategyUseCache
		ev.Confidence = 0.4
		ev.EstimatedRecovery = 120 * time.Second
		ev.Limitations = []string{"serving cached data while performance recovers"}
		return ev

	case FailureSystem:
		ev.Strategy = StrategyEmergencyMode
		ev.Confidence = 0.0
		ev.EmergencyMode = true
		ev.Level = LevelCritical
		ev.Limitations = []string{"emergency mode active", "showing empty vehicle list"}
		return ev
	}

	// Unknown failure types degrade conservatively.
	ev.Strategy = StrategyUseDefaults
	ev.Confidence = 0.1
	ev.Limitations = []string{"unrecognized failure type"}
	return ev
}

// ConfigFieldFallback records one invalid configuration field replaced with
// its default, always at MINIMAL level.
func (c *Coordinator) ConfigFieldFallback(field, reason string) Event {
	ev := Event{
		ID:          c.newID(),
		Failure:     FailureConfiguration,
		Severity:    LevelMinimal,
		Strategy:    StrategyFieldDefault,
		Level:       LevelMinimal,
		Confidence:  0.9,
		Limitations: []string{"field " + field + " replaced with default: " + reason},
		Timestamp:   c.now(),
	}
	c.record(ev)
	return ev
}

func (c *Coordinator) record(ev Event) {
	c.mu.Lock()
	c.history = append(c.history, ev)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"failure":  ev.Failure,
		"severity": ev.Severity.String(),
		"strategy": ev.Strategy,
		"level":    ev.Level.String(),
	}).Warn("Degradation event recorded")

	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// Level reports the system-wide degradation level: the maximum level among
// recorded events, LevelNone when the history is empty.
func (c *Coordinator) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := LevelNone
	for _, ev := range c.history {
		if ev.Level > max {
			max = ev.Level
		}
	}
	return max
}

// EmergencyActive reports whether any recorded event entered emergency mode.
func (c *Coordinator) EmergencyActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.history {
		if ev.EmergencyMode {
			return true
		}
	}
	return false
}

// History returns a copy of the recorded events, oldest first.
func (c *Coordinator) History() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.history))
	copy(out, c.history)
	return out
}

// Clear empties the history, returning the level to LevelNone.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
