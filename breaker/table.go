package breaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Table owns every breaker in the process, created lazily by component name.
// It is constructed once during wiring and passed by reference.
type Table struct {
	mu       sync.Mutex
	cfg      Config
	log      *logrus.Logger
	breakers map[string]*Breaker

	onTransition func(component string, from, to State)
	clock        func() time.Time
}

// TableOption adjusts a Table at construction time.
type TableOption func(*Table)

// WithTransitionHook registers fn to run on every breaker state change.
func WithTransitionHook(fn func(component string, from, to State)) TableOption {
	return func(t *Table) { t.onTransition = fn }
}

// WithClock overrides the time source for every breaker the table creates.
func WithClock(now func() time.Time) TableOption {
	return func(t *Table) { t.clock = now }
}

// NewTable creates an empty breaker table sharing cfg and log across all
// breakers it creates.
func NewTable(cfg Config, log *logrus.Logger, opts ...TableOption) *Table {
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Table{
		cfg:      cfg.withDefaults(),
		log:      log,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// For returns the breaker for component, creating it closed if absent.
func (t *Table) For(component string) *Breaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.breakers[component]
	if !ok {
		b = New(component, t.cfg, t.log)
		b.onTransition = t.onTransition
		if t.clock != nil {
			b.now = t.clock
		}
		t.breakers[component] = b
	}
	return b
}

// State returns the snapshot for component. Unknown components report a
// closed breaker with zero counters, matching what For would create.
func (t *Table) State(component string) Snapshot {
	return t.For(component).State()
}

// Reset forces the named breaker closed. It is a no-op for components that
// have never been used.
func (t *Table) Reset(component string) {
	t.mu.Lock()
	b, ok := t.breakers[component]
	t.mu.Unlock()
	if ok {
		b.Reset()
	}
}

// ResetAll forces every known breaker closed.
func (t *Table) ResetAll() {
	t.mu.Lock()
	breakers := make([]*Breaker, 0, len(t.breakers))
	for _, b := range t.breakers {
		breakers = append(breakers, b)
	}
	t.mu.Unlock()
	for _, b := range breakers {
		b.Reset()
	}
}

// Snapshots returns the state of every known breaker keyed by component.
func (t *Table) Snapshots() map[string]Snapshot {
	t.mu.Lock()
	breakers := make(map[string]*Breaker, len(t.breakers))
	for name, b := range t.breakers {
		breakers[name] = b
	}
	t.mu.Unlock()

	out := make(map[string]Snapshot, len(breakers))
	for name, b := range breakers {
		out[name] = b.State()
	}
	return out
}

