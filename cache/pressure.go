package cache

import "runtime"

// Probe reports memory pressure as a usage ratio in [0,1]. The manager
// consults it on writes to decide when to evict. Implementations must be
// safe for concurrent use.
type Probe interface {
	Usage() float64
}

// EntryCountProbe is the portable default probe: the ratio of current
// entries to the manager-wide ceiling. The manager wires itself in as the
// counter.
type EntryCountProbe struct {
	count func() int
	limit int
}

// NewEntryCountProbe builds a probe over a live entry counter.
func NewEntryCountProbe(count func() int, limit int) *EntryCountProbe {
	return &EntryCountProbe{count: count, limit: limit}
}

func (p *EntryCountProbe) Usage() float64 {
	if p.limit <= 0 {
		return 0
	}
	return float64(p.count()) / float64(p.limit)
}

// HeapProbe reports real heap usage against a configured budget, for
// platforms where process heap stats are meaningful.
type HeapProbe struct {
	BudgetBytes uint64
}

func (p *HeapProbe) Usage() float64 {
	if p.BudgetBytes == 0 {
		return 0
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / float64(p.BudgetBytes)
}

// StaticProbe always reports the same usage. Used in tests to force
// pressure-driven eviction deterministically.
type StaticProbe float64

func (p StaticProbe) Usage() float64 { return float64(p) }
