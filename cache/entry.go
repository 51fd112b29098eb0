package cache

import (
	"encoding/json"
	"time"
)

// Freshness is the tri-state age classification of an entry.
type Freshness int

const (
	// Fresh entries are within their rule's TTL and served as-is.
	Fresh Freshness = iota
	// Stale entries are past TTL but within max age; usable as a fallback
	// and eligible for stale-while-revalidate.
	Stale
	// Expired entries are past max age and unusable even as a fallback.
	Expired
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// entry is one cached value with its bookkeeping. Owned by the Manager;
// mutated only under the manager's lock.
type entry struct {
	key         string
	value       any
	createdAt   time.Time
	updatedAt   time.Time
	accessCount int64
	sizeBytes   int64
}

// freshness classifies the entry's age against ttl and maxAge.
func (e *entry) freshness(now time.Time, ttl, maxAge time.Duration) Freshness {
	age := now.Sub(e.updatedAt)
	if age > maxAge {
		return Expired
	}
	if age > ttl {
		return Stale
	}
	return Fresh
}

// estimateSize is the best-effort size heuristic: the JSON-encoded byte
// length of the value, with a fixed floor for values that do not encode.
const sizeFloorBytes = 64

func estimateSize(v any) int64 {
	b, err := json.Marshal(v)
	if err != nil || len(b) < sizeFloorBytes {
		return sizeFloorBytes
	}
	return int64(len(b))
}
