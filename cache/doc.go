// Package cache implements the unified cache manager that memoizes
// expensive or fallible fetches behind string keys.
//
// Every entry moves through three freshness states derived from its age:
// fresh (within the rule's TTL), stale (past TTL but within max age) and
// expired (past max age, unusable even as a fallback). Stale entries are
// served immediately while a background refresh runs when the key's rule
// enables stale-while-revalidate. A fetcher error falls open to the last
// stale value when one is still usable; otherwise it propagates as a
// FetchError.
//
// Concurrent gets for one key share a single in-flight fetch through
// singleflight, so at most one fetch per key is outstanding at any instant.
// Growth is bounded by per-prefix entry ceilings, a manager-wide ceiling and
// an injectable memory-pressure probe; eviction removes least-recently
// accessed entries first.
package cache
