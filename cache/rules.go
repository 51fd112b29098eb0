package cache

import (
	"strings"
	"time"
)

// Rule is the immutable per-key-prefix cache configuration, looked up at
// access time by the longest matching prefix.
type Rule struct {
	TTL                  time.Duration `yaml:"ttl" json:"ttl"`
	MaxAge               time.Duration `yaml:"maxAge" json:"maxAge"`
	StaleWhileRevalidate bool          `yaml:"staleWhileRevalidate" json:"staleWhileRevalidate"`
	MaxEntries           int           `yaml:"maxEntries" json:"maxEntries"`
}

// DefaultRule applies to keys that match no configured prefix.
var DefaultRule = Rule{
	TTL:                  30 * time.Second,
	MaxAge:               5 * time.Minute,
	StaleWhileRevalidate: true,
	MaxEntries:           256,
}

// DefaultRules is the rule set the transit display pipeline starts from.
// Vehicle positions age out in seconds, static stop data lives for hours,
// derived route activity sits in between.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"vehicles": {
			TTL:                  15 * time.Second,
			MaxAge:               2 * time.Minute,
			StaleWhileRevalidate: true,
			MaxEntries:           64,
		},
		"stops": {
			TTL:                  6 * time.Hour,
			MaxAge:               48 * time.Hour,
			StaleWhileRevalidate: true,
			MaxEntries:           32,
		},
		"route-activity": {
			TTL:                  5 * time.Second,
			MaxAge:               30 * time.Second,
			StaleWhileRevalidate: false,
			MaxEntries:           128,
		},
	}
}

// ruleSet resolves a key to its Rule. Immutable after construction.
type ruleSet struct {
	rules    map[string]Rule
	fallback Rule
}

func newRuleSet(rules map[string]Rule, fallback Rule) *ruleSet {
	rs := &ruleSet{rules: make(map[string]Rule, len(rules)), fallback: fallback}
	for prefix, r := range rules {
		rs.rules[prefix] = r
	}
	return rs
}

// lookup returns the rule for key and the prefix that matched. The prefix is
// the key text before the first ':'; a key without a separator is its own
// prefix. Unmatched prefixes get the fallback rule.
func (rs *ruleSet) lookup(key string) (Rule, string) {
	prefix := keyPrefix(key)
	if r, ok := rs.rules[prefix]; ok {
		return r, prefix
	}
	return rs.fallback, prefix
}

func keyPrefix(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
