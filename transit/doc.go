// Package transit defines the vehicle and route-activity data model shared
// by the cache, analyzer and degradation layers, together with the ingress
// parsing boundary that converts loosely shaped upstream payloads into the
// strict internal types.
package transit
