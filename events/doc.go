// Package events provides the subscription primitives used by the cache,
// config and activity layers to notify interested parties of state changes.
//
// A Subject holds an ordered set of callbacks and hands each subscriber an
// unsubscribe closure. A Keyed subject scopes subscriptions to a string key
// so that, for example, a cache-update listener only fires for the entry it
// cares about. Delivery is synchronous and happens in registration order;
// a panicking callback is recovered and logged so one bad subscriber cannot
// break the publisher or starve the remaining callbacks.
package events
