// Package cache is an in-process result cache for a read-heavy service
// whose writes must be visible to the very next read.
//
// # Overview
//
// Entries are stored by key with a per-entry TTL and are read lazily: an
// entry is a miss once its deadline passes. Every list, search or aggregate
// result is registered under a tag naming the entity class it depends on.
// A writer calls InvalidateTag for that class, and every key under the tag
// is gone before the call returns.
//
//	c, err := cache.NewCoordinator(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.Set(cache.EntityKey("plan", 7), plan, cache.TTLDefault)
//	c.SetAndTag(cache.QueryKey("plans", "search:"+cache.SearchTerms(q), cache.Page(1)),
//		page, cache.TTLDefault, cache.TagPlans)
//
//	// after a plan write
//	c.Delete(cache.EntityKey("plan", 7))
//	c.InvalidateTag(cache.TagPlans)
//
// # Keys
//
// EntityKey, QueryKey and WindowKey build keys of the form
// "<entity>_<part>_<part>". Parts are escaped so distinct part lists never
// collide, and keys longer than MaxKeyLength collapse into a digest. The
// default KeySerializer renders arbitrary filter values deterministically
// and returns ErrUnstableKey for values it cannot render, such as funcs.
//
// # Read-through
//
// Fetch wraps the miss, fetch, store sequence with a typed result. On a
// Coordinator concurrent misses for one key share a single fetch. Errors are
// returned to the caller and never cached.
//
// # Maintenance
//
// Tags only shrink on invalidation, so a tag that is rarely invalidated
// keeps the keys of expired entries. Compact, run every SweepInterval by
// default, reclaims expired slots and drops those members.
package cache
