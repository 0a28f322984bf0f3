// Package repositorycache decorates go-repository-bun repositories with
// tag-invalidated result caching.
//
// # Overview
//
// CachedRepository[T] wraps a base repository and a cache.Service. Reads go
// through the cache; writes go to the base repository and, once they have
// succeeded, evict whatever they may have made stale.
//
//	coordinator, _ := cache.NewCoordinator(cache.DefaultConfig())
//	plans := repositorycache.New[*Plan](base, coordinator, cache.NewDefaultKeySerializer(),
//		repositorycache.WithDB(db),
//	)
//
//	plan, err := plans.GetByID(ctx, "p1")   // plan_p1
//	list, total, err := plans.List(ctx)     // plan_list, tagged "plans"
//	_, err = plans.Update(ctx, plan)        // evicts plan_p1, invalidates "plans"
//
// # Keys
//
// GetByID without criteria uses the entity key "<entity>_<id>". Every other
// read uses a query key built from the method name and one of, in order:
//
//  1. the parameters attached with WithQueryKey
//  2. nothing, when the call has no criteria
//  3. a digest of the SQL the criteria render to, when WithDB is set
//
// A read that matches none of these skips the cache.
//
// # Tags
//
// Query keys are registered under the repository tag (entity name plus "s"
// unless WithTag says otherwise), or under the tag given by WithReadTag. Entity
// keys live under "<tag>.records", which only criteria writes such as
// DeleteMany invalidate: they cannot name the rows they touched.
//
// Writes that affect another entity class name its tag with
// WithInvalidationTags:
//
//	ctx = repositorycache.WithInvalidationTags(ctx, cache.TagThreads)
//	_, err := messages.Create(ctx, msg)
//
// # Transactions
//
// *Tx reads and Raw always reach the base repository. *Tx writes invalidate
// as soon as the statement succeeds, before the transaction commits; a read
// between the two can cache a pre-commit value until the next write.
package repositorycache
