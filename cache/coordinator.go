package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-result-cache/internal/cacheinfra"
)

// Coordinator combines the entry store and the tag index behind the
// Service contract. Build one per process and pass it to repositories.
type Coordinator struct {
	store  *cacheinfra.EntryStore
	tags   *cacheinfra.TagIndex
	group  singleflight.Group
	logger *slog.Logger

	tagSizeWarning int

	hits            atomic.Int64
	misses          atomic.Int64
	sets            atomic.Int64
	deletes         atomic.Int64
	invalidations   atomic.Int64
	invalidatedKeys atomic.Int64
	compactions     atomic.Int64

	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	closeOnce sync.Once
}

var (
	_ Service = (*Coordinator)(nil)
	_ Loader  = (*Coordinator)(nil)
)

// Stats is a point-in-time view of the coordinator counters.
type Stats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Sets            int64 `json:"sets"`
	Deletes         int64 `json:"deletes"`
	Invalidations   int64 `json:"invalidations"`
	InvalidatedKeys int64 `json:"invalidated_keys"`
	Compactions     int64 `json:"compactions"`
	Entries         int   `json:"entries"`
	Tags            int   `json:"tags"`
}

// CompactResult reports what a Compact pass removed.
type CompactResult struct {
	Reclaimed int `json:"reclaimed"`
	Pruned    int `json:"pruned"`
}

// NewCoordinator validates cfg and builds a Coordinator. When
// cfg.SweepInterval is positive a background compactor is started; stop it
// with Close.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var now func() time.Time
	if cfg.Clock != nil {
		now = cfg.Clock.Now
	}

	store, err := cacheinfra.NewEntryStore(cfg.toInternal(), now)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Coordinator{
		store:          store,
		tags:           cacheinfra.NewTagIndex(),
		logger:         logger.With("component", "result_cache"),
		tagSizeWarning: cfg.TagSizeWarning,
	}

	if cfg.SweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.waitGroup.Add(1)
		go c.run(ctx, cfg.SweepInterval)
	}

	return c, nil
}

// Get returns the value stored at key. Absent and expired keys are misses.
func (c *Coordinator) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value at key with a deadline of now + ttl. ttl <= 0 uses the
// configured MaxTTL.
func (c *Coordinator) Set(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
	c.sets.Add(1)
}

// SetAndTag stores value and only then publishes key under tag, so an
// invalidation that sees the member always finds something to delete.
// An empty tag makes this a plain Set.
func (c *Coordinator) SetAndTag(key string, value any, ttl time.Duration, tag string) {
	c.Set(key, value, ttl)
	if tag == "" {
		return
	}

	n := c.tags.AddMember(tag, key)
	if c.tagSizeWarning > 0 && n >= c.tagSizeWarning && c.tags.MarkWarned(tag) {
		c.logger.Warn("cache tag growing without invalidation",
			"tag", tag,
			"members", n,
			"threshold", c.tagSizeWarning,
		)
	}
}

// Delete evicts key. It does not touch tag membership.
func (c *Coordinator) Delete(key string) {
	c.store.Delete(key)
	c.deletes.Add(1)
}

// InvalidateTag evicts every key registered under tag and returns them.
// All deletes happen before it returns, so a later Get on any returned key
// misses. Unknown tags are a no-op.
func (c *Coordinator) InvalidateTag(tag string) []string {
	keys := c.tags.Invalidate(tag)
	for _, key := range keys {
		c.store.Delete(key)
	}

	c.invalidations.Add(1)
	c.invalidatedKeys.Add(int64(len(keys)))
	if len(keys) > 0 {
		c.logger.Debug("cache tag invalidated", "tag", tag, "keys", len(keys))
	}
	return keys
}

// Load returns the cached value for key or computes it with fn. Concurrent
// misses on the same key share one call to fn. Errors are not cached.
//
// The shared call runs detached from any single caller's cancellation. A
// caller whose ctx ends stops waiting and gets ctx.Err(); the others still
// receive the result.
func (c *Coordinator) Load(ctx context.Context, key string, ttl time.Duration, tag string, fn func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		v, err := fn(shared)
		if err != nil {
			return nil, err
		}
		store(c, key, v, ttl, tag)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// TagSize returns how many keys are registered under tag right now.
func (c *Coordinator) TagSize(tag string) int {
	return c.tags.Size(tag)
}

// Tags returns every tag name seen so far.
func (c *Coordinator) Tags() []string {
	return c.tags.Tags()
}

// Compact reclaims expired entry slots and drops tag members whose entry
// is gone. It keeps rarely-invalidated tags bounded by live keys instead of
// by every key ever cached.
func (c *Coordinator) Compact() CompactResult {
	res := CompactResult{Reclaimed: c.store.Sweep()}
	for _, tag := range c.tags.Tags() {
		res.Pruned += c.tags.Prune(tag, c.store.Contains)
	}

	c.compactions.Add(1)
	if res.Reclaimed > 0 || res.Pruned > 0 {
		c.logger.Debug("cache compacted", "reclaimed", res.Reclaimed, "pruned", res.Pruned)
	}
	return res
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Sets:            c.sets.Load(),
		Deletes:         c.deletes.Load(),
		Invalidations:   c.invalidations.Load(),
		InvalidatedKeys: c.invalidatedKeys.Load(),
		Compactions:     c.compactions.Load(),
		Entries:         c.store.Len(),
		Tags:            len(c.tags.Tags()),
	}
}

// Close stops the background compactor. It is safe to call more than once
// and the coordinator stays usable afterwards.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			c.waitGroup.Wait()
		}
	})
	return nil
}

func (c *Coordinator) run(ctx context.Context, interval time.Duration) {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Compact()
		}
	}
}
