package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// entry is what we hand to sturdyc. sturdyc only knows a single TTL per
// client, so the per-entry deadline travels with the value and is checked
// on every read.
type entry struct {
	value     any
	expiresAt time.Time
}

// EntryStore is a thread-safe key to value map with absolute per-entry
// deadlines. Reads treat an entry as dead once now >= expiresAt, even if
// sturdyc has not reclaimed the slot yet.
type EntryStore struct {
	client *sturdyc.Client[entry]
	now    func() time.Time
	maxTTL time.Duration
}

// NewEntryStore validates cfg and builds a sturdyc client for it.
// now is used for every deadline computation; nil means time.Now.
func NewEntryStore(cfg Config, now func() time.Time) (*EntryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &EntryStore{
		client: client,
		now:    now,
		maxTTL: cfg.MaxTTL,
	}, nil
}

// Get returns the value stored at key. Expired entries are reported as a
// miss and their slot is reclaimed.
//
// The reclaim can race with a Set of the same key and drop the fresh value;
// the only consequence is one extra miss for that key.
func (s *EntryStore) Get(key string) (any, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set overwrites any entry at key with a deadline of now + ttl.
// ttl <= 0 and ttl > MaxTTL both resolve to MaxTTL.
func (s *EntryStore) Set(key string, value any, ttl time.Duration) {
	s.client.Set(key, entry{value: value, expiresAt: s.now().Add(s.ClampTTL(ttl))})
}

// Delete removes the entry at key. Deleting an absent key is a no-op.
func (s *EntryStore) Delete(key string) {
	s.client.Delete(key)
}

// Contains reports whether key holds a live entry without reclaiming anything.
func (s *EntryStore) Contains(key string) bool {
	e, ok := s.client.Get(key)
	return ok && s.now().Before(e.expiresAt)
}

// Sweep reclaims every expired slot and returns how many were removed.
func (s *EntryStore) Sweep() int {
	now := s.now()
	removed := 0
	for _, key := range s.client.ScanKeys() {
		e, ok := s.client.Get(key)
		if ok && !now.Before(e.expiresAt) {
			s.client.Delete(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of physical slots, live or not yet reclaimed.
func (s *EntryStore) Len() int {
	return s.client.Size()
}

// ClampTTL resolves the ttl an entry will actually get.
func (s *EntryStore) ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > s.maxTTL {
		return s.maxTTL
	}
	return ttl
}
