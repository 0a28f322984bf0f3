package cacheinfra

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// members is the key set of one tag. Its lock is what makes snapshot and
// clear atomic with respect to AddMember.
type members struct {
	mu sync.Mutex
	// keys maps each member to the sequence number of its latest AddMember.
	keys map[string]uint64
	seq  uint64
	// warned is reset on every invalidation so a size warning fires at most
	// once per generation.
	warned bool
}

// TagIndex maps a tag name to the keys registered under it. Tags are
// created lazily and never removed; Invalidate only empties them.
type TagIndex struct {
	tags *xsync.MapOf[string, *members]
}

// NewTagIndex returns an empty index.
func NewTagIndex() *TagIndex {
	return &TagIndex{tags: xsync.NewMapOf[string, *members]()}
}

func (t *TagIndex) get(tag string) *members {
	m, _ := t.tags.LoadOrCompute(tag, func() *members {
		return &members{keys: make(map[string]uint64)}
	})
	return m
}

// AddMember registers key under tag and returns the tag's new size.
// Adding an existing member is a no-op.
func (t *TagIndex) AddMember(tag, key string) int {
	m := t.get(tag)
	m.mu.Lock()
	m.seq++
	m.keys[key] = m.seq
	n := len(m.keys)
	m.mu.Unlock()
	return n
}

// MarkWarned flips the per-generation warning flag and reports whether the
// caller is the first to do so since the last invalidation.
func (t *TagIndex) MarkWarned(tag string) bool {
	m, ok := t.tags.Load(tag)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warned {
		return false
	}
	m.warned = true
	return true
}

// Invalidate snapshots and clears the members of tag in one critical
// section. An AddMember racing with it either lands in the snapshot or in
// the fresh set, never in neither. Unknown tags return nil.
func (t *TagIndex) Invalidate(tag string) []string {
	m, ok := t.tags.Load(tag)
	if !ok {
		return nil
	}

	m.mu.Lock()
	if len(m.keys) == 0 {
		m.warned = false
		m.mu.Unlock()
		return nil
	}
	snapshot := m.keys
	m.keys = make(map[string]uint64)
	m.warned = false
	m.mu.Unlock()

	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	return keys
}

// Prune drops every member of tag for which live returns false and reports
// how many were dropped. live runs without the tag lock held, so writers
// keep tagging during the pass. A member re-added after its check is kept.
func (t *TagIndex) Prune(tag string, live func(key string) bool) int {
	m, ok := t.tags.Load(tag)
	if !ok {
		return 0
	}

	m.mu.Lock()
	snapshot := make(map[string]uint64, len(m.keys))
	for key, seq := range m.keys {
		snapshot[key] = seq
	}
	m.mu.Unlock()

	dead := make(map[string]uint64)
	for key, seq := range snapshot {
		if !live(key) {
			dead[key] = seq
		}
	}
	if len(dead) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for key, seq := range dead {
		if current, ok := m.keys[key]; ok && current == seq {
			delete(m.keys, key)
			pruned++
		}
	}
	return pruned
}

// Size returns the number of members currently registered under tag.
func (t *TagIndex) Size(tag string) int {
	m, ok := t.tags.Load(tag)
	if !ok {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// Has reports whether key is registered under tag.
func (t *TagIndex) Has(tag, key string) bool {
	m, ok := t.tags.Load(tag)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.keys[key]
	return found
}

// Tags returns every tag name ever seen, sorted.
func (t *TagIndex) Tags() []string {
	names := make([]string, 0, t.tags.Size())
	t.tags.Range(func(name string, _ *members) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
