package cache

import (
	"context"
	"fmt"
	"time"
)

// Service is the contract repositories depend on. Every operation is total:
// a cache is never the reason a request fails.
type Service interface {
	// Get returns the value stored at key, or false on a miss or an
	// expired entry.
	Get(key string) (any, bool)
	// Set stores a single-entity value. The key is not tagged; writers
	// evict it with Delete.
	Set(key string, value any, ttl time.Duration)
	// SetAndTag stores value and then registers key under tag. Every
	// list, search or aggregate key must go through here.
	SetAndTag(key string, value any, ttl time.Duration, tag string)
	// Delete evicts a single key.
	Delete(key string)
	// InvalidateTag evicts every key registered under tag and returns them.
	InvalidateTag(tag string) []string
}

// Loader is implemented by services that can coalesce concurrent misses.
type Loader interface {
	Load(ctx context.Context, key string, ttl time.Duration, tag string, fn func(context.Context) (any, error)) (any, error)
}

// FetchFn is the function signature Fetch expects when reading from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Fetch is a typed read-through helper. On a miss it runs fn and stores the
// result under key, tagged with tag unless tag is empty. Errors from fn are
// returned unchanged and never cached.
//
// A hit holding a value of another type is a calling-convention bug; it is
// treated as a miss and the key is rewritten with a fresh value.
func Fetch[T any](ctx context.Context, svc Service, key string, ttl time.Duration, tag string, fn FetchFn[T]) (T, error) {
	var zero T

	fetch := func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	var (
		result any
		err    error
	)
	if l, ok := svc.(Loader); ok {
		result, err = l.Load(ctx, key, ttl, tag, fetch)
	} else {
		result, err = loadThrough(ctx, svc, key, ttl, tag, fetch)
	}
	if err != nil {
		return zero, err
	}

	if typed, ok := asType[T](result); ok {
		return typed, nil
	}

	svc.Delete(key)
	if c, ok := svc.(*Coordinator); ok {
		c.logger.Warn("cache value type mismatch",
			"key", key,
			"cached", typeName(result),
			"expected", typeName(zero),
		)
	}

	fresh, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	store(svc, key, fresh, ttl, tag)
	return fresh, nil
}

func loadThrough(ctx context.Context, svc Service, key string, ttl time.Duration, tag string, fn func(context.Context) (any, error)) (any, error) {
	if v, ok := svc.Get(key); ok {
		return v, nil
	}
	v, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	store(svc, key, v, ttl, tag)
	return v, nil
}

func store(svc Service, key string, value any, ttl time.Duration, tag string) {
	if tag == "" {
		svc.Set(key, value, ttl)
		return
	}
	svc.SetAndTag(key, value, ttl, tag)
}

// asType converts a cached value to T. A nil value maps to the zero T so
// interface and pointer results round-trip.
func asType[T any](v any) (T, bool) {
	if v == nil {
		var zero T
		return zero, true
	}
	typed, ok := v.(T)
	return typed, ok
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// Nop is a Service that never holds anything. Useful to switch caching off
// without touching repository wiring.
type Nop struct{}

var _ Service = Nop{}

func (Nop) Get(string) (any, bool) { return nil, false }
func (Nop) Set(string, any, time.Duration) {}
func (Nop) SetAndTag(string, any, time.Duration, string) {}
func (Nop) Delete(string) {}
func (Nop) InvalidateTag(string) []string { return nil }
