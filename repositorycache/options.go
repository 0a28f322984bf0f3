package repositorycache

import (
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// Option customizes a CachedRepository.
type Option func(*options)

type options struct {
	entity string
	tag    string
	ttl    time.Duration
	db     *bun.DB
	logger *slog.Logger
}

// WithEntity sets the key prefix. It defaults to the hyphenated name of the
// model type, e.g. plan for *Plan and website-member for WebsiteMember. The
// name must not contain cache.KeySeparator, or its keys could collide with
// another entity's.
func WithEntity(name string) Option {
	return func(o *options) {
		if name != "" {
			o.entity = name
		}
	}
}

// WithTag sets the tag every query read is registered under and every
// write invalidates. It defaults to the plural of the entity name, e.g.
// categories for category.
func WithTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.tag = tag
		}
	}
}

// WithTTL sets the lifetime of cached reads. It defaults to cache.TTLDefault.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithDB lets the repository render select criteria to SQL and key reads by
// its digest. Without it, reads with criteria are only cached when the
// context carries a query key.
func WithDB(db *bun.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithLogger sets the logger used for cache bypass diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
