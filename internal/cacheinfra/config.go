package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the entry store.
// It encapsulates the sturdyc options needed for client initialization.
type Config struct {
	// Capacity defines the maximum number of entries the store keeps before
	// sturdyc starts evicting. It is a safety net, not an eviction policy:
	// expiry and explicit invalidation are what keep the store small.
	Capacity int `json:"capacity"`

	// NumShards determines the number of sturdyc shards. Each shard has its
	// own lock, so higher values reduce contention on hot paths.
	NumShards int `json:"num_shards"`

	// MaxTTL is the longest lifetime an entry can have. It is handed to
	// sturdyc as the physical TTL, and ttls above it are clamped.
	MaxTTL time.Duration `json:"max_ttl"`

	// EvictionPercentage specifies what percentage of a shard to evict
	// when it reaches capacity. Must be between 1-100.
	EvictionPercentage int `json:"eviction_percentage"`

	// EvictionInterval sets how often sturdyc scans for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration `json:"eviction_interval"`
}

// DefaultConfig returns a Config sized for a single process serving many tenants.
func DefaultConfig() Config {
	return Config{
		Capacity:           100_000,
		NumShards:          256,
		MaxTTL:             24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
// The returned error is a validation.Errors keyed by the JSON field name.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, MaxTTL and EvictionPercentage go straight to
// sturdyc.New and are not included here.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}
