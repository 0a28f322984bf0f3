package cache

import (
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-result-cache/internal/cacheinfra"
)

// Clock supplies the current instant for expiry decisions.
type Clock interface {
	Now() time.Time
}

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity           int           `json:"capacity"`
	NumShards          int           `json:"num_shards"`
	MaxTTL             time.Duration `json:"max_ttl"`
	EvictionPercentage int           `json:"eviction_percentage"`
	EvictionInterval   time.Duration `json:"eviction_interval"`

	// SweepInterval is how often the background compactor runs.
	// Zero disables it.
	SweepInterval time.Duration `json:"sweep_interval"`

	// TagSizeWarning logs a warning the first time a tag accumulates this
	// many members between two invalidations. Zero disables the check.
	TagSizeWarning int `json:"tag_size_warning"`

	Logger *slog.Logger `json:"-"`
	Clock  Clock        `json:"-"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.SweepInterval = 5 * time.Minute
	cfg.TagSizeWarning = 10_000
	return cfg
}

// Validate checks whether the configuration values are valid. Failures are
// reported as a validation.Errors keyed by JSON field name.
func (c Config) Validate() error {
	errs := validation.Errors{}

	if err := mergeErrors(errs, c.toInternal().Validate()); err != nil {
		return err
	}

	err := validation.ValidateStruct(&c,
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.TagSizeWarning, validation.Min(0)),
	)
	if err := mergeErrors(errs, err); err != nil {
		return err
	}

	return errs.Filter()
}

// mergeErrors copies field errors into dst and returns err back only when it
// is not a field error set.
func mergeErrors(dst validation.Errors, err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return err
	}
	for k, v := range fields {
		dst[k] = v
	}
	return nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		MaxTTL:             cfg.MaxTTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
