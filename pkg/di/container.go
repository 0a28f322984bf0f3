package di

import (
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-result-cache/cache"
	"github.com/goliatone/go-result-cache/repositorycache"
)

// Container owns the process-wide cache coordinator and key serializer and
// builds cached repositories on top of them. Every repository built from
// one container shares the same tags, so a write through one invalidates
// reads cached by another.
type Container struct {
	coordinator   *cache.Coordinator
	keySerializer cache.KeySerializer
	config        cache.Config
}

// NewContainer validates config and starts a coordinator for it.
func NewContainer(config cache.Config) (*Container, error) {
	coordinator, err := cache.NewCoordinator(config)
	if err != nil {
		return nil, err
	}

	return &Container{
		coordinator:   coordinator,
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        config,
	}, nil
}

// NewContainerWithDefaults creates a container from cache.DefaultConfig.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultConfig())
}

// Coordinator returns the shared coordinator.
func (c *Container) Coordinator() *cache.Coordinator {
	return c.coordinator
}

// CacheService returns the shared coordinator as a cache.Service.
func (c *Container) CacheService() cache.Service {
	return c.coordinator
}

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration the container was built with.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close stops the coordinator's background compactor.
func (c *Container) Close() error {
	return c.coordinator.Close()
}

// NewCachedRepository wraps base with the container's coordinator and key
// serializer. Go methods cannot have type parameters, hence the function:
//
//	plans := di.NewCachedRepository[*Plan](container, base, repositorycache.WithDB(db))
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.CacheService(), container.keySerializer, opts...)
}
