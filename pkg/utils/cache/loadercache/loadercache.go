package loadercache

import (
	"context"
	"sync"
	"time"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/utils/cache"
)

// based on github.com/kittpat1413/go-common/framework/cache/localcache/localcache.go

type (
	Option[K comparable, V any] func(*config[K, V])
	item[T any]                 struct {
		data    T
		expires time.Time
	}
	LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)
	config[K comparable, V any]     struct {
		expiration time.Duration
		maxItems   int
		loader     LoaderFunc[K, V]
		now        func() time.Time
		l          *log.Logger
	}
	loaderCache[K comparable, V any] struct {
		mutex  sync.Mutex
		items  map[K]item[V]
		config *config[K, V]
	}
)

func WithExpiration[K comparable, V any](expiration time.Duration) Option[K, V] {
	return func(c *config[K, V]) {
		c.expiration = expiration
	}
}

// WithMaxItems limits the number of entries. Expired entries are removed
// first, if that is not enough the cache is cleared.
func WithMaxItems[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.maxItems = n
	}
}

func WithLoader[K comparable, V any](lf LoaderFunc[K, V]) Option[K, V] {
	return func(c *config[K, V]) {
		c.loader = lf
	}
}

func WithLogger[K comparable, V any](arg *log.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		c.l = arg
	}
}

func withClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *config[K, V]) {
		c.now = now
	}
}

func New[K comparable, V any](opts ...Option[K, V]) cache.Cache[K, V] {
	c := &config[K, V]{
		expiration: 5 * time.Minute,
		maxItems:   256,
		now:        time.Now,
		l:          log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return &loaderCache[K, V]{
		items:  make(map[K]item[V]),
		config: c,
	}
}

func (c *loaderCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	return c.GetOrLoad(ctx, key, c.config.loader)
}

//nolint:whitespace // can't make both editor and linter happy
func (c *loaderCache[K, V]) GetOrLoad(
	ctx context.Context, key K, load func(context.Context, K) (V, error),
) (V, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if cacheItem, ok := c.items[key]; ok {
		if cacheItem.expires.After(c.config.now()) {
			return cacheItem.data, nil
		}
		delete(c.items, key)
	}
	return c.load(ctx, key, load)
}

//nolint:whitespace // can't make both editor and linter happy
func (c *loaderCache[K, V]) load(
	ctx context.Context, key K, load func(context.Context, K) (V, error),
) (V, error) {
	var zero V
	if load == nil {
		return zero, cache.ErrCacheMiss
	}
	v, err := load(ctx, key)
	c.config.l.Debug("loaderCache.load", log.Any("key", key))
	if err != nil {
		c.config.l.Debug("error loading entry", log.ErrorField(err))
		return zero, err
	}
	if len(c.items) >= c.config.maxItems {
		c.prune()
	}
	c.items[key] = item[V]{data: v, expires: c.config.now().Add(c.config.expiration)}
	return v, nil
}

// prune removes expired entries, all entries if none has expired
func (c *loaderCache[K, V]) prune() {
	now := c.config.now()
	for k, v := range c.items {
		if !v.expires.After(now) {
			delete(c.items, k)
		}
	}
	if len(c.items) >= c.config.maxItems {
		clear(c.items)
	}
	c.config.l.Debug("pruned", log.Int("remain items", len(c.items)))
}

func (c *loaderCache[K, V]) Invalidate(ctx context.Context, key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
	c.config.l.Debug("Invalidate", log.Any("key", key), log.Int("remain items", len(c.items)))
}

func (c *loaderCache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}
