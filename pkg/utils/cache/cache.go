package cache

import (
	"context"
	"errors"
)

// based on github.com/kittpat1413/go-common/framework/cache/cache.go

var ErrCacheMiss = errors.New("cache miss")

type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, error)
	// GetOrLoad uses load instead of the configured loader on a miss
	GetOrLoad(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error)
	Invalidate(ctx context.Context, key K)
	Len() int
}
