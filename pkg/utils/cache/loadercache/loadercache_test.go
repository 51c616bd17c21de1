package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/sequential/pkg/utils/cache"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestGet(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1000, 0)}
	calls := 0
	c := New[int, string](
		WithLoader[int, string](func(_ context.Context, k int) (string, error) {
			calls++
			if k < 0 {
				return "", errors.New("negative")
			}
			return "v" + string(rune('0'+k)), nil
		}),
		WithExpiration[int, string](time.Second),
		withClock[int, string](clk.now),
	)

	v, err := c.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, "v1", v)
	v, _ = c.Get(ctx, 1)
	assert.Equal(t, "v1", v)
	assert.Equal(t, 1, calls)

	// expired entries are reloaded
	clk.t = clk.t.Add(2 * time.Second)
	_, _ = c.Get(ctx, 1)
	assert.Equal(t, 2, calls)

	c.Invalidate(ctx, 1)
	assert.Equal(t, 0, c.Len())

	_, err = c.Get(ctx, -1)
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestNoLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestMaxItems(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1000, 0)}
	c := New[int, int](
		WithLoader[int, int](func(_ context.Context, k int) (int, error) { return k * 2, nil }),
		WithExpiration[int, int](time.Second),
		WithMaxItems[int, int](3),
		withClock[int, int](clk.now),
	)
	for i := range 3 {
		_, _ = c.Get(ctx, i)
	}
	assert.Equal(t, 3, c.Len())

	// nothing expired, the cache is cleared
	_, _ = c.Get(ctx, 10)
	assert.Equal(t, 1, c.Len())

	_, _ = c.Get(ctx, 11)
	clk.t = clk.t.Add(2 * time.Second)
	_, _ = c.Get(ctx, 12)
	// 10 and 11 expired
	_, _ = c.Get(ctx, 13)
	_, _ = c.Get(ctx, 14)
	assert.Equal(t, 3, c.Len())
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := New[string, int]()
	calls := 0
	load := func(_ context.Context, k string) (int, error) {
		calls++
		return len(k), nil
	}
	v, err := c.GetOrLoad(ctx, "abc", load)
	assert.NoError(t, err)
	assert.Equal(t, 3, v)

	// cached entries are returned without calling the loader
	v, err = c.GetOrLoad(ctx, "abc", func(context.Context, string) (int, error) {
		return 0, errors.New("not expected")
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, calls)

	_, err = c.GetOrLoad(ctx, "x", nil)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
