package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewTTLCache[string](5*time.Second, clock)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (string, error) {
		loads++
		return "v" + string(rune('0'+loads)), nil
	}

	_, ok := cache.Peek()
	assert.False(t, ok)

	v, err := cache.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.Advance(4 * time.Second)
	v, err = cache.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.Advance(time.Second)
	v, err = cache.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, "v2", v, "value expires exactly at the TTL")

	cache.Invalidate()
	v, err = cache.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, "v3", v)
}

func TestTTLCache_ErrorsAreNotCached(t *testing.T) {
	cache := NewTTLCache[int](0, clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := cache.Get(ctx, func(ctx context.Context) (int, error) {
		return 0, errors.New("offline")
	})
	require.Error(t, err)

	v, err := cache.Get(ctx, func(ctx context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
