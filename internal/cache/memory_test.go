package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Minute, nil)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))

	value, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), value)

	_, ok, _ = store.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	store := NewMemoryStore(10, time.Hour, clock)

	require.NoError(t, store.Set(ctx, "short", []byte("x"), 10*time.Second))
	require.NoError(t, store.Set(ctx, "default", []byte("y"), 0))

	clock.Advance(9 * time.Second)
	_, ok, _ := store.Get(ctx, "short")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = store.Get(ctx, "short")
	assert.False(t, ok, "entry expires exactly at its TTL")

	_, ok, _ = store.Get(ctx, "default")
	assert.True(t, ok)
}

func TestMemoryStore_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, time.Hour, nil)

	require.NoError(t, store.Set(ctx, "first", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "second", []byte("2"), 0))

	// Reads do not protect an entry from eviction.
	_, _, _ = store.Get(ctx, "first")

	require.NoError(t, store.Set(ctx, "third", []byte("3"), 0))

	_, ok, _ := store.Get(ctx, "first")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "second")
	assert.True(t, ok)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, int64(1), store.Evictions())
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewMemoryStore(10, time.Minute, clock)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), time.Second))

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, store.Sweep(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Minute, nil)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "never-set"))

	assert.Equal(t, 0, store.Len())
}
