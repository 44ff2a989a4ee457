package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupStore_SeenBeforeMark(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewDedupStore(client)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "charge.success:ref-1:302961")
	require.NoError(t, err)
	assert.False(t, seen, "unmarked identity should not read as seen")
}

func TestDedupStore_MarkThenSeen(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewDedupStore(client)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "charge.success:ref-1:302961", time.Hour))

	seen, err := store.Seen(ctx, "charge.success:ref-1:302961")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDedupStore_SeenDoesNotMark(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewDedupStore(client)
	ctx := context.Background()

	// Peeking twice must not turn the identity into a duplicate.
	for i := 0; i < 2; i++ {
		seen, err := store.Seen(ctx, "charge.failed:ref-2:99")
		require.NoError(t, err)
		assert.False(t, seen)
	}
}

func TestDedupStore_IdentityExpires(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewDedupStore(client)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "charge.success:ref-3:1", time.Minute))
	s.FastForward(2 * time.Minute)

	seen, err := store.Seen(ctx, "charge.success:ref-3:1")
	require.NoError(t, err)
	assert.False(t, seen, "identity should expire with its TTL")
}

func TestDedupStore_DistinctIdentities(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewDedupStore(client)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "charge.success:ref-4:1", time.Hour))

	// Same reference, different event type: a separate identity.
	seen, err := store.Seen(ctx, "charge.failed:ref-4:1")
	require.NoError(t, err)
	assert.False(t, seen)
}
