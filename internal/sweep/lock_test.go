package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis so no real
// Redis server is needed
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func TestLock_SingleLeader(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	ctx := context.Background()

	first := NewLock(client, "instance-1", time.Minute)
	second := NewLock(client, "instance-2", time.Minute)

	acquired, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "first instance should take the lock")

	acquired, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second instance must not take a held lock")

	require.NoError(t, first.Release(ctx))

	acquired, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lock should be free after release")
}

func TestLock_ReleaseOnlyByOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	ctx := context.Background()

	owner := NewLock(client, "instance-1", time.Minute)
	intruder := NewLock(client, "instance-2", time.Minute)

	acquired, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// A non-owner release must leave the lock in place
	require.NoError(t, intruder.Release(ctx))

	acquired, err = intruder.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "lock should still be held by instance-1")

	require.NoError(t, owner.Release(ctx))
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	ctx := context.Background()

	crashed := NewLock(client, "crashed-instance", 30*time.Second)
	next := NewLock(client, "next-instance", 30*time.Second)

	acquired, err := crashed.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// The holder dies without releasing; the TTL unblocks the next sweep
	mr.FastForward(31 * time.Second)

	acquired, err = next.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lock should be acquirable")
}

func TestLock_ReleaseWhenAlreadyExpired(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	ctx := context.Background()

	lock := NewLock(client, "instance-1", 10*time.Second)

	acquired, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(11 * time.Second)

	// Releasing after expiry is a no-op, not an error
	assert.NoError(t, lock.Release(ctx))
}
