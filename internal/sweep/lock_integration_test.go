package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestLockIntegration exercises the leader lock against a real Redis
// container, covering the SetNX semantics miniredis only approximates.
func TestLockIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})
	defer client.Close()

	leader := NewLock(client, "leader", 2*time.Second)
	follower := NewLock(client, "follower", 2*time.Second)

	acquired, err := leader.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "expected leader to take the lock")

	acquired, err = follower.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "expected follower to be locked out")

	require.NoError(t, leader.Release(ctx))

	acquired, err = follower.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "expected follower to take the freed lock")

	// A crashed holder's lock frees itself when the TTL lapses
	time.Sleep(2500 * time.Millisecond)

	acquired, err = leader.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "expected lock to expire after its TTL")
}
