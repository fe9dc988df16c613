package redis

import (
	"context"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func startTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis-backed test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Skipf("could not start redis container: %v", err)
	}

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	var client *goredis.Client

	pool.MaxWait = time.Minute

	err = pool.Retry(func() error {
		var err error

		client, err = NewRedisClient(context.Background(), Options{Addr: resource.GetHostPort("6379/tcp")})

		return err
	})
	if err != nil {
		t.Fatalf("redis did not become ready: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestCallClaimsLifecycle(t *testing.T) {
	claims := NewCallClaims(startTestRedis(t), time.Minute)
	ctx := context.Background()

	claimed, err := claims.Claim(ctx, "call_1", "s-1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = claims.Claim(ctx, "call_1", "s-2")
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, claims.Release(ctx, "call_1", "s-1"))

	claimed, err = claims.Claim(ctx, "call_1", "s-3")
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestCallClaimsReleaseKeepsNewerClaim(t *testing.T) {
	client := startTestRedis(t)
	claims := NewCallClaims(client, time.Minute)
	ctx := context.Background()

	claimed, err := claims.Claim(ctx, "call_1", "s-1")
	require.NoError(t, err)
	require.True(t, claimed)

	// s-1's claim lapsed and s-2 took the room over
	require.NoError(t, client.Del(ctx, claimKeyPrefix+"call_1").Err())

	claimed, err = claims.Claim(ctx, "call_1", "s-2")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, claims.Release(ctx, "call_1", "s-1"))

	holder, err := client.Get(ctx, claimKeyPrefix+"call_1").Result()
	require.NoError(t, err)
	require.Equal(t, "s-2", holder)

	require.NoError(t, claims.Release(ctx, "call_1", "s-2"))
	require.Equal(t, int64(0), client.Exists(ctx, claimKeyPrefix+"call_1").Val())
}

func TestNewRedisClientFailsFast(t *testing.T) {
	_, err := NewRedisClient(context.Background(), Options{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
}
