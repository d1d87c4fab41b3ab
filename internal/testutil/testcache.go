package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/lold2424/LessURL-Service/internal/infra"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestCache is a throwaway Redis used by the link cache, stats snapshot
// cache and rate limiter tests.
type TestCache struct {
	Client    *redis.Client
	URL       string
	container *redisTC.RedisContainer
}

// SetupTestCache starts Redis and connects through infra.NewCacheClient
func SetupTestCache(ctx context.Context) (*TestCache, error) {
	container, err := redisTC.Run(ctx,
		"redis:8-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	client, err := infra.NewCacheClient(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestCache{Client: client, URL: url, container: container}, nil
}

// Keys returns the sorted keys matching pattern, e.g. "stats:*"
func (t *TestCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := t.Client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Cleanup flushes every key between tests
func (t *TestCache) Cleanup(ctx context.Context) {
	if t == nil || t.Client == nil {
		return
	}
	t.Client.FlushDB(ctx)
}

// Teardown closes the client and stops the container
func (t *TestCache) Teardown(ctx context.Context) {
	if t.Client != nil {
		t.Client.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
