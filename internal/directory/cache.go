package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const searchKeyPrefix = "directory:search:"

// RedisCache keeps recent search results so repeated lookups for the same name
// during a burst of calls stay well under the directory deadline.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

func searchKey(query Query) string {
	return searchKeyPrefix + strings.ToLower(strings.TrimSpace(query.Name)) + "|" +
		strings.ToLower(strings.TrimSpace(query.Department))
}

func (cache *RedisCache) Get(ctx context.Context, query Query) ([]Employee, bool, error) {
	raw, err := cache.Client.Get(ctx, searchKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	var employees []Employee

	err = json.Unmarshal(raw, &employees)
	if err != nil {
		return nil, false, err
	}

	return employees, true, nil
}

func (cache *RedisCache) Set(ctx context.Context, query Query, employees []Employee) error {
	raw, err := json.Marshal(employees)
	if err != nil {
		return err
	}

	return cache.Client.Set(ctx, searchKey(query), raw, cache.TTL).Err()
}
